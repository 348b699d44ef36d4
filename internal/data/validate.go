package data

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

// Checks that every coordinate is finite and that every cell references existing points.
// All the problems found are combined into the returned error.
func Validate(ds PointSet) error {
	if ds == nil {
		return ErrNoDataSet
	}

	var err error
	numPts := ds.NumberOfPoints()
	nanErr := parallel.ForE(numPts, 4096, func(begin, end int) error {
		for id := begin; id < end; id++ {
			p := ds.Point(id)
			if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
				math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
				return errors.Errorf("point %d has a non finite coordinate %v", id, p)
			}
		}
		return nil
	})
	err = multierr.Append(err, nanErr)

	cells, ok := ds.(DataSet)
	if !ok {
		return err
	}
	total := 0
	for cellID := 0; cellID < cells.NumberOfCells(); cellID++ {
		pts := cells.CellPoints(cellID)
		total += len(pts)
		for _, ptID := range pts {
			if ptID < 0 || ptID >= numPts {
				err = multierr.Append(err, errors.Errorf("cell %d references point %d out of [0, %d)", cellID, ptID, numPts))
			}
		}
	}
	if total != cells.ConnectivitySize() {
		err = multierr.Append(err, errors.Errorf("connectivity size %d does not match the %d cell point references", cells.ConnectivitySize(), total))
	}
	return err
}
