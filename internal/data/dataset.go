package data

import (
	"sync/atomic"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Returned by builds invoked before a data set was attached
var ErrNoDataSet = errors.New("no data set")

// Contains the read-only view of a point set needed to build and query point locators
type PointSet interface {
	NumberOfPoints() int
	Point(id int) r3.Vector
	// Bounds ordered as (xmin, xmax, ymin, ymax, zmin, zmax)
	Bounds() [6]float64
	// Monotonic modification time, see NextMTime
	MTime() uint64
}

// Point set with cells, as needed to build point to cell links
type DataSet interface {
	PointSet
	NumberOfCells() int
	// Returns the point ids of the given cell. The slice must not be modified.
	CellPoints(cellID int) []int
	// Total number of point references over all cells
	ConnectivitySize() int
}

// Implemented by point sets storing their coordinates as a flat xyz float64 slice
type Float64Storage interface {
	Float64Coordinates() []float64
}

// Implemented by point sets storing their coordinates as a flat xyz float32 slice
type Float32Storage interface {
	Float32Coordinates() []float32
}

var clock atomic.Uint64

// Returns a new modification time, greater than every time returned before. Data sets and
// index structures stamp themselves with it when modified or built so that builds can be
// skipped when nothing changed since.
func NextMTime() uint64 {
	return clock.Add(1)
}
