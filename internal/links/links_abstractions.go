package links

import (
	"github.com/ecopia-map/mesh_locator/internal/data"
)

// ICellLinks is the point to cell adjacency surface shared by CellLinks and StaticCellLinks
type ICellLinks interface {
	SetDataSet(ds data.DataSet)
	GetDataSet() data.DataSet
	// Builds the links unless they are already newer than the data set
	BuildLinks() error
	BuildCount() int
	Initialize()
	Squeeze()

	GetNumberOfPoints() int
	// Returns the cells using the point
	GetCells(ptID int) []int
	SelectCells(minMaxDegree [2]int, cellSelection []uint8) error
	// Returns the memory used in kibibytes
	GetActualMemorySize() int64
}

var (
	_ ICellLinks = (*CellLinks)(nil)
	_ ICellLinks = (*StaticCellLinks)(nil)
)
