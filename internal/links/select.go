package links

import (
	"sync/atomic"

	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

// Integer types usable as point/cell ids in the link structures
type IDType interface {
	~uint16 | ~int32 | ~int64
}

// Marks in cellSelection every cell used by a point whose degree lies in [min, max). Points
// are processed in parallel and several points may share a cell, so marks are first gathered
// with atomic ORs into a bitmap and then expanded into the byte array over disjoint ranges.
func selectCells[T IDType | ~int](numPts int, minMaxDegree [2]int, cellSelection []uint8, cellsOf func(ptID int) []T) {
	numCells := len(cellSelection)
	words := make([]uint32, (numCells+31)/32)

	parallel.For(numPts, 1024, func(begin, end int) {
		for ptID := begin; ptID < end; ptID++ {
			cells := cellsOf(ptID)
			if len(cells) < minMaxDegree[0] || len(cells) >= minMaxDegree[1] {
				continue
			}
			for _, cellID := range cells {
				atomic.OrUint32(&words[cellID>>5], 1<<(uint(cellID)&31))
			}
		}
	})

	parallel.For(numCells, 4096, func(begin, end int) {
		for cellID := begin; cellID < end; cellID++ {
			if words[cellID>>5]&(1<<(uint(cellID)&31)) != 0 {
				cellSelection[cellID] = 1
			} else {
				cellSelection[cellID] = 0
			}
		}
	})
}
