package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

func withWorkers(t *testing.T, n int) {
	t.Helper()
	previous := parallel.SetWorkers(n)
	t.Cleanup(func() { parallel.SetWorkers(previous) })
}

func TestStaticCellLinksSingleHexahedron(t *testing.T) {
	mesh := data.NewHexahedronGrid(2, 2, 2, 1.0)
	require.Equal(t, 1, mesh.NumberOfCells())

	links := NewStaticCellLinks()
	links.SetDataSet(mesh)
	require.NoError(t, links.BuildLinks())
	assert.Equal(t, Width16, links.GetIDWidth())
	assert.Equal(t, 8, links.GetNumberOfPoints())

	for ptID := 0; ptID < 8; ptID++ {
		assert.Equal(t, 1, links.GetNumberOfCells(ptID))
		assert.Equal(t, []int{0}, links.GetCells(ptID))
	}
}

func TestStaticCellLinksMatchNaiveScan(t *testing.T) {
	tests := []struct {
		name     string
		workers  int
		numPts   int
		numCells int
	}{
		{"serial small", 1, 50, 40},
		{"serial large", 1, 2000, 5000},
		{"parallel", 8, 2000, 5000},
		{"parallel many points", 4, 20000, 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withWorkers(t, tt.workers)
			mesh := randomMesh(t, 7, tt.numPts, tt.numCells)
			expected := naiveLinks(mesh)

			links := NewStaticCellLinks()
			links.SetDataSet(mesh)
			require.NoError(t, links.BuildLinks())
			require.NoError(t, links.impl.validate())

			var buf []int
			for ptID := 0; ptID < tt.numPts; ptID++ {
				require.Equal(t, len(expected[ptID]), links.GetNumberOfCells(ptID))
				buf = links.AppendCells(ptID, buf[:0])
				if len(expected[ptID]) == 0 {
					assert.Empty(t, buf)
				} else {
					assert.Equal(t, expected[ptID], buf, "point %d", ptID)
				}
			}
		})
	}
}

func TestStaticCellLinksWidths(t *testing.T) {
	assert.Equal(t, Width16, SelectIDWidth(100))
	assert.Equal(t, Width32, SelectIDWidth(70000))
	assert.Equal(t, Width64, SelectIDWidth(1<<31))

	mesh := randomMesh(t, 3, 300, 600)
	expected := naiveLinks(mesh)
	build := func(l interface {
		BuildLinks(data.DataSet) error
		appendCells(int, []int) []int
		validate() error
	}) {
		require.NoError(t, l.BuildLinks(mesh))
		require.NoError(t, l.validate())
		for ptID := range expected {
			assert.Equal(t, len(expected[ptID]), len(l.appendCells(ptID, nil)))
		}
	}
	build(&Links[uint16]{})
	build(&Links[int32]{})
	build(&Links[int64]{})

	wide := &Links[int64]{}
	require.NoError(t, wide.BuildLinks(mesh))
	narrow := &Links[uint16]{}
	require.NoError(t, narrow.BuildLinks(mesh))
	assert.Greater(t, wide.GetActualMemorySize(), narrow.GetActualMemorySize())
	assert.Equal(t, int(wide.GetOffsets()[300]), mesh.ConnectivitySize())
}

func TestStaticCellLinksWidthExceeded(t *testing.T) {
	mesh := data.NewHexahedronGrid(70, 70, 20, 1.0)
	links := &Links[uint16]{}
	assert.ErrorIs(t, links.BuildLinks(mesh), ErrIDWidthExceeded)
	assert.Equal(t, 0, links.GetNumberOfPoints())

	auto := NewStaticCellLinks()
	auto.SetDataSet(mesh)
	require.NoError(t, auto.BuildLinks())
	assert.Equal(t, Width32, auto.GetIDWidth())
}

func TestStaticCellLinksQueriesBeforeBuild(t *testing.T) {
	links := NewStaticCellLinks()
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, links.GetNumberOfCells(0))
		assert.Nil(t, links.GetCells(0))
		assert.Equal(t, []int{7}, links.AppendCells(0, []int{7}))
	})

	mesh := data.NewHexahedronGrid(2, 2, 2, 1.0)
	links.SetDataSet(mesh)
	selection := make([]uint8, mesh.NumberOfCells())
	assert.ErrorIs(t, links.SelectCells([2]int{0, 10}, selection), ErrNotBuilt)

	require.NoError(t, links.BuildLinks())
	assert.Equal(t, []int{0}, links.GetCells(7))
	require.NoError(t, links.SelectCells([2]int{0, 10}, selection))
	assert.Equal(t, []uint8{1}, selection)
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, links.GetNumberOfCells(-1))
		assert.Nil(t, links.GetCells(8))
		assert.Equal(t, []int{3}, links.AppendCells(8, []int{3}))
	})
}

func TestStaticCellLinksMemoizationAndCopies(t *testing.T) {
	mesh := data.NewHexahedronGrid(4, 4, 4, 1.0)
	links := NewStaticCellLinks()
	assert.ErrorIs(t, links.BuildLinks(), data.ErrNoDataSet)

	links.SetDataSet(mesh)
	require.NoError(t, links.BuildLinks())
	offsets := links.impl.(*Links[uint16]).GetOffsets()
	require.NoError(t, links.BuildLinks())
	assert.Equal(t, 1, links.BuildCount())
	assert.Same(t, &offsets[0], &links.impl.(*Links[uint16]).GetOffsets()[0])

	deep := NewStaticCellLinks()
	deep.DeepCopy(links)
	shallow := NewStaticCellLinks()
	shallow.ShallowCopy(links)
	assert.Equal(t, links.GetCells(21), deep.GetCells(21))
	assert.Equal(t, links.GetCells(21), shallow.GetCells(21))
	assert.Len(t, links.GetCells(21), 8)

	selection := make([]uint8, mesh.NumberOfCells())
	require.NoError(t, deep.SelectCells([2]int{8, 9}, selection))
	// the 8 interior points of a 4x4x4 lattice touch every cell
	for _, s := range selection {
		assert.Equal(t, uint8(1), s)
	}
	assert.ErrorIs(t, deep.SelectCells([2]int{8, 9}, selection[:2]), ErrSelectionSize)

	links.Initialize()
	assert.Equal(t, 0, links.GetNumberOfPoints())
	assert.Equal(t, int64(0), links.GetActualMemorySize())
	assert.Len(t, shallow.GetCells(21), 8)
}
