package octree_locator

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/geometry"
	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/locator/static_locator"
	"github.com/ecopia-map/mesh_locator/internal/metrics"
	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

func randomPoints(seed int64, n int, scale float64) []r3.Vector {
	rnd := rand.New(rand.NewSource(seed))
	points := make([]r3.Vector, n)
	for i := range points {
		points[i] = r3.Vector{X: rnd.Float64() * scale, Y: rnd.Float64() * scale, Z: rnd.Float64() * scale}
	}
	return points
}

func buildLocator(t *testing.T, ds data.PointSet, opts *locator.LocatorOptions) *OctreePointLocator {
	t.Helper()
	l := NewOctreePointLocator(opts)
	l.SetDataSet(ds)
	require.NoError(t, l.BuildLocator())
	require.NoError(t, l.validate())
	return l
}

func bruteClosestN(ds data.PointSet, n int, x r3.Vector) []int {
	reader := data.NewPointReader(ds)
	list := locator.NewNeighborList(n)
	for id := 0; id < ds.NumberOfPoints(); id++ {
		list.Insert(id, geometry.Distance2(geometry.ToArray(x), reader.Point(id)))
	}
	return list.IDs()
}

func bruteWithinRadius(ds data.PointSet, r float64, x r3.Vector) []int {
	reader := data.NewPointReader(ds)
	var ids []int
	for id := 0; id < ds.NumberOfPoints(); id++ {
		if geometry.Distance2(geometry.ToArray(x), reader.Point(id)) <= r*r {
			ids = append(ids, id)
		}
	}
	return ids
}

func TestGetOctantFromElement(t *testing.T) {
	center := [3]float64{0, 0, 0}
	assert.Equal(t, 0, getOctantFromElement([3]float64{-1, -1, -1}, center))
	assert.Equal(t, 0, getOctantFromElement([3]float64{0, 0, 0}, center))
	assert.Equal(t, 1, getOctantFromElement([3]float64{1, -1, -1}, center))
	assert.Equal(t, 2, getOctantFromElement([3]float64{-1, 1, -1}, center))
	assert.Equal(t, 4, getOctantFromElement([3]float64{-1, -1, 1}, center))
	assert.Equal(t, 7, getOctantFromElement([3]float64{1, 1, 1}, center))

	box := geometry.NewBoundingBoxFromBounds([6]float64{0, 2, 0, 4, 0, 8})
	assert.Equal(t, [6]float64{0, 1, 0, 2, 0, 4}, getOctantBoundingBox(0, box).GetBounds())
	assert.Equal(t, [6]float64{1, 2, 0, 2, 4, 8}, getOctantBoundingBox(5, box).GetBounds())
	assert.Equal(t, [6]float64{1, 2, 2, 4, 4, 8}, getOctantBoundingBox(7, box).GetBounds())
}

func TestFindClosestPointOnLattice(t *testing.T) {
	mesh := data.NewHexahedronGrid(3, 3, 3, 1.0)
	for _, perRegion := range []int{1, 4, 100} {
		opts := locator.DefaultLocatorOptions()
		opts.MaximumPointsPerRegion = perRegion
		l := buildLocator(t, mesh, opts)

		assert.Equal(t, 13, l.FindClosestPoint(r3.Vector{X: 1, Y: 1, Z: 1}))
		assert.Equal(t, 26, l.FindClosestPoint(r3.Vector{X: 100, Y: 100, Z: 100}))
		assert.Equal(t, 0, l.FindClosestPoint(r3.Vector{X: -100, Y: -50, Z: -10}))

		id, dist2 := l.FindClosestPointWithinRadius(0.5, r3.Vector{X: 1, Y: 1, Z: 1.25})
		assert.Equal(t, 13, id)
		assert.InDelta(t, 0.0625, dist2, 1e-12)
		id, _ = l.FindClosestPointWithinRadius(0.5, r3.Vector{X: 5, Y: 5, Z: 5})
		assert.Equal(t, -1, id)
	}
}

func TestLatticeTiesGoToLowestId(t *testing.T) {
	mesh := data.NewHexahedronGrid(5, 5, 5, 1.0)
	opts := locator.DefaultLocatorOptions()
	opts.MaximumPointsPerRegion = 3
	l := buildLocator(t, mesh, opts)
	rnd := rand.New(rand.NewSource(3))
	for q := 0; q < 500; q++ {
		x := r3.Vector{X: float64(rnd.Intn(10)) / 2, Y: float64(rnd.Intn(10)) / 2, Z: float64(rnd.Intn(10)) / 2}
		expected := bruteClosestN(mesh, 6, x)
		require.Equal(t, expected[0], l.FindClosestPoint(x), "query %v", x)
		require.Equal(t, expected, l.FindClosestNPoints(6, x), "query %v", x)
	}
}

func TestOctreeMatchesBruteForce(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		numPts    int
		perRegion int
		cubic     bool
	}{
		{"serial", 1, 2000, 10, true},
		{"parallel classification", 8, 40000, 100, true},
		{"not cubic", 4, 3000, 20, false},
		{"single region", 4, 500, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := parallel.SetWorkers(tt.workers)
			t.Cleanup(func() { parallel.SetWorkers(previous) })

			mesh := data.NewMeshFromPoints(randomPoints(17, tt.numPts, 10))
			opts := locator.DefaultLocatorOptions()
			opts.MaximumPointsPerRegion = tt.perRegion
			opts.CreateCubicOctants = tt.cubic
			l := buildLocator(t, mesh, opts)

			rnd := rand.New(rand.NewSource(9))
			for q := 0; q < 200; q++ {
				x := r3.Vector{X: rnd.Float64()*14 - 2, Y: rnd.Float64()*14 - 2, Z: rnd.Float64()*14 - 2}
				expected := bruteClosestN(mesh, 8, x)
				require.Equal(t, expected[0], l.FindClosestPoint(x), "query %v", x)
				require.Equal(t, expected, l.FindClosestNPoints(8, x), "query %v", x)

				found := l.FindPointsWithinRadius(1.5, x)
				slices.Sort(found)
				require.Equal(t, bruteWithinRadius(mesh, 1.5, x), found, "query %v", x)
			}
		})
	}
}

func TestOctreeAgreesWithBucketsAndKdTree(t *testing.T) {
	points := randomPoints(23, 10000, 1)
	mesh := data.NewMeshFromPoints(points)
	octree := buildLocator(t, mesh, nil)

	buckets := static_locator.NewStaticPointLocator(nil)
	buckets.SetDataSet(mesh)
	require.NoError(t, buckets.BuildLocator())

	kdPoints := make(kdtree.Points, len(points))
	for i, p := range points {
		kdPoints[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	tree := kdtree.New(kdPoints, false)

	rnd := rand.New(rand.NewSource(29))
	for q := 0; q < 1000; q++ {
		x := r3.Vector{X: rnd.Float64()*1.2 - 0.1, Y: rnd.Float64()*1.2 - 0.1, Z: rnd.Float64()*1.2 - 0.1}
		id := octree.FindClosestPoint(x)
		require.Equal(t, buckets.FindClosestPoint(x), id, "query %v", x)

		_, kdDist2 := tree.Nearest(kdtree.Point{x.X, x.Y, x.Z})
		require.InDelta(t, kdDist2, x.Sub(points[id]).Norm2(), 1e-12, "query %v", x)
	}
}

func TestFindPointsWithinRadiusEdgeCases(t *testing.T) {
	mesh := data.NewHexahedronGrid(4, 4, 4, 1.0)
	l := buildLocator(t, mesh, nil)

	assert.Empty(t, l.FindPointsWithinRadius(-1, r3.Vector{X: 1, Y: 1, Z: 1}))
	assert.Equal(t, []int{21}, l.FindPointsWithinRadius(0, r3.Vector{X: 1, Y: 1, Z: 1}))
	assert.Empty(t, l.FindPointsWithinRadius(0, r3.Vector{X: 1.5, Y: 1, Z: 1}))

	found := l.FindPointsWithinRadius(1, r3.Vector{X: 1, Y: 1, Z: 1})
	slices.Sort(found)
	assert.Equal(t, []int{5, 17, 20, 21, 22, 25, 37}, found)

	assert.Empty(t, l.FindClosestNPoints(0, r3.Vector{}))
	assert.Len(t, l.FindClosestNPoints(1000, r3.Vector{}), 64)
}

func TestRegions(t *testing.T) {
	mesh := data.NewMeshFromPoints(randomPoints(31, 5000, 10))
	opts := locator.DefaultLocatorOptions()
	opts.MaximumPointsPerRegion = 50
	l := buildLocator(t, mesh, opts)
	require.Greater(t, l.GetNumberOfLeafNodes(), 1)

	total := 0
	for leafID := 0; leafID < l.GetNumberOfLeafNodes(); leafID++ {
		ids, err := l.GetPointsInRegion(leafID)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(ids), 50)
		total += len(ids)

		bounds, err := l.GetRegionBounds(leafID)
		require.NoError(t, err)
		region := geometry.NewBoundingBoxFromBounds(bounds)
		dataBounds, err := l.GetRegionDataBounds(leafID)
		require.NoError(t, err)
		if len(ids) > 0 {
			assert.True(t, region.Contains(geometry.NewBoundingBoxFromBounds(dataBounds)))
		}
		for _, id := range ids {
			assert.Equal(t, leafID, l.GetRegionContainingPoint(mesh.Point(id)))
		}
	}
	assert.Equal(t, 5000, total)

	_, err := l.GetPointsInRegion(l.GetNumberOfLeafNodes())
	assert.Error(t, err)
	_, err = l.GetRegionBounds(-1)
	assert.Error(t, err)

	assert.Equal(t, -1, l.GetRegionContainingPoint(r3.Vector{X: 20, Y: 5, Z: 5}))

	root := l.GetRootNode()
	require.NotNil(t, root)
	assert.False(t, root.IsLeaf())
	assert.Equal(t, -1, root.GetID())
	assert.Equal(t, 5000, root.NumberOfPoints())
	sum := 0
	for o := 0; o < 8; o++ {
		child := l.GetChild(root, o)
		assert.Equal(t, 1, child.GetLevel())
		assert.True(t, root.GetBoundingBox().Contains(child.GetBoundingBox()))
		sum += child.NumberOfPoints()
	}
	assert.Equal(t, 5000, sum)

	assert.Len(t, l.GenerateRepresentation(-1), l.GetNumberOfLeafNodes())
	assert.Len(t, l.GenerateRepresentation(0), 1)
	assert.Len(t, l.GenerateRepresentation(1), 8)
	assert.Greater(t, l.GetActualMemorySize(), int64(0))
}

func TestCubicRoot(t *testing.T) {
	mesh := data.NewMeshFromPoints([]r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 10, Y: 2, Z: 1}})
	l := buildLocator(t, mesh, nil)
	lengths := geometry.NewBoundingBoxFromBounds(l.GetBounds()).GetLengths()
	assert.InDelta(t, lengths[0], lengths[1], 1e-9)
	assert.InDelta(t, lengths[0], lengths[2], 1e-9)
	assert.Greater(t, lengths[0], 10.0)

	l.SetCreateCubicOctants(false)
	require.NoError(t, l.BuildLocator())
	lengths = geometry.NewBoundingBoxFromBounds(l.GetBounds()).GetLengths()
	assert.Less(t, lengths[2], lengths[0])
}

func TestFindPointsInArea(t *testing.T) {
	mesh := data.NewMeshFromPoints(randomPoints(37, 3000, 10))
	opts := locator.DefaultLocatorOptions()
	opts.MaximumPointsPerRegion = 16
	l := buildLocator(t, mesh, opts)

	area := [6]float64{2, 6, 1, 4, 3, 9}
	box := geometry.NewBoundingBoxFromBounds(area)
	var expected []int
	for id := 0; id < mesh.NumberOfPoints(); id++ {
		if box.ContainsPoint(geometry.ToArray(mesh.Point(id))) {
			expected = append(expected, id)
		}
	}
	found := l.FindPointsInArea(area)
	slices.Sort(found)
	assert.Equal(t, expected, found)

	all := l.FindPointsInArea([6]float64{-1, 11, -1, 11, -1, 11})
	assert.Len(t, all, 3000)
}

func TestCoincidentPointsStopAtMaxLevel(t *testing.T) {
	points := make([]r3.Vector, 300)
	for i := range points {
		points[i] = r3.Vector{X: 1, Y: 2, Z: 3}
	}
	points = append(points, r3.Vector{X: 4, Y: 4, Z: 4})
	mesh := data.NewMeshFromPoints(points)
	opts := locator.DefaultLocatorOptions()
	opts.MaxLevel = 6
	l := buildLocator(t, mesh, opts)

	assert.Equal(t, 0, l.FindClosestPoint(r3.Vector{X: 1, Y: 2, Z: 3}))
	assert.Equal(t, 300, l.FindClosestPoint(r3.Vector{X: 5, Y: 5, Z: 5}))
	assert.Len(t, l.FindPointsWithinRadius(0, r3.Vector{X: 1, Y: 2, Z: 3}), 300)
	for _, box := range l.GenerateRepresentation(-1) {
		assert.True(t, box.IsValid())
	}

	single := buildLocator(t, data.NewMeshFromPoints([]r3.Vector{{X: 1, Y: 1, Z: 1}}), nil)
	assert.Equal(t, 0, single.FindClosestPoint(r3.Vector{X: -3, Y: 8, Z: 1}))
	assert.Equal(t, 0, single.GetRegionContainingPoint(r3.Vector{X: 1, Y: 1, Z: 1}))
}

func TestEmptyAndMissingDataSet(t *testing.T) {
	l := NewOctreePointLocator(nil)
	assert.ErrorIs(t, l.BuildLocator(), data.ErrNoDataSet)
	assert.Equal(t, -1, l.FindClosestPoint(r3.Vector{}))
	assert.Nil(t, l.FindClosestNPoints(3, r3.Vector{}))
	assert.Nil(t, l.GetRootNode())

	l.SetDataSet(data.NewMesh(nil))
	require.NoError(t, l.BuildLocator())
	assert.Equal(t, -1, l.FindClosestPoint(r3.Vector{}))
	id, _ := l.FindClosestPointWithinRadius(math.Inf(1), r3.Vector{})
	assert.Equal(t, -1, id)
	assert.Empty(t, l.FindPointsWithinRadius(1, r3.Vector{}))
	assert.Equal(t, 0, l.GetNumberOfLeafNodes())
	assert.Equal(t, -1, l.GetRegionContainingPoint(r3.Vector{}))
}

func TestBuildIsMemoized(t *testing.T) {
	mesh := data.NewMeshFromPoints(randomPoints(41, 1000, 1))
	l := NewOctreePointLocator(nil)
	l.SetDataSet(mesh)

	before := testutil.ToFloat64(metrics.Builds(metrics.OctreePointLocator))
	require.NoError(t, l.BuildLocator())
	require.NoError(t, l.BuildLocator())
	assert.Equal(t, 1, l.BuildCount())

	mesh.Modified()
	require.NoError(t, l.BuildLocator())
	assert.Equal(t, 2, l.BuildCount())

	l.SetMaxLevel(l.GetMaxLevel())
	require.NoError(t, l.BuildLocator())
	assert.Equal(t, 2, l.BuildCount())

	l.SetMaximumPointsPerRegion(10)
	assert.Equal(t, 10, l.GetMaximumPointsPerRegion())
	require.NoError(t, l.BuildLocator())
	assert.Equal(t, 3, l.BuildCount())

	require.NoError(t, l.ForceBuildLocator())
	assert.Equal(t, 4, l.BuildCount())
	assert.Equal(t, before+4, testutil.ToFloat64(metrics.Builds(metrics.OctreePointLocator)))

	l.FreeSearchStructure()
	assert.Equal(t, -1, l.FindClosestPoint(r3.Vector{}))
	require.NoError(t, l.BuildLocator())
	assert.Equal(t, 5, l.BuildCount())
}

func TestCoordinateStorages(t *testing.T) {
	points := randomPoints(43, 2000, 5)
	coords := make([]float32, 0, 3*len(points))
	for i, p := range points {
		// round through float32 so every storage holds the same coordinates
		p = r3.Vector{X: float64(float32(p.X)), Y: float64(float32(p.Y)), Z: float64(float32(p.Z))}
		points[i] = p
		coords = append(coords, float32(p.X), float32(p.Y), float32(p.Z))
	}
	f64 := buildLocator(t, data.NewMeshFromPoints(points), nil)
	f32 := buildLocator(t, data.NewFloat32Points(coords), nil)

	rnd := rand.New(rand.NewSource(47))
	for q := 0; q < 200; q++ {
		x := r3.Vector{X: rnd.Float64() * 5, Y: rnd.Float64() * 5, Z: rnd.Float64() * 5}
		require.Equal(t, f64.FindClosestPoint(x), f32.FindClosestPoint(x))
		require.Equal(t, f64.FindClosestNPoints(4, x), f32.FindClosestNPoints(4, x))
	}
}

var _ locator.IPointLocator = (*OctreePointLocator)(nil)
