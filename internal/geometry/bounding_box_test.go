package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxAddPoint(t *testing.T) {
	box := NewBoundingBox()
	require.False(t, box.IsValid())

	box.AddPoint([3]float64{1, 2, 3})
	require.True(t, box.IsValid())
	assert.Equal(t, [6]float64{1, 1, 2, 2, 3, 3}, box.GetBounds())

	box.AddPoint([3]float64{-1, 5, 0})
	assert.Equal(t, [6]float64{-1, 1, 2, 5, 0, 3}, box.GetBounds())
	assert.Equal(t, [3]float64{2, 3, 3}, box.GetLengths())
	assert.Equal(t, 3.0, box.GetMaxLength())
	assert.Equal(t, [3]float64{0, 3.5, 1.5}, box.GetCenter())
}

func TestBoundingBoxAddBox(t *testing.T) {
	box := NewBoundingBoxFromBounds([6]float64{0, 1, 0, 1, 0, 1})
	box.AddBox(NewBoundingBox())
	assert.Equal(t, [6]float64{0, 1, 0, 1, 0, 1}, box.GetBounds())

	box.AddBox(NewBoundingBoxFromBounds([6]float64{-1, 0.5, 0, 2, 0.5, 0.7}))
	assert.Equal(t, [6]float64{-1, 1, 0, 2, 0, 1}, box.GetBounds())

	box.AddBounds([6]float64{5, 4, 0, 0, 0, 0})
	assert.Equal(t, [6]float64{-1, 1, 0, 2, 0, 1}, box.GetBounds())
}

func TestBoundingBoxIntersectBox(t *testing.T) {
	box := NewBoundingBoxFromBounds([6]float64{0, 2, 0, 2, 0, 2})

	ok := box.IntersectBox(NewBoundingBoxFromBounds([6]float64{3, 4, 0, 1, 0, 1}))
	require.False(t, ok)
	assert.Equal(t, [6]float64{0, 2, 0, 2, 0, 2}, box.GetBounds())

	ok = box.IntersectBox(NewBoundingBoxFromBounds([6]float64{1, 4, -1, 1, 0.5, 1.5}))
	require.True(t, ok)
	assert.Equal(t, [6]float64{1, 2, 0, 1, 0.5, 1.5}, box.GetBounds())

	// touching faces intersect in a flat box
	flat := NewBoundingBoxFromBounds([6]float64{0, 1, 0, 1, 0, 1})
	require.True(t, flat.IntersectBox(NewBoundingBoxFromBounds([6]float64{1, 2, 0, 1, 0, 1})))
	assert.Equal(t, 0.0, flat.GetLength(0))
}

func TestBoundingBoxPredicates(t *testing.T) {
	box := NewBoundingBoxFromBounds([6]float64{0, 1, 0, 1, 0, 1})

	assert.True(t, box.Intersects(NewBoundingBoxFromBounds([6]float64{1, 2, 1, 2, 1, 2})))
	assert.False(t, box.Intersects(NewBoundingBoxFromBounds([6]float64{1.1, 2, 0, 1, 0, 1})))
	assert.False(t, box.Intersects(NewBoundingBox()))

	assert.True(t, box.ContainsPoint([3]float64{1, 1, 1}))
	assert.True(t, box.ContainsPoint([3]float64{0, 0.5, 0}))
	assert.False(t, box.ContainsPoint([3]float64{0, 0.5, -1e-9}))

	inner := NewBoundingBoxFromBounds([6]float64{0.2, 0.8, 0, 1, 0.5, 0.6})
	assert.True(t, box.Contains(inner))
	assert.True(t, inner.IsSubsetOf(box))
	assert.False(t, inner.Contains(box))

	assert.True(t, box.IntersectsSphere([3]float64{2, 0.5, 0.5}, 1.0))
	assert.False(t, box.IntersectsSphere([3]float64{2, 2, 0.5}, 1.0))
	assert.True(t, box.IntersectsSphere([3]float64{0.5, 0.5, 0.5}, 0))
}

func TestBoundingBoxIntersectsLine(t *testing.T) {
	box := NewBoundingBoxFromBounds([6]float64{0, 1, 0, 1, 0, 1})

	tests := []struct {
		name   string
		p1, p2 [3]float64
		want   bool
	}{
		{"crossing", [3]float64{-1, 0.5, 0.5}, [3]float64{2, 0.5, 0.5}, true},
		{"inside", [3]float64{0.2, 0.2, 0.2}, [3]float64{0.3, 0.3, 0.3}, true},
		{"along a face", [3]float64{-1, 1, 0.5}, [3]float64{2, 1, 0.5}, true},
		{"touching a corner", [3]float64{2, 2, 2}, [3]float64{1, 1, 1}, true},
		{"short of the box", [3]float64{-2, 0.5, 0.5}, [3]float64{-1, 0.5, 0.5}, false},
		{"passing by", [3]float64{-1, 1.5, 0.5}, [3]float64{2, 1.5, 0.5}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, box.IntersectsLine(tc.p1, tc.p2))
		})
	}

	t0, t1, ok := box.ClipLine([3]float64{-1, 0.5, 0.5}, [3]float64{3, 0.5, 0.5})
	require.True(t, ok)
	assert.InDelta(t, 0.25, t0, 1e-12)
	assert.InDelta(t, 0.5, t1, 1e-12)
}

func TestContainsLine(t *testing.T) {
	center := [3]float64{0, 0, 0}
	half := [3]float64{1, 1, 1}

	contained, _, _, plane := ContainsLine(center, half, [3]float64{0.5, -0.5, 1})
	assert.True(t, contained)
	assert.Equal(t, -1, plane)

	contained, tt, xInt, plane := ContainsLine(center, half, [3]float64{4, 0, 0})
	require.False(t, contained)
	assert.Equal(t, 1, plane)
	assert.InDelta(t, 0.25, tt, 1e-12)
	assert.Equal(t, [3]float64{1, 0, 0}, xInt)

	contained, tt, xInt, plane = ContainsLine(center, half, [3]float64{0.5, -2, 0})
	require.False(t, contained)
	assert.Equal(t, 2, plane)
	assert.InDelta(t, 0.5, tt, 1e-12)
	assert.InDelta(t, 0.25, xInt[0], 1e-12)
	assert.Equal(t, -1.0, xInt[1])

	// the nearest exit plane wins
	contained, _, _, plane = ContainsLine(center, half, [3]float64{0, 3, -4})
	require.False(t, contained)
	assert.Equal(t, 4, plane)
}

func TestBoundingBoxInflate(t *testing.T) {
	point := NewBoundingBox()
	point.AddPoint([3]float64{1, 1, 1})
	point.Inflate()
	assert.Equal(t, [6]float64{0.5, 1.5, 0.5, 1.5, 0.5, 1.5}, point.GetBounds())

	flat := NewBoundingBoxFromBounds([6]float64{0, 10, 2, 2, 0, 4})
	flat.Inflate()
	assert.InDelta(t, 1.95, flat.MinPoint[1], 1e-12)
	assert.InDelta(t, 2.05, flat.MaxPoint[1], 1e-12)
	assert.Equal(t, 10.0, flat.GetLength(0))
	assert.Equal(t, 4.0, flat.GetLength(2))

	flat.InflateBy(1)
	assert.Equal(t, 12.0, flat.GetLength(0))
}

func TestBoundingBoxDistance(t *testing.T) {
	box := NewBoundingBoxFromBounds([6]float64{0, 1, 0, 1, 0, 1})
	assert.Equal(t, 0.0, box.Distance2ToPoint([3]float64{0.5, 0.5, 0.5}))
	assert.Equal(t, 4.0, box.Distance2ToPoint([3]float64{3, 0.5, 0.5}))
	assert.Equal(t, 3.0, box.Distance2ToPoint([3]float64{-1, -1, 2}))
	assert.Equal(t, [3]float64{0, 0, 1}, box.ClampPoint([3]float64{-1, -1, 2}))
}

func TestComputeBounds(t *testing.T) {
	assert.False(t, ComputeBounds(nil).IsValid())

	box := ComputeBounds([]r3.Vector{{X: 1, Y: -2, Z: 3}, {X: -1, Y: 4, Z: 3}, {X: 0, Y: 0, Z: 5}})
	assert.Equal(t, [6]float64{-1, 1, -2, 4, 3, 5}, box.GetBounds())
}

func TestComputeInnerDimension(t *testing.T) {
	tests := []struct {
		name   string
		bounds [6]float64
		want   int
	}{
		{"point", [6]float64{1, 1, 2, 2, 3, 3}, 0},
		{"segment", [6]float64{0, 5, 2, 2, 3, 3}, 1},
		{"plane", [6]float64{0, 5, 0, 1, 3, 3}, 2},
		{"volume", [6]float64{0, 5, 0, 1, -1, 3}, 3},
		{"thin slab", [6]float64{0, 1e6, 0, 1e6, 0, 1e-9}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewBoundingBoxFromBounds(tt.bounds).ComputeInnerDimension())
		})
	}
	assert.Equal(t, 0, NewBoundingBox().ComputeInnerDimension())
}

func TestComputeDivisions(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		box := NewBoundingBox()
		box.AddPoint([3]float64{r.Float64(), r.Float64(), r.Float64()})
		box.AddPoint([3]float64{r.Float64() * 10, r.Float64() * 3, r.Float64() * 0.1})
		target := int64(1 + r.Intn(100000))

		bounds, divs, total := box.ComputeDivisions(target)
		require.LessOrEqual(t, total, target)
		require.Equal(t, int64(divs[0])*int64(divs[1])*int64(divs[2]), total)
		for j := 0; j < 3; j++ {
			require.GreaterOrEqual(t, divs[j], 1)
			require.Less(t, bounds[2*j], bounds[2*j+1])
		}
	}

	// a flat box only splits its two non-zero axes
	flat := NewBoundingBoxFromBounds([6]float64{0, 10, 0, 10, 3, 3})
	bounds, divs, total := flat.ComputeDivisions(100)
	assert.Equal(t, [3]int{10, 10, 1}, divs)
	assert.Equal(t, int64(100), total)
	assert.InDelta(t, 2.5, bounds[4], 1e-12)
	assert.InDelta(t, 3.5, bounds[5], 1e-12)

	// a degenerate box gets a single unit bin
	single := NewBoundingBox()
	single.AddPoint([3]float64{1, 2, 3})
	bounds, divs, total = single.ComputeDivisions(1000)
	assert.Equal(t, [3]int{1, 1, 1}, divs)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, [6]float64{0.5, 1.5, 1.5, 2.5, 2.5, 3.5}, bounds)
}

func TestDistanceToLine(t *testing.T) {
	dist2, tt, closest := DistanceToLine([3]float64{1, 1, 0}, [3]float64{0, 0, 0}, [3]float64{2, 0, 0})
	assert.Equal(t, 1.0, dist2)
	assert.Equal(t, 0.5, tt)
	assert.Equal(t, [3]float64{1, 0, 0}, closest)

	dist2, tt, _ = DistanceToLine([3]float64{4, 0, 0}, [3]float64{0, 0, 0}, [3]float64{2, 0, 0})
	assert.Equal(t, 0.0, dist2)
	assert.Equal(t, 2.0, tt)

	dist2, tt, _ = DistanceToSegment([3]float64{4, 0, 0}, [3]float64{0, 0, 0}, [3]float64{2, 0, 0})
	assert.Equal(t, 4.0, dist2)
	assert.Equal(t, 1.0, tt)

	assert.Equal(t, 2.0, math.Sqrt(Distance2([3]float64{0, 0, 0}, [3]float64{0, 2, 0})))
}
