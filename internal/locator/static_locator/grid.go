package static_locator

import (
	"math"

	"github.com/ecopia-map/mesh_locator/internal/geometry"
)

// Uniform grid of buckets laid over the bounds of the point set. Buckets are flattened as
// i + j*divs[0] + k*divs[0]*divs[1].
type grid struct {
	divs       [3]int
	numBuckets int
	sliceSize  int
	bounds     [6]float64
	bmin       [3]float64
	h          [3]float64
	fx         [3]float64
	// slack absorbing round off between a coordinate and the box of its bucket
	pad [3]float64
}

func newGrid(bounds [6]float64, divs [3]int) grid {
	g := grid{
		divs:       divs,
		numBuckets: divs[0] * divs[1] * divs[2],
		sliceSize:  divs[0] * divs[1],
		bounds:     bounds,
	}
	for i := 0; i < 3; i++ {
		g.bmin[i] = bounds[2*i]
		g.h[i] = (bounds[2*i+1] - bounds[2*i]) / float64(divs[i])
		g.fx[i] = 1.0 / g.h[i]
		g.pad[i] = 1e-9 * max(g.h[i], math.Abs(bounds[2*i]), math.Abs(bounds[2*i+1]))
	}
	return g
}

// Index along one axis of the bucket containing coordinate x, clamped to the grid
func (g *grid) index(x float64, axis int) int {
	f := math.Floor((x - g.bmin[axis]) * g.fx[axis])
	if !(f >= 0) {
		return 0
	}
	if f >= float64(g.divs[axis]) {
		return g.divs[axis] - 1
	}
	return int(f)
}

func (g *grid) bucketIndices(x [3]float64) [3]int {
	return [3]int{g.index(x[0], 0), g.index(x[1], 1), g.index(x[2], 2)}
}

func (g *grid) flatten(ijk [3]int) int {
	return ijk[0] + ijk[1]*g.divs[0] + ijk[2]*g.sliceSize
}

func (g *grid) unflatten(bucket int) [3]int {
	return [3]int{bucket % g.divs[0], (bucket / g.divs[0]) % g.divs[1], bucket / g.sliceSize}
}

func (g *grid) bucketBox(ijk [3]int) geometry.BoundingBox {
	var box geometry.BoundingBox
	for i := 0; i < 3; i++ {
		box.MinPoint[i] = g.bmin[i] + float64(ijk[i])*g.h[i]
		box.MaxPoint[i] = box.MinPoint[i] + g.h[i]
	}
	return box
}

// Squared distance from x to the box of a bucket, 0 when x lies inside. The box is padded so
// the result never exceeds the distance to a point assigned to the bucket.
func (g *grid) bucketDistance2(x [3]float64, ijk [3]int) float64 {
	d2 := 0.0
	for i := 0; i < 3; i++ {
		lo := g.bmin[i] + float64(ijk[i])*g.h[i] - g.pad[i]
		if x[i] < lo {
			d2 += (lo - x[i]) * (lo - x[i])
		} else if hi := lo + g.h[i] + 2*g.pad[i]; x[i] > hi {
			d2 += (x[i] - hi) * (x[i] - hi)
		}
	}
	return d2
}

// Range of buckets overlapped by the axis aligned box of the sphere (x, r), clamped to the grid
func (g *grid) footprint(x [3]float64, r float64) (lo, hi [3]int) {
	for i := 0; i < 3; i++ {
		lo[i] = g.index(x[i]-r, i)
		hi[i] = g.index(x[i]+r, i)
	}
	return lo, hi
}

// Number of rings around any bucket needed to cover the whole grid
func (g *grid) maxLevel() int {
	return max(g.divs[0], g.divs[1], g.divs[2]) - 1
}

func (g *grid) smallestSpacing() float64 {
	return min(g.h[0], g.h[1], g.h[2])
}

// Calls fn for every bucket of the grid at Chebyshev distance exactly level from c
func (g *grid) forEachInShell(c [3]int, level int, fn func(ijk [3]int)) {
	if level == 0 {
		fn(c)
		return
	}
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		lo[i] = max(c[i]-level, 0)
		hi[i] = min(c[i]+level, g.divs[i]-1)
	}
	for k := lo[2]; k <= hi[2]; k++ {
		onK := k == c[2]-level || k == c[2]+level
		for j := lo[1]; j <= hi[1]; j++ {
			if onK || j == c[1]-level || j == c[1]+level {
				for i := lo[0]; i <= hi[0]; i++ {
					fn([3]int{i, j, k})
				}
				continue
			}
			if i := c[0] - level; i >= 0 {
				fn([3]int{i, j, k})
			}
			if i := c[0] + level; i < g.divs[0] {
				fn([3]int{i, j, k})
			}
		}
	}
}

func chebyshev(a, b [3]int) int {
	d := 0
	for i := 0; i < 3; i++ {
		d = max(d, abs(a[i]-b[i]))
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
