package static_locator

import (
	"math"

	"github.com/ecopia-map/mesh_locator/internal/geometry"
)

// LineIntersection describes the point found by IntersectWithLine
type LineIntersection struct {
	PointID int
	// Parametric coordinate along the segment of the projection of the point
	T float64
	// Projection of the point on the segment
	LineX [3]float64
	// Coordinates of the point
	PointX [3]float64
}

// Walks the buckets crossed by the segment a0-a1 in order of increasing t, sweeping around each
// bucket the ones holding points that can lie within tol of the segment. Stops as soon as the
// walk enters a bucket past the best candidate.
func (b *bucketList[T]) intersectWithLine(a0, a1 [3]float64, tol float64) (LineIntersection, bool) {
	tol = max(tol, 0)
	tol2 := tol * tol
	box := geometry.NewBoundingBoxFromBounds(b.bounds)
	box.InflateBy(tol)
	t0, t1, ok := box.ClipLine(a0, a1)
	if !ok {
		return LineIntersection{PointID: -1}, false
	}

	best := LineIntersection{PointID: -1, T: math.Inf(1)}
	visited := make([]uint64, (b.numBuckets+63)/64)
	sweep := func(ijk [3]int) {
		bucketBox := b.bucketBox(ijk)
		lo := b.bucketIndices([3]float64{bucketBox.MinPoint[0] - tol, bucketBox.MinPoint[1] - tol, bucketBox.MinPoint[2] - tol})
		hi := b.bucketIndices([3]float64{bucketBox.MaxPoint[0] + tol, bucketBox.MaxPoint[1] + tol, bucketBox.MaxPoint[2] + tol})
		for k := lo[2]; k <= hi[2]; k++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for i := lo[0]; i <= hi[0]; i++ {
					bk := b.flatten([3]int{i, j, k})
					if visited[bk>>6]&(1<<(uint(bk)&63)) != 0 {
						continue
					}
					visited[bk>>6] |= 1 << (uint(bk) & 63)
					for _, tp := range b.bucket(bk) {
						id := int(tp.PtID)
						x := b.reader.Point(id)
						dist2, t, closest := geometry.DistanceToLine(x, a0, a1)
						if t < 0 || t > 1 || dist2 > tol2 {
							continue
						}
						if t < best.T || t == best.T && id < best.PointID {
							best = LineIntersection{PointID: id, T: t, LineX: closest, PointX: x}
						}
					}
				}
			}
		}
	}

	var d [3]float64
	degenerate := true
	for i := 0; i < 3; i++ {
		d[i] = a1[i] - a0[i]
		degenerate = degenerate && d[i] == 0
	}
	if degenerate {
		sweep(b.bucketIndices(a0))
		return best, best.PointID >= 0
	}

	// indices along the walk are not clamped, the sweep clamps them
	var ijk, step [3]int
	var tMax, tDelta [3]float64
	for i := 0; i < 3; i++ {
		p := a0[i] + t0*d[i]
		ijk[i] = int(math.Floor((p - b.bmin[i]) * b.fx[i]))
		switch {
		case d[i] > 0:
			step[i] = 1
			tMax[i] = (b.bmin[i] + float64(ijk[i]+1)*b.h[i] - a0[i]) / d[i]
			tDelta[i] = b.h[i] / d[i]
		case d[i] < 0:
			step[i] = -1
			tMax[i] = (b.bmin[i] + float64(ijk[i])*b.h[i] - a0[i]) / d[i]
			tDelta[i] = -b.h[i] / d[i]
		default:
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	for tEnter := t0; tEnter <= t1; {
		if best.PointID >= 0 && tEnter > best.T {
			break
		}
		sweep(ijk)

		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		tEnter = tMax[axis]
		ijk[axis] += step[axis]
		tMax[axis] += tDelta[axis]
	}
	return best, best.PointID >= 0
}
