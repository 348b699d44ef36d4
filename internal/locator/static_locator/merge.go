package static_locator

import (
	"math"

	"github.com/golang/glog"

	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

// Returns for every point the id of the point it merges into. Representatives map to
// themselves.
func (b *bucketList[T]) mergePoints(tol float64, strategy locator.MergeStrategy) []int {
	mergeMap := make([]int, b.numPts)
	parallel.For(b.numPts, 1<<16, func(begin, end int) {
		for i := begin; i < end; i++ {
			mergeMap[i] = -1
		}
	})

	switch {
	case tol <= 0:
		b.mergeCoincident(mergeMap)
	case strategy == locator.PointOrder:
		b.mergePointOrder(tol, mergeMap)
	default:
		b.mergeBinOrder(tol, mergeMap)
	}
	return mergeMap
}

// Coincident points always share a bucket, so buckets are merged independently. The lowest id
// of every group of coincident points is its representative.
func (b *bucketList[T]) mergeCoincident(mergeMap []int) {
	parallel.For(b.numBuckets, 256, func(begin, end int) {
		for bk := begin; bk < end; bk++ {
			tuples := b.bucket(bk)
			for i, tp := range tuples {
				p := int(tp.PtID)
				if mergeMap[p] >= 0 {
					continue
				}
				mergeMap[p] = p
				x := b.reader.Point(p)
				for _, tq := range tuples[i+1:] {
					if q := int(tq.PtID); mergeMap[q] < 0 && b.reader.Point(q) == x {
						mergeMap[q] = p
					}
				}
			}
		}
	})
}

// Visits the points in id order, every point not merged yet becomes the representative of the
// unmerged points within tol of it.
func (b *bucketList[T]) mergePointOrder(tol float64, mergeMap []int) {
	var buf []int
	for p := 0; p < b.numPts; p++ {
		if mergeMap[p] >= 0 {
			continue
		}
		mergeMap[p] = p
		buf = b.appendPointsWithinRadius(tol, b.reader.Point(p), buf[:0])
		for _, q := range buf {
			if mergeMap[q] < 0 {
				mergeMap[q] = p
			}
		}
	}
}

// Processes the buckets in waves. A point of bucket B only reads and writes the merge entries
// of points in buckets within reach of B, so two buckets at least 2*reach+1 apart along some
// axis can be merged concurrently. The grid is tiled with super blocks of that side and every
// wave merges the buckets at the same position in each super block.
func (b *bucketList[T]) mergeBinOrder(tol float64, mergeMap []int) {
	var reach, side [3]int
	for i := 0; i < 3; i++ {
		reach[i] = int(math.Ceil(tol * b.fx[i]))
		side[i] = 2*reach[i] + 1
	}

	waves := 0
	for oz := 0; oz < min(side[2], b.divs[2]); oz++ {
		for oy := 0; oy < min(side[1], b.divs[1]); oy++ {
			for ox := 0; ox < min(side[0], b.divs[0]); ox++ {
				origin := [3]int{ox, oy, oz}
				var count [3]int
				for i := 0; i < 3; i++ {
					count[i] = (b.divs[i] - origin[i] + side[i] - 1) / side[i]
				}
				parallel.For(count[0]*count[1]*count[2], 1, func(begin, end int) {
					var buf []int
					for s := begin; s < end; s++ {
						ijk := [3]int{
							origin[0] + (s%count[0])*side[0],
							origin[1] + ((s/count[0])%count[1])*side[1],
							origin[2] + (s/(count[0]*count[1]))*side[2],
						}
						buf = b.mergeBucket(ijk, reach, tol, mergeMap, buf)
					}
				})
				waves++
			}
		}
	}
	glog.V(3).Infof("merged %d points with tolerance %g in %d waves", b.numPts, tol, waves)
}

func (b *bucketList[T]) mergeBucket(ijk, reach [3]int, tol float64, mergeMap, buf []int) []int {
	for _, tp := range b.bucket(b.flatten(ijk)) {
		p := int(tp.PtID)
		if mergeMap[p] >= 0 {
			continue
		}
		mergeMap[p] = p
		x := b.reader.Point(p)
		lo, hi := b.footprint(x, tol)
		for i := 0; i < 3; i++ {
			lo[i] = max(lo[i], ijk[i]-reach[i])
			hi[i] = min(hi[i], ijk[i]+reach[i])
		}
		buf = b.appendPointsInRange(tol*tol, x, lo, hi, buf[:0])
		for _, q := range buf {
			if mergeMap[q] < 0 {
				mergeMap[q] = p
			}
		}
	}
	return buf
}
