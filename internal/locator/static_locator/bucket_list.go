package static_locator

import (
	"cmp"
	"math"

	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/geometry"
	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

const (
	// number of sorted tuples scanned by one task of the offset construction
	offsetBatchSize = 4096
	// cap on the number of growing footprints searched by FindClosestPointWithinRadius
	maxRadiusIterations = 8
)

type idType interface {
	~int32 | ~int64
}

// Sort key of a point: the bucket containing it
type locatorTuple[T idType] struct {
	PtID   T
	Bucket T
}

// bucketList keeps the point ids sorted by (bucket, id). The points of bucket b are
// tuples[offsets[b]:offsets[b+1]], in increasing id order.
type bucketList[T idType] struct {
	grid
	reader  data.PointReader
	numPts  int
	tuples  []locatorTuple[T]
	offsets []T
}

func newBucketList[T idType](g grid, reader data.PointReader, numPts int) *bucketList[T] {
	return &bucketList[T]{grid: g, reader: reader, numPts: numPts}
}

func (b *bucketList[T]) build() {
	n := b.numPts
	tuples := make([]locatorTuple[T], n)
	parallel.For(n, 4096, func(begin, end int) {
		for id := begin; id < end; id++ {
			bucket := b.flatten(b.bucketIndices(b.reader.Point(id)))
			tuples[id] = locatorTuple[T]{PtID: T(id), Bucket: T(bucket)}
		}
	})

	parallel.SortFunc(tuples, func(x, y locatorTuple[T]) int {
		if c := cmp.Compare(x.Bucket, y.Bucket); c != 0 {
			return c
		}
		return cmp.Compare(x.PtID, y.PtID)
	})

	// Every batch writes the offsets of the buckets starting inside it, plus the trailing
	// empty buckets for the last batch. Each offset is written by exactly one batch.
	offsets := make([]T, b.numBuckets+1)
	numBatches := (n + offsetBatchSize - 1) / offsetBatchSize
	parallel.For(numBatches, 1, func(begin, end int) {
		for batch := begin; batch < end; batch++ {
			start := batch * offsetBatchSize
			stop := min(start+offsetBatchSize, n)
			prev := -1
			if start > 0 {
				prev = int(tuples[start-1].Bucket)
			}
			for i := start; i < stop; i++ {
				cur := int(tuples[i].Bucket)
				for bk := prev + 1; bk <= cur; bk++ {
					offsets[bk] = T(i)
				}
				prev = cur
			}
			if stop == n {
				for bk := prev + 1; bk <= b.numBuckets; bk++ {
					offsets[bk] = T(n)
				}
			}
		}
	})

	b.tuples = tuples
	b.offsets = offsets
}

func (b *bucketList[T]) bucket(bucket int) []locatorTuple[T] {
	return b.tuples[b.offsets[bucket]:b.offsets[bucket+1]]
}

func (b *bucketList[T]) numberOfPointsInBucket(bucket int) int {
	return int(b.offsets[bucket+1] - b.offsets[bucket])
}

func (b *bucketList[T]) appendBucketIds(bucket int, dst []int) []int {
	for _, tp := range b.bucket(bucket) {
		dst = append(dst, int(tp.PtID))
	}
	return dst
}

func (b *bucketList[T]) maxNumberOfPointsInBucket() int {
	maxCount := 0
	for bk := 0; bk < b.numBuckets; bk++ {
		maxCount = max(maxCount, b.numberOfPointsInBucket(bk))
	}
	return maxCount
}

// Scans the points of a bucket keeping the closest one in best
func (b *bucketList[T]) scanClosest(x [3]float64, ijk [3]int, best *locator.Neighbor) {
	for _, tp := range b.bucket(b.flatten(ijk)) {
		c := locator.Neighbor{ID: int(tp.PtID), Dist2: geometry.Distance2(x, b.reader.Point(int(tp.PtID)))}
		if best.ID < 0 || locator.Closer(c, *best) {
			*best = c
		}
	}
}

func (b *bucketList[T]) findClosestPoint(x [3]float64) int {
	c := b.bucketIndices(x)
	best := locator.Neighbor{ID: -1, Dist2: math.Inf(1)}
	scan := func(ijk [3]int) { b.scanClosest(x, ijk, &best) }

	// rings of buckets around the one of x until one holds a point
	level := 0
	for ; best.ID < 0 && level <= b.maxLevel(); level++ {
		b.forEachInShell(c, level, scan)
	}
	if best.ID < 0 || best.Dist2 == 0 {
		return best.ID
	}
	level--

	// buckets past the searched rings may still be closer than the corner of a ring
	lo, hi := b.footprint(x, math.Sqrt(best.Dist2)*(1+1e-9))
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				ijk := [3]int{i, j, k}
				if chebyshev(ijk, c) <= level || b.bucketDistance2(x, ijk) > best.Dist2 {
					continue
				}
				scan(ijk)
			}
		}
	}
	return best.ID
}

func (b *bucketList[T]) findClosestPointWithinRadius(radius float64, x [3]float64) (int, float64) {
	if radius < 0 {
		return -1, 0
	}
	best := locator.Neighbor{ID: -1, Dist2: radius * radius}
	numIter := int(math.Ceil(radius / b.smallestSpacing()))
	numIter = min(max(numIter, 1), maxRadiusIterations)

	// footprints of radius/ii for decreasing ii, each skipping the previous one
	var prevLo, prevHi [3]int
	searched := false
	for ii := numIter; ii >= 1; ii-- {
		cur := radius / float64(ii)
		lo, hi := b.footprint(x, cur)
		for k := lo[2]; k <= hi[2]; k++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for i := lo[0]; i <= hi[0]; i++ {
					ijk := [3]int{i, j, k}
					if searched && inRange(ijk, prevLo, prevHi) {
						continue
					}
					if b.bucketDistance2(x, ijk) > best.Dist2 {
						continue
					}
					for _, tp := range b.bucket(b.flatten(ijk)) {
						c := locator.Neighbor{ID: int(tp.PtID), Dist2: geometry.Distance2(x, b.reader.Point(int(tp.PtID)))}
						if c.Dist2 < best.Dist2 || c.Dist2 == best.Dist2 && (best.ID < 0 || c.ID < best.ID) {
							best = c
						}
					}
				}
			}
		}
		if best.ID >= 0 && best.Dist2 <= cur*cur {
			break
		}
		prevLo, prevHi, searched = lo, hi, true
	}
	if best.ID < 0 {
		return -1, 0
	}
	return best.ID, best.Dist2
}

func (b *bucketList[T]) findClosestNPoints(n int, x [3]float64) []int {
	n = min(n, b.numPts)
	if n <= 0 {
		return nil
	}
	c := b.bucketIndices(x)
	nearest := locator.NewNeighborList(n)
	scan := func(ijk [3]int) {
		for _, tp := range b.bucket(b.flatten(ijk)) {
			nearest.Insert(int(tp.PtID), geometry.Distance2(x, b.reader.Point(int(tp.PtID))))
		}
	}

	level := 0
	for ; !nearest.Full() && level <= b.maxLevel(); level++ {
		b.forEachInShell(c, level, scan)
	}
	level--

	lo, hi := b.footprint(x, math.Sqrt(nearest.WorstDistance2())*(1+1e-9))
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				ijk := [3]int{i, j, k}
				if chebyshev(ijk, c) <= level || b.bucketDistance2(x, ijk) > nearest.WorstDistance2() {
					continue
				}
				scan(ijk)
			}
		}
	}
	return nearest.IDs()
}

func (b *bucketList[T]) appendPointsWithinRadius(radius float64, x [3]float64, dst []int) []int {
	if radius < 0 {
		return dst
	}
	lo, hi := b.footprint(x, radius)
	return b.appendPointsInRange(radius*radius, x, lo, hi, dst)
}

// Appends the points at squared distance <= r2 from x found in the buckets [lo, hi]
func (b *bucketList[T]) appendPointsInRange(r2 float64, x [3]float64, lo, hi [3]int, dst []int) []int {
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				ijk := [3]int{i, j, k}
				if b.bucketDistance2(x, ijk) > r2 {
					continue
				}
				for _, tp := range b.bucket(b.flatten(ijk)) {
					if geometry.Distance2(x, b.reader.Point(int(tp.PtID))) <= r2 {
						dst = append(dst, int(tp.PtID))
					}
				}
			}
		}
	}
	return dst
}

// Returns an error describing the first broken property of the offsets and of the bucket
// assignment, nil when the layout is consistent
func (b *bucketList[T]) validateOffsets() error {
	if len(b.offsets) != b.numBuckets+1 {
		return errors.Errorf("%d offsets for %d buckets", len(b.offsets), b.numBuckets)
	}
	if b.offsets[0] != 0 || int(b.offsets[b.numBuckets]) != b.numPts {
		return errors.Errorf("offsets span [%d, %d] instead of [0, %d]", b.offsets[0], b.offsets[b.numBuckets], b.numPts)
	}
	for bk := 0; bk < b.numBuckets; bk++ {
		if b.offsets[bk] > b.offsets[bk+1] {
			return errors.Errorf("offsets decrease at bucket %d", bk)
		}
		prev := -1
		for _, tp := range b.bucket(bk) {
			if int(tp.Bucket) != bk {
				return errors.Errorf("point %d recorded in bucket %d lies in the run of bucket %d", tp.PtID, tp.Bucket, bk)
			}
			if got := b.flatten(b.bucketIndices(b.reader.Point(int(tp.PtID)))); got != bk {
				return errors.Errorf("point %d is in bucket %d but its coordinates map to bucket %d", tp.PtID, bk, got)
			}
			if int(tp.PtID) <= prev {
				return errors.Errorf("ids of bucket %d are not increasing", bk)
			}
			prev = int(tp.PtID)
		}
	}
	return nil
}

// Approximate memory used by the tuples and the offsets, in bytes
func (b *bucketList[T]) memorySize() int64 {
	var zero T
	size := int64(8)
	if _, ok := any(zero).(int32); ok {
		size = 4
	}
	return size * int64(2*len(b.tuples)+len(b.offsets))
}

func inRange(ijk, lo, hi [3]int) bool {
	return ijk[0] >= lo[0] && ijk[0] <= hi[0] &&
		ijk[1] >= lo[1] && ijk[1] <= hi[1] &&
		ijk[2] >= lo[2] && ijk[2] <= hi[2]
}
