package static_locator

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/geometry"
	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/metrics"
)

// Returned when explicit divisions ask for more buckets than allowed
var ErrTooManyBuckets = errors.New("divisions exceed the maximum number of buckets")

// Id width independent view of a bucketList instantiation
type bucketIndex interface {
	build()
	gridGeometry() *grid
	numberOfPointsInBucket(bucket int) int
	appendBucketIds(bucket int, dst []int) []int
	maxNumberOfPointsInBucket() int
	findClosestPoint(x [3]float64) int
	findClosestPointWithinRadius(radius float64, x [3]float64) (int, float64)
	findClosestNPoints(n int, x [3]float64) []int
	appendPointsWithinRadius(radius float64, x [3]float64, dst []int) []int
	intersectWithLine(a0, a1 [3]float64, tol float64) (LineIntersection, bool)
	mergePoints(tol float64, strategy locator.MergeStrategy) []int
	validateOffsets() error
	memorySize() int64
}

func (b *bucketList[T]) gridGeometry() *grid {
	return &b.grid
}

// StaticPointLocator indexes the points of a data set in a uniform grid of buckets. The
// structure is built in one pass and not updated afterwards: any change of the points requires
// a rebuild, which BuildLocator does when the data set is newer than the last build.
//
// Queries never build the structure and return -1 or empty results until it is built.
// Concurrent queries are safe, a build concurrent to queries is not.
type StaticPointLocator struct {
	dataSet     data.PointSet
	options     locator.LocatorOptions
	useExisting bool

	buckets  bucketIndex
	largeIds bool

	mtime      uint64
	buildTime  uint64
	buildCount int
}

// Creates a locator configured by opts, the defaults when nil
func NewStaticPointLocator(opts *locator.LocatorOptions) *StaticPointLocator {
	if opts == nil {
		opts = locator.DefaultLocatorOptions()
	}
	return &StaticPointLocator{
		options: *opts,
		mtime:   data.NextMTime(),
	}
}

func (l *StaticPointLocator) SetDataSet(ds data.PointSet) {
	if l.dataSet != ds {
		l.dataSet = ds
		l.Modified()
	}
}

func (l *StaticPointLocator) GetDataSet() data.PointSet {
	return l.dataSet
}

func (l *StaticPointLocator) Modified() {
	l.mtime = data.NextMTime()
}

func (l *StaticPointLocator) SetNumberOfPointsPerBucket(n int) {
	if n != l.options.NumberOfPointsPerBucket {
		l.options.NumberOfPointsPerBucket = n
		l.Modified()
	}
}

func (l *StaticPointLocator) GetNumberOfPointsPerBucket() int {
	return l.options.NumberOfPointsPerBucket
}

func (l *StaticPointLocator) SetMaxNumberOfBuckets(n int64) {
	if n != l.options.MaxNumberOfBuckets {
		l.options.MaxNumberOfBuckets = n
		l.Modified()
	}
}

func (l *StaticPointLocator) GetMaxNumberOfBuckets() int64 {
	return l.options.MaxNumberOfBuckets
}

// Sets the divisions used when the locator is not automatic
func (l *StaticPointLocator) SetDivisions(divs [3]int) {
	if divs != l.options.Divisions {
		l.options.Divisions = divs
		l.Modified()
	}
}

func (l *StaticPointLocator) SetAutomatic(automatic bool) {
	if automatic != l.options.Automatic {
		l.options.Automatic = automatic
		l.Modified()
	}
}

func (l *StaticPointLocator) GetAutomatic() bool {
	return l.options.Automatic
}

func (l *StaticPointLocator) SetMergeStrategy(strategy locator.MergeStrategy) {
	l.options.MergeStrategy = strategy
}

func (l *StaticPointLocator) GetMergeStrategy() locator.MergeStrategy {
	return l.options.MergeStrategy
}

// When set, BuildLocator keeps an existing structure even if the data set changed
func (l *StaticPointLocator) SetUseExistingSearchStructure(use bool) {
	l.useExisting = use
}

func (l *StaticPointLocator) BuildCount() int {
	return l.buildCount
}

func (l *StaticPointLocator) BuildLocator() error {
	if l.dataSet == nil {
		glog.Errorf("cannot build static point locator: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	if l.buckets != nil && (l.useExisting || l.buildTime > max(l.mtime, l.dataSet.MTime())) {
		glog.V(3).Infof("static point locator up to date, skipping build")
		return nil
	}
	return l.buildLocator()
}

func (l *StaticPointLocator) ForceBuildLocator() error {
	if l.dataSet == nil {
		glog.Errorf("cannot build static point locator: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	return l.buildLocator()
}

func (l *StaticPointLocator) buildLocator() error {
	start := time.Now()
	l.FreeSearchStructure()

	numPts := l.dataSet.NumberOfPoints()
	if numPts == 0 {
		glog.Warningf("static point locator built over a data set without points")
		l.buildTime = data.NextMTime()
		return nil
	}

	box := geometry.NewBoundingBoxFromBounds(l.dataSet.Bounds())
	dim := box.ComputeInnerDimension()
	var bounds [6]float64
	var divs [3]int
	if l.options.Automatic {
		perBucket := max(l.options.NumberOfPointsPerBucket, 1)
		target := (int64(numPts) + int64(perBucket) - 1) / int64(perBucket)
		target = min(max(target, 1), max(l.options.MaxNumberOfBuckets, 1))
		bounds, divs, _ = box.ComputeDivisions(target)
	} else {
		for i := 0; i < 3; i++ {
			divs[i] = max(l.options.Divisions[i], 1)
		}
		if int64(divs[0])*int64(divs[1])*int64(divs[2]) > l.options.MaxNumberOfBuckets {
			glog.Errorf("cannot build static point locator with divisions %v: %v (%d)", divs, ErrTooManyBuckets, l.options.MaxNumberOfBuckets)
			return ErrTooManyBuckets
		}
		box.Inflate()
		bounds = box.GetBounds()
	}

	g := newGrid(bounds, divs)
	reader := data.NewPointReader(l.dataSet)
	l.largeIds = numPts >= math.MaxInt32 || g.numBuckets >= math.MaxInt32
	if l.largeIds {
		l.buckets = newBucketList[int64](g, reader, numPts)
	} else {
		l.buckets = newBucketList[int32](g, reader, numPts)
	}
	l.buckets.build()

	l.buildTime = data.NextMTime()
	l.buildCount++
	metrics.InstrumentBuild(metrics.StaticPointLocator, start)
	glog.V(1).Infof("built static point locator over %d points of dimension %d: divisions %v, large ids %t, direct coordinates %t, in %v",
		numPts, dim, divs, l.largeIds, reader.IsDirect(), time.Since(start))
	return nil
}

// Releases the buckets. The next BuildLocator rebuilds them.
func (l *StaticPointLocator) FreeSearchStructure() {
	l.buckets = nil
	l.largeIds = false
}

// Same as FreeSearchStructure, also forgetting the data set
func (l *StaticPointLocator) Initialize() {
	l.FreeSearchStructure()
	l.dataSet = nil
	l.Modified()
}

func (l *StaticPointLocator) FindClosestPoint(x r3.Vector) int {
	if l.buckets == nil {
		return -1
	}
	return l.buckets.findClosestPoint(geometry.ToArray(x))
}

func (l *StaticPointLocator) FindClosestPointWithinRadius(radius float64, x r3.Vector) (int, float64) {
	if l.buckets == nil {
		return -1, 0
	}
	return l.buckets.findClosestPointWithinRadius(radius, geometry.ToArray(x))
}

func (l *StaticPointLocator) FindClosestNPoints(n int, x r3.Vector) []int {
	if l.buckets == nil {
		return nil
	}
	return l.buckets.findClosestNPoints(n, geometry.ToArray(x))
}

func (l *StaticPointLocator) FindPointsWithinRadius(radius float64, x r3.Vector) []int {
	if l.buckets == nil {
		return nil
	}
	return l.buckets.appendPointsWithinRadius(radius, geometry.ToArray(x), nil)
}

// Finds the point within tol of the segment a0-a1 whose projection on the segment is closest
// to a0
func (l *StaticPointLocator) IntersectWithLine(a0, a1 r3.Vector, tol float64) (LineIntersection, bool) {
	if l.buckets == nil {
		return LineIntersection{PointID: -1}, false
	}
	return l.buckets.intersectWithLine(geometry.ToArray(a0), geometry.ToArray(a1), tol)
}

// Returns for every point the id of the point it merges into, points within tol being merged.
// With tol 0 only coincident points merge. The configured strategy picks the representatives
// of tolerance merges.
func (l *StaticPointLocator) MergePoints(tol float64) []int {
	if l.buckets == nil {
		return nil
	}
	start := time.Now()
	mergeMap := l.buckets.mergePoints(tol, l.options.MergeStrategy)
	glog.V(1).Infof("merged points with tolerance %g (%s) in %v", tol, l.options.MergeStrategy, time.Since(start))
	return mergeMap
}

func (l *StaticPointLocator) GetBucketIndices(x r3.Vector) [3]int {
	if l.buckets == nil {
		return [3]int{-1, -1, -1}
	}
	return l.buckets.gridGeometry().bucketIndices(geometry.ToArray(x))
}

func (l *StaticPointLocator) GetBucketIndex(x r3.Vector) int {
	if l.buckets == nil {
		return -1
	}
	g := l.buckets.gridGeometry()
	return g.flatten(g.bucketIndices(geometry.ToArray(x)))
}

func (l *StaticPointLocator) GetNumberOfPointsInBucket(bucket int) int {
	if l.buckets == nil {
		return 0
	}
	return l.buckets.numberOfPointsInBucket(bucket)
}

// Returns the points of a bucket in increasing id order
func (l *StaticPointLocator) GetBucketIds(bucket int) []int {
	if l.buckets == nil {
		return nil
	}
	return l.buckets.appendBucketIds(bucket, nil)
}

func (l *StaticPointLocator) GetNumberOfBuckets() int {
	if l.buckets == nil {
		return 0
	}
	return l.buckets.gridGeometry().numBuckets
}

func (l *StaticPointLocator) GetDivisions() [3]int {
	if l.buckets == nil {
		return l.options.Divisions
	}
	return l.buckets.gridGeometry().divs
}

func (l *StaticPointLocator) GetSpacing() [3]float64 {
	if l.buckets == nil {
		return [3]float64{}
	}
	return l.buckets.gridGeometry().h
}

// Returns the bounds covered by the buckets
func (l *StaticPointLocator) GetBounds() [6]float64 {
	if l.buckets == nil {
		return geometry.NewBoundingBox().GetBounds()
	}
	return l.buckets.gridGeometry().bounds
}

func (l *StaticPointLocator) GetLargeIds() bool {
	return l.largeIds
}

func (l *StaticPointLocator) GetMaxNumberOfPointsInBucket() int {
	if l.buckets == nil {
		return 0
	}
	return l.buckets.maxNumberOfPointsInBucket()
}

// Returns the boxes of the non empty buckets
func (l *StaticPointLocator) GenerateRepresentation() []geometry.BoundingBox {
	if l.buckets == nil {
		return nil
	}
	g := l.buckets.gridGeometry()
	var boxes []geometry.BoundingBox
	for bk := 0; bk < g.numBuckets; bk++ {
		if l.buckets.numberOfPointsInBucket(bk) > 0 {
			boxes = append(boxes, g.bucketBox(g.unflatten(bk)))
		}
	}
	return boxes
}

// Returns the memory used by the buckets in kibibytes, rounded up
func (l *StaticPointLocator) GetActualMemorySize() int64 {
	if l.buckets == nil {
		return 0
	}
	return (l.buckets.memorySize() + 1023) / 1024
}

func (l *StaticPointLocator) validateOffsets() error {
	if l.buckets == nil {
		return errors.New("locator not built")
	}
	return l.buckets.validateOffsets()
}
