package octree_locator

import (
	"math"
	"time"
	"unsafe"

	"github.com/golang/geo/r3"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/geometry"
	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/metrics"
	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

const (
	// regions with more points classify them into octants in parallel
	parallelClassifyThreshold = 1 << 14
	// relative width added around the data bounds so that no point lies on the min faces
	fudgeFactor = 1e-5
)

// OctreePointLocator indexes the points of a data set in an octree whose regions are subdivided
// while they hold more than MaximumPointsPerRegion points, down to MaxLevel. Nodes live in one
// arena and every node owns a contiguous run of a single array of point ids.
//
// Queries never build the structure and return -1 or empty results until it is built.
// Concurrent queries are safe, a build concurrent to queries is not.
type OctreePointLocator struct {
	dataSet data.PointSet
	options locator.LocatorOptions

	reader data.PointReader
	nodes  []OctreeNode // nodes[0] is the root
	ids    []int        // point ids sorted by region
	leaves []int        // arena index of every leaf, by leaf id

	mtime      uint64
	buildTime  uint64
	buildCount int
}

// Creates a locator configured by opts, the defaults when nil
func NewOctreePointLocator(opts *locator.LocatorOptions) *OctreePointLocator {
	if opts == nil {
		opts = locator.DefaultLocatorOptions()
	}
	return &OctreePointLocator{
		options: *opts,
		mtime:   data.NextMTime(),
	}
}

func (l *OctreePointLocator) SetDataSet(ds data.PointSet) {
	if l.dataSet != ds {
		l.dataSet = ds
		l.Modified()
	}
}

func (l *OctreePointLocator) GetDataSet() data.PointSet {
	return l.dataSet
}

func (l *OctreePointLocator) Modified() {
	l.mtime = data.NextMTime()
}

func (l *OctreePointLocator) SetMaximumPointsPerRegion(n int) {
	if n != l.options.MaximumPointsPerRegion {
		l.options.MaximumPointsPerRegion = n
		l.Modified()
	}
}

func (l *OctreePointLocator) GetMaximumPointsPerRegion() int {
	return l.options.MaximumPointsPerRegion
}

func (l *OctreePointLocator) SetMaxLevel(level int) {
	if level != l.options.MaxLevel {
		l.options.MaxLevel = level
		l.Modified()
	}
}

func (l *OctreePointLocator) GetMaxLevel() int {
	return l.options.MaxLevel
}

func (l *OctreePointLocator) SetCreateCubicOctants(cubic bool) {
	if cubic != l.options.CreateCubicOctants {
		l.options.CreateCubicOctants = cubic
		l.Modified()
	}
}

func (l *OctreePointLocator) GetCreateCubicOctants() bool {
	return l.options.CreateCubicOctants
}

func (l *OctreePointLocator) BuildCount() int {
	return l.buildCount
}

func (l *OctreePointLocator) BuildLocator() error {
	if l.dataSet == nil {
		glog.Errorf("cannot build octree point locator: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	if l.nodes != nil && l.buildTime > max(l.mtime, l.dataSet.MTime()) {
		glog.V(3).Infof("octree point locator up to date, skipping build")
		return nil
	}
	return l.buildLocator()
}

func (l *OctreePointLocator) ForceBuildLocator() error {
	if l.dataSet == nil {
		glog.Errorf("cannot build octree point locator: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	return l.buildLocator()
}

func (l *OctreePointLocator) buildLocator() error {
	start := time.Now()
	l.FreeSearchStructure()

	numPts := l.dataSet.NumberOfPoints()
	if numPts == 0 {
		glog.Warningf("octree point locator built over a data set without points")
		l.buildTime = data.NextMTime()
		return nil
	}

	l.reader = data.NewPointReader(l.dataSet)
	l.ids = make([]int, numPts)
	parallel.For(numPts, 1<<16, func(begin, end int) {
		for i := begin; i < end; i++ {
			l.ids[i] = i
		}
	})

	l.nodes = append(l.nodes, OctreeNode{
		bounds:         l.rootBounds(),
		numberOfPoints: numPts,
		firstChild:     -1,
		id:             -1,
	})
	b := &octreeBuilder{
		octants: make([]uint8, numPts),
		scratch: make([]int, numPts),
	}
	l.divideRegion(b, 0)
	l.collectLeaves(0)

	l.buildTime = data.NextMTime()
	l.buildCount++
	metrics.InstrumentBuild(metrics.OctreePointLocator, start)
	glog.V(1).Infof("built octree point locator over %d points of dimension %d: %d nodes, %d leaves, direct coordinates %t, in %v",
		numPts, l.nodes[0].dataBounds.ComputeInnerDimension(), len(l.nodes), len(l.leaves), l.reader.IsDirect(), time.Since(start))
	return nil
}

// Data bounds grown by a small fudge on every side, and made cubic when asked
func (l *OctreePointLocator) rootBounds() geometry.BoundingBox {
	box := geometry.NewBoundingBoxFromBounds(l.dataSet.Bounds())
	maxWidth := box.GetMaxLength()
	if maxWidth <= 0 {
		maxWidth = 1
	}
	if l.options.CreateCubicOctants {
		center := box.GetCenter()
		for i := 0; i < 3; i++ {
			box.MinPoint[i] = center[i] - maxWidth/2
			box.MaxPoint[i] = center[i] + maxWidth/2
		}
	}
	box.InflateBy(maxWidth * fudgeFactor)
	return box
}

// Buffers shared by the recursive subdivision
type octreeBuilder struct {
	octants []uint8
	scratch []int
}

// Splits the region into 8 children when it holds too many points, partitioning its run of ids
// by octant while keeping their relative order, then recurses into the children
func (l *OctreePointLocator) divideRegion(b *octreeBuilder, idx int) {
	node := l.nodes[idx]
	if node.numberOfPoints <= max(l.options.MaximumPointsPerRegion, 1) || node.level >= l.options.MaxLevel {
		return
	}

	begin, end := node.minID, node.minID+node.numberOfPoints
	center := node.bounds.GetCenter()
	classify := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			b.octants[i] = uint8(getOctantFromElement(l.reader.Point(l.ids[i]), center))
		}
	}
	if node.numberOfPoints >= parallelClassifyThreshold {
		parallel.For(node.numberOfPoints, 4096, func(lo, hi int) {
			classify(begin+lo, begin+hi)
		})
	} else {
		classify(begin, end)
	}

	var counts [8]int
	for i := begin; i < end; i++ {
		counts[b.octants[i]]++
	}
	var cursor [8]int
	cursor[0] = begin
	for o := 1; o < 8; o++ {
		cursor[o] = cursor[o-1] + counts[o-1]
	}
	for i := begin; i < end; i++ {
		o := b.octants[i]
		b.scratch[cursor[o]] = l.ids[i]
		cursor[o]++
	}
	copy(l.ids[begin:end], b.scratch[begin:end])

	firstChild := len(l.nodes)
	minID := begin
	for o := 0; o < 8; o++ {
		l.nodes = append(l.nodes, OctreeNode{
			bounds:         getOctantBoundingBox(o, node.bounds),
			minID:          minID,
			numberOfPoints: counts[o],
			firstChild:     -1,
			id:             -1,
			level:          node.level + 1,
		})
		minID += counts[o]
	}
	l.nodes[idx].firstChild = firstChild

	for o := 0; o < 8; o++ {
		l.divideRegion(b, firstChild+o)
	}
}

// Numbers the leaves in depth first order and computes the data bounds bottom up
func (l *OctreePointLocator) collectLeaves(idx int) geometry.BoundingBox {
	dataBounds := geometry.NewBoundingBox()
	node := &l.nodes[idx]
	if node.IsLeaf() {
		node.id = len(l.leaves)
		l.leaves = append(l.leaves, idx)
		for _, id := range l.pointsOf(node) {
			dataBounds.AddPoint(l.reader.Point(id))
		}
	} else {
		node.id = -1
		for o := 0; o < 8; o++ {
			dataBounds.AddBox(l.collectLeaves(node.firstChild + o))
		}
	}
	l.nodes[idx].dataBounds = dataBounds
	return dataBounds
}

func (l *OctreePointLocator) pointsOf(node *OctreeNode) []int {
	return l.ids[node.minID : node.minID+node.numberOfPoints]
}

// Releases the tree. The next BuildLocator rebuilds it.
func (l *OctreePointLocator) FreeSearchStructure() {
	l.nodes = nil
	l.ids = nil
	l.leaves = nil
	l.reader = data.PointReader{}
}

// Same as FreeSearchStructure, also forgetting the data set
func (l *OctreePointLocator) Initialize() {
	l.FreeSearchStructure()
	l.dataSet = nil
	l.Modified()
}

// Returns the arena index of the leaf holding p. Points outside the root descend to the leaf of
// the closest region.
func (l *OctreePointLocator) findLeaf(p [3]float64) int {
	idx := 0
	for !l.nodes[idx].IsLeaf() {
		node := &l.nodes[idx]
		idx = node.firstChild + getOctantFromElement(p, node.bounds.GetCenter())
	}
	return idx
}

// Squared distance below which the node may hold a point, +Inf for empty nodes
func (l *OctreePointLocator) nodeDistance2(node *OctreeNode, x [3]float64) float64 {
	if node.numberOfPoints == 0 {
		return math.Inf(1)
	}
	return node.dataBounds.Distance2ToPoint(x)
}

type childDistance struct {
	idx   int
	dist2 float64
}

// Non empty children of the node sorted by increasing distance to x
func (l *OctreePointLocator) sortedChildren(node *OctreeNode, x [3]float64, out *[8]childDistance) []childDistance {
	children := out[:0]
	for o := 0; o < 8; o++ {
		idx := node.firstChild + o
		child := &l.nodes[idx]
		if child.numberOfPoints == 0 {
			continue
		}
		c := childDistance{idx: idx, dist2: l.nodeDistance2(child, x)}
		pos := len(children)
		children = append(children, c)
		for pos > 0 && children[pos-1].dist2 > c.dist2 {
			children[pos] = children[pos-1]
			pos--
		}
		children[pos] = c
	}
	return children
}

// Offers the points of a leaf to best. An unset best (id -1) accepts any point within its
// distance, boundary included.
func (l *OctreePointLocator) scanLeaf(node *OctreeNode, x [3]float64, best *locator.Neighbor) {
	for _, id := range l.pointsOf(node) {
		c := locator.Neighbor{ID: id, Dist2: geometry.Distance2(l.reader.Point(id), x)}
		if best.ID < 0 && c.Dist2 <= best.Dist2 || locator.Closer(c, *best) {
			*best = c
		}
	}
}

func (l *OctreePointLocator) searchClosest(idx, skip int, x [3]float64, best *locator.Neighbor) {
	node := &l.nodes[idx]
	if idx == skip || l.nodeDistance2(node, x) > best.Dist2 {
		return
	}
	if node.IsLeaf() {
		l.scanLeaf(node, x, best)
		return
	}
	var buf [8]childDistance
	for _, c := range l.sortedChildren(node, x, &buf) {
		if c.dist2 > best.Dist2 {
			break
		}
		l.searchClosest(c.idx, skip, x, best)
	}
}

// Scans the leaf containing x, or the leaf containing the closest point of the root when x is
// outside, then widens to every region that may hold a closer point
func (l *OctreePointLocator) findClosest(x [3]float64, best locator.Neighbor) locator.Neighbor {
	leaf := l.findLeaf(l.nodes[0].bounds.ClampPoint(x))
	if l.nodeDistance2(&l.nodes[leaf], x) <= best.Dist2 {
		l.scanLeaf(&l.nodes[leaf], x, &best)
	}
	l.searchClosest(0, leaf, x, &best)
	return best
}

func (l *OctreePointLocator) FindClosestPoint(x r3.Vector) int {
	if l.nodes == nil {
		return -1
	}
	return l.findClosest(geometry.ToArray(x), locator.Neighbor{ID: -1, Dist2: math.Inf(1)}).ID
}

func (l *OctreePointLocator) FindClosestPointWithinRadius(radius float64, x r3.Vector) (int, float64) {
	if l.nodes == nil || radius < 0 {
		return -1, 0
	}
	best := l.findClosest(geometry.ToArray(x), locator.Neighbor{ID: -1, Dist2: radius * radius})
	if best.ID < 0 {
		return -1, 0
	}
	return best.ID, best.Dist2
}

func (l *OctreePointLocator) searchClosestN(idx int, x [3]float64, list *locator.NeighborList) {
	node := &l.nodes[idx]
	if l.nodeDistance2(node, x) > list.WorstDistance2() {
		return
	}
	if node.IsLeaf() {
		for _, id := range l.pointsOf(node) {
			list.Insert(id, geometry.Distance2(l.reader.Point(id), x))
		}
		return
	}
	var buf [8]childDistance
	for _, c := range l.sortedChildren(node, x, &buf) {
		if c.dist2 > list.WorstDistance2() {
			break
		}
		l.searchClosestN(c.idx, x, list)
	}
}

func (l *OctreePointLocator) FindClosestNPoints(n int, x r3.Vector) []int {
	if l.nodes == nil || n <= 0 {
		return nil
	}
	list := locator.NewNeighborList(min(n, len(l.ids)))
	l.searchClosestN(0, geometry.ToArray(x), list)
	return list.IDs()
}

func (l *OctreePointLocator) appendWithinRadius(idx int, r2 float64, x [3]float64, dst []int) []int {
	node := &l.nodes[idx]
	if l.nodeDistance2(node, x) > r2 {
		return dst
	}
	if node.IsLeaf() {
		for _, id := range l.pointsOf(node) {
			if geometry.Distance2(l.reader.Point(id), x) <= r2 {
				dst = append(dst, id)
			}
		}
		return dst
	}
	for o := 0; o < 8; o++ {
		dst = l.appendWithinRadius(node.firstChild+o, r2, x, dst)
	}
	return dst
}

func (l *OctreePointLocator) FindPointsWithinRadius(radius float64, x r3.Vector) []int {
	if l.nodes == nil || radius < 0 {
		return nil
	}
	return l.appendWithinRadius(0, radius*radius, geometry.ToArray(x), nil)
}

func (l *OctreePointLocator) appendInArea(idx int, area geometry.BoundingBox, dst []int) []int {
	node := &l.nodes[idx]
	if node.numberOfPoints == 0 || !area.Intersects(node.dataBounds) {
		return dst
	}
	if area.Contains(node.dataBounds) {
		return append(dst, l.pointsOf(node)...)
	}
	if node.IsLeaf() {
		for _, id := range l.pointsOf(node) {
			if area.ContainsPoint(l.reader.Point(id)) {
				dst = append(dst, id)
			}
		}
		return dst
	}
	for o := 0; o < 8; o++ {
		dst = l.appendInArea(node.firstChild+o, area, dst)
	}
	return dst
}

// Returns the points lying in the area (xmin, xmax, ymin, ymax, zmin, zmax), boundary included
func (l *OctreePointLocator) FindPointsInArea(area [6]float64) []int {
	if l.nodes == nil {
		return nil
	}
	return l.appendInArea(0, geometry.NewBoundingBoxFromBounds(area), nil)
}

// Returns the id of the leaf region containing x, -1 when x is outside the octree
func (l *OctreePointLocator) GetRegionContainingPoint(x r3.Vector) int {
	if l.nodes == nil {
		return -1
	}
	p := geometry.ToArray(x)
	if !l.nodes[0].ContainsPoint(p) {
		return -1
	}
	return l.nodes[l.findLeaf(p)].id
}

func (l *OctreePointLocator) GetNumberOfLeafNodes() int {
	return len(l.leaves)
}

func (l *OctreePointLocator) leaf(leafID int) (*OctreeNode, error) {
	if leafID < 0 || leafID >= len(l.leaves) {
		return nil, errors.Errorf("leaf %d out of range [0, %d)", leafID, len(l.leaves))
	}
	return &l.nodes[l.leaves[leafID]], nil
}

func (l *OctreePointLocator) GetRegionBounds(leafID int) ([6]float64, error) {
	node, err := l.leaf(leafID)
	if err != nil {
		return [6]float64{}, err
	}
	return node.bounds.GetBounds(), nil
}

// Returns the bounds of the points of a leaf, invalid bounds for an empty leaf
func (l *OctreePointLocator) GetRegionDataBounds(leafID int) ([6]float64, error) {
	node, err := l.leaf(leafID)
	if err != nil {
		return [6]float64{}, err
	}
	return node.dataBounds.GetBounds(), nil
}

func (l *OctreePointLocator) GetPointsInRegion(leafID int) ([]int, error) {
	node, err := l.leaf(leafID)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), l.pointsOf(node)...), nil
}

// Returns the bounds of the root region
func (l *OctreePointLocator) GetBounds() [6]float64 {
	if l.nodes == nil {
		return geometry.NewBoundingBox().GetBounds()
	}
	return l.nodes[0].bounds.GetBounds()
}

// Returns the root region, nil when not built
func (l *OctreePointLocator) GetRootNode() *OctreeNode {
	if l.nodes == nil {
		return nil
	}
	return &l.nodes[0]
}

// Returns the child of a node in the given octant, nil for leaves
func (l *OctreePointLocator) GetChild(node *OctreeNode, octant int) *OctreeNode {
	if node.IsLeaf() || octant < 0 || octant > 7 {
		return nil
	}
	return &l.nodes[node.firstChild+octant]
}

// Returns the boxes of the regions at the given level along with the leaves above it. A
// negative level returns the boxes of all the leaves.
func (l *OctreePointLocator) GenerateRepresentation(level int) []geometry.BoundingBox {
	if l.nodes == nil {
		return nil
	}
	var boxes []geometry.BoundingBox
	var visit func(idx int)
	visit = func(idx int) {
		node := &l.nodes[idx]
		if node.IsLeaf() || node.level == level {
			boxes = append(boxes, node.bounds)
			return
		}
		for o := 0; o < 8; o++ {
			visit(node.firstChild + o)
		}
	}
	visit(0)
	return boxes
}

// Returns the memory used by the tree in kibibytes, rounded up
func (l *OctreePointLocator) GetActualMemorySize() int64 {
	size := int64(len(l.nodes))*int64(unsafe.Sizeof(OctreeNode{})) +
		int64(len(l.ids)+len(l.leaves))*int64(unsafe.Sizeof(int(0)))
	return (size + 1023) / 1024
}

// Checks that every point id appears in exactly one leaf, inside the leaf region, and that the
// runs of the children tile the run of their parent
func (l *OctreePointLocator) validate() error {
	if l.nodes == nil {
		return errors.New("locator not built")
	}
	seen := make([]bool, len(l.ids))
	for leafID, idx := range l.leaves {
		node := &l.nodes[idx]
		if node.id != leafID {
			return errors.Errorf("leaf %d carries id %d", leafID, node.id)
		}
		for _, id := range l.pointsOf(node) {
			if seen[id] {
				return errors.Errorf("point %d appears twice", id)
			}
			seen[id] = true
			if !node.ContainsPoint(l.reader.Point(id)) {
				return errors.Errorf("point %d outside of leaf %d", id, leafID)
			}
		}
	}
	for id, ok := range seen {
		if !ok {
			return errors.Errorf("point %d missing", id)
		}
	}
	for idx := range l.nodes {
		node := &l.nodes[idx]
		if node.IsLeaf() {
			continue
		}
		if node.id != -1 {
			return errors.Errorf("internal node %d carries id %d", idx, node.id)
		}
		next := node.minID
		for o := 0; o < 8; o++ {
			child := &l.nodes[node.firstChild+o]
			if child.minID != next {
				return errors.Errorf("child %d of node %d starts at %d, expected %d", o, idx, child.minID, next)
			}
			next += child.numberOfPoints
		}
		if next != node.minID+node.numberOfPoints {
			return errors.Errorf("children of node %d hold %d points, expected %d", idx, next-node.minID, node.numberOfPoints)
		}
	}
	return nil
}
