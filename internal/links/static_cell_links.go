package links

import (
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/metrics"
	"github.com/ecopia-map/mesh_locator/internal/parallel"
)

// Returned when the data set has more points, cells or references than the id type can hold
var ErrIDWidthExceeded = errors.New("data set too large for the link id width")

// Below this number of cells the links are built serially
const serialBuildThreshold = 1000

// Width of the ids stored by a StaticCellLinks
type IDWidth int

const (
	Width16 IDWidth = 16
	Width32 IDWidth = 32
	Width64 IDWidth = 64
)

// Returns the narrowest id width able to index n points, cells or references
func SelectIDWidth(n int) IDWidth {
	switch {
	case n < math.MaxUint16:
		return Width16
	case n < math.MaxInt32:
		return Width32
	default:
		return Width64
	}
}

func idLimit[T IDType]() int64 {
	var zero T
	switch any(zero).(type) {
	case uint16:
		return math.MaxUint16
	case int32:
		return math.MaxInt32
	default:
		return math.MaxInt64
	}
}

// Links is the point to cell adjacency of a data set in compressed sparse rows: the cells of
// point p are cells[offsets[p]:offsets[p+1]], in ascending order.
type Links[T IDType] struct {
	numPts   int
	numCells int
	offsets  []T
	cells    []T
}

// Builds the links from every cell of ds, replacing any previous content
func (l *Links[T]) BuildLinks(ds data.DataSet) error {
	l.Initialize()
	numPts := ds.NumberOfPoints()
	numCells := ds.NumberOfCells()
	connSize := ds.ConnectivitySize()
	if int64(max(numPts, numCells, connSize)) >= idLimit[T]() {
		glog.Errorf("cannot build links over %d points, %d cells and %d references: %v", numPts, numCells, connSize, ErrIDWidthExceeded)
		return ErrIDWidthExceeded
	}

	if numCells < serialBuildThreshold || parallel.Workers() == 1 {
		l.buildSerial(ds, numPts, numCells, connSize)
	} else {
		l.buildParallel(ds, numPts, numCells, connSize)
	}
	l.numPts = numPts
	l.numCells = numCells
	return nil
}

func (l *Links[T]) buildSerial(ds data.DataSet, numPts, numCells, connSize int) {
	offsets := make([]T, numPts+1)
	for cellID := 0; cellID < numCells; cellID++ {
		for _, ptID := range ds.CellPoints(cellID) {
			offsets[ptID+1]++
		}
	}
	for ptID := 0; ptID < numPts; ptID++ {
		offsets[ptID+1] += offsets[ptID]
	}

	// cells are visited in id order so every list ends up sorted
	cells := make([]T, connSize)
	cursor := slices.Clone(offsets[:numPts])
	for cellID := 0; cellID < numCells; cellID++ {
		for _, ptID := range ds.CellPoints(cellID) {
			cells[cursor[ptID]] = T(cellID)
			cursor[ptID]++
		}
	}
	l.offsets = offsets
	l.cells = cells
}

func (l *Links[T]) buildParallel(ds data.DataSet, numPts, numCells, connSize int) {
	counts := make([]int64, numPts+1)
	parallel.For(numCells, 1024, func(begin, end int) {
		for cellID := begin; cellID < end; cellID++ {
			for _, ptID := range ds.CellPoints(cellID) {
				atomic.AddInt64(&counts[ptID+1], 1)
			}
		}
	})

	offsets := make([]T, numPts+1)
	for ptID := 0; ptID < numPts; ptID++ {
		counts[ptID+1] += counts[ptID]
		offsets[ptID+1] = T(counts[ptID+1])
	}

	// counts now holds the start of every list and serves as the fill cursor
	cells := make([]T, connSize)
	parallel.For(numCells, 1024, func(begin, end int) {
		for cellID := begin; cellID < end; cellID++ {
			for _, ptID := range ds.CellPoints(cellID) {
				slot := atomic.AddInt64(&counts[ptID], 1) - 1
				cells[slot] = T(cellID)
			}
		}
	})

	parallel.For(numPts, 4096, func(begin, end int) {
		for ptID := begin; ptID < end; ptID++ {
			slices.Sort(cells[offsets[ptID]:offsets[ptID+1]])
		}
	})
	l.offsets = offsets
	l.cells = cells
}

func (l *Links[T]) Initialize() {
	l.numPts = 0
	l.numCells = 0
	l.offsets = nil
	l.cells = nil
}

func (l *Links[T]) GetNumberOfPoints() int {
	return l.numPts
}

func (l *Links[T]) GetNumberOfCells(ptID int) int {
	return int(l.offsets[ptID+1] - l.offsets[ptID])
}

// Returns the cells using a point. The slice aliases the links and is invalidated by a rebuild.
func (l *Links[T]) GetCells(ptID int) []T {
	return l.cells[l.offsets[ptID]:l.offsets[ptID+1]]
}

func (l *Links[T]) GetOffsets() []T {
	return l.offsets
}

func (l *Links[T]) SelectCells(minMaxDegree [2]int, cellSelection []uint8) error {
	if len(cellSelection) != l.numCells {
		glog.Errorf("cannot select cells: %v (%d != %d)", ErrSelectionSize, len(cellSelection), l.numCells)
		return ErrSelectionSize
	}
	selectCells(l.numPts, minMaxDegree, cellSelection, l.GetCells)
	return nil
}

// Returns the memory used in kibibytes, rounded up
func (l *Links[T]) GetActualMemorySize() int64 {
	var zero T
	var elem int64
	switch any(zero).(type) {
	case uint16:
		elem = 2
	case int32:
		elem = 4
	default:
		elem = 8
	}
	size := elem * int64(len(l.offsets)+len(l.cells))
	return (size + 1023) / 1024
}

func (l *Links[T]) DeepCopy(src *Links[T]) {
	l.numPts = src.numPts
	l.numCells = src.numCells
	l.offsets = slices.Clone(src.offsets)
	l.cells = slices.Clone(src.cells)
}

// Returns an error describing the first broken property of the compressed layout, nil when the
// offsets are monotone, end at the number of references and every list is sorted
func (l *Links[T]) validate() error {
	if len(l.offsets) != l.numPts+1 {
		return errors.Errorf("%d offsets for %d points", len(l.offsets), l.numPts)
	}
	for ptID := 0; ptID < l.numPts; ptID++ {
		if l.offsets[ptID] > l.offsets[ptID+1] {
			return errors.Errorf("offsets decrease at point %d", ptID)
		}
		if !slices.IsSorted(l.GetCells(ptID)) {
			return errors.Errorf("cells of point %d are not sorted", ptID)
		}
	}
	if int(l.offsets[l.numPts]) != len(l.cells) {
		return errors.Errorf("last offset %d does not match %d references", l.offsets[l.numPts], len(l.cells))
	}
	return nil
}

// Width independent view of a Links instantiation
type linksImpl interface {
	BuildLinks(ds data.DataSet) error
	Initialize()
	GetNumberOfPoints() int
	GetNumberOfCells(ptID int) int
	SelectCells(minMaxDegree [2]int, cellSelection []uint8) error
	GetActualMemorySize() int64
	appendCells(ptID int, dst []int) []int
	clone() linksImpl
	validate() error
}

func (l *Links[T]) appendCells(ptID int, dst []int) []int {
	for _, cellID := range l.GetCells(ptID) {
		dst = append(dst, int(cellID))
	}
	return dst
}

func (l *Links[T]) clone() linksImpl {
	c := &Links[T]{}
	c.DeepCopy(l)
	return c
}

func newLinksImpl(width IDWidth) linksImpl {
	switch width {
	case Width16:
		return &Links[uint16]{}
	case Width32:
		return &Links[int32]{}
	default:
		return &Links[int64]{}
	}
}

// StaticCellLinks is the bulk built, read only point to cell adjacency of a data set. The id
// width is chosen at build time from the size of the data set.
type StaticCellLinks struct {
	dataSet data.DataSet
	impl    linksImpl
	width   IDWidth

	mtime      uint64
	buildTime  uint64
	buildCount int
}

func NewStaticCellLinks() *StaticCellLinks {
	return &StaticCellLinks{mtime: data.NextMTime()}
}

func (l *StaticCellLinks) SetDataSet(ds data.DataSet) {
	if l.dataSet != ds {
		l.dataSet = ds
		l.Modified()
	}
}

func (l *StaticCellLinks) GetDataSet() data.DataSet {
	return l.dataSet
}

func (l *StaticCellLinks) Modified() {
	l.mtime = data.NextMTime()
}

func (l *StaticCellLinks) BuildCount() int {
	return l.buildCount
}

// Returns the id width of the last build, 0 before any build
func (l *StaticCellLinks) GetIDWidth() IDWidth {
	return l.width
}

// Builds the links unless they are newer than both their own modifications and the data set
func (l *StaticCellLinks) BuildLinks() error {
	if l.dataSet == nil {
		glog.Errorf("cannot build static cell links: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	if l.impl != nil && l.buildTime > max(l.mtime, l.dataSet.MTime()) {
		glog.V(3).Infof("static cell links up to date, skipping build")
		return nil
	}

	start := time.Now()
	numPts := l.dataSet.NumberOfPoints()
	numCells := l.dataSet.NumberOfCells()
	width := SelectIDWidth(max(numPts, numCells, l.dataSet.ConnectivitySize()))
	impl := newLinksImpl(width)
	if err := impl.BuildLinks(l.dataSet); err != nil {
		l.Initialize()
		return err
	}
	l.impl = impl
	l.width = width

	l.buildTime = data.NextMTime()
	l.buildCount++
	metrics.InstrumentBuild(metrics.StaticCellLinks, start)
	glog.V(1).Infof("built %d bit static cell links for %d points and %d cells in %v", width, numPts, numCells, time.Since(start))
	return nil
}

// Releases the links
func (l *StaticCellLinks) Initialize() {
	l.impl = nil
	l.width = 0
	l.buildTime = 0
}

// Nothing to reclaim, links are allocated at their exact size
func (l *StaticCellLinks) Squeeze() {}

func (l *StaticCellLinks) GetNumberOfPoints() int {
	if l.impl == nil {
		return 0
	}
	return l.impl.GetNumberOfPoints()
}

// Reports whether ptID is a point of the built links, logging the misuse otherwise
func (l *StaticCellLinks) hasPoint(ptID int) bool {
	if l.impl == nil {
		glog.Errorf("cannot get cells of point %d: %v", ptID, ErrNotBuilt)
		return false
	}
	if numPts := l.impl.GetNumberOfPoints(); ptID < 0 || ptID >= numPts {
		glog.Errorf("cannot get cells of point %d: out of range [0, %d)", ptID, numPts)
		return false
	}
	return true
}

// Returns the number of cells using a point, 0 for unknown points
func (l *StaticCellLinks) GetNumberOfCells(ptID int) int {
	if !l.hasPoint(ptID) {
		return 0
	}
	return l.impl.GetNumberOfCells(ptID)
}

// Returns the cells using a point as a new slice, nil for unknown points
func (l *StaticCellLinks) GetCells(ptID int) []int {
	if !l.hasPoint(ptID) {
		return nil
	}
	return l.impl.appendCells(ptID, nil)
}

// Appends the cells using a point to dst, avoiding an allocation per call in loops. dst is
// returned unchanged for unknown points.
func (l *StaticCellLinks) AppendCells(ptID int, dst []int) []int {
	if !l.hasPoint(ptID) {
		return dst
	}
	return l.impl.appendCells(ptID, dst)
}

func (l *StaticCellLinks) SelectCells(minMaxDegree [2]int, cellSelection []uint8) error {
	if l.dataSet == nil {
		glog.Errorf("cannot select cells: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	if l.impl == nil {
		glog.Errorf("cannot select cells: %v", ErrNotBuilt)
		return ErrNotBuilt
	}
	return l.impl.SelectCells(minMaxDegree, cellSelection)
}

func (l *StaticCellLinks) GetActualMemorySize() int64 {
	if l.impl == nil {
		return 0
	}
	return l.impl.GetActualMemorySize()
}

func (l *StaticCellLinks) DeepCopy(src *StaticCellLinks) {
	l.dataSet = src.dataSet
	l.width = src.width
	l.impl = nil
	if src.impl != nil {
		l.impl = src.impl.clone()
	}
	l.buildTime = data.NextMTime()
}

// Shares the links of src. Static links are never edited in place, a rebuild of either
// structure allocates new arrays.
func (l *StaticCellLinks) ShallowCopy(src *StaticCellLinks) {
	l.dataSet = src.dataSet
	l.width = src.width
	l.impl = src.impl
	l.buildTime = data.NextMTime()
}
