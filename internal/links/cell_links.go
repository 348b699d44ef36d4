package links

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/metrics"
)

var (
	// Returned when the selection array does not have one entry per cell
	ErrSelectionSize = errors.New("cell selection size does not match the number of cells")
	// Returned by copies into a structure without a data set
	ErrCopyWithoutDataSet = errors.New("data set must be set before copying links")
	// Returned by queries on links that were never built
	ErrNotBuilt = errors.New("links not built")
)

const defaultExtend = 1000

// Link holds the cells using one point. Cells has room for at least NumberOfCells ids, the
// first NumberOfCells of which are in use.
type Link struct {
	NumberOfCells int
	Cells         []int
}

// Table of links shared between shallow copies. Holders clone it before any mutation while
// refs is greater than one.
type linkTable struct {
	links []Link
	refs  atomic.Int32
}

func newLinkTable(size int) *linkTable {
	t := &linkTable{links: make([]Link, size)}
	t.refs.Store(1)
	return t
}

func (t *linkTable) clone(size int) *linkTable {
	c := newLinkTable(size)
	for i := 0; i < len(t.links) && i < size; i++ {
		c.links[i] = Link{
			NumberOfCells: t.links[i].NumberOfCells,
			Cells:         slices.Clone(t.links[i].Cells),
		}
	}
	return c
}

// CellLinks is the editable point to cell adjacency of a data set. It is built in bulk by
// BuildLinks and can then be edited point by point, which makes it suited to filters that
// modify the topology of the mesh they are traversing.
type CellLinks struct {
	dataSet data.DataSet

	table  *linkTable
	maxID  int
	extend int

	mtime      uint64
	buildTime  uint64
	buildCount int
}

func NewCellLinks() *CellLinks {
	return &CellLinks{
		maxID:  -1,
		extend: defaultExtend,
		mtime:  data.NextMTime(),
	}
}

// Sets the data set the links are built from. The data set is not owned by the links.
func (l *CellLinks) SetDataSet(ds data.DataSet) {
	if l.dataSet != ds {
		l.dataSet = ds
		l.Modified()
	}
}

func (l *CellLinks) GetDataSet() data.DataSet {
	return l.dataSet
}

func (l *CellLinks) Modified() {
	l.mtime = data.NextMTime()
}

func (l *CellLinks) MTime() uint64 {
	return l.mtime
}

// Returns the number of genuine (non memoized) builds done so far
func (l *CellLinks) BuildCount() int {
	return l.buildCount
}

// Allocates room for numLinks points, all with no cells. ext is the growth increment used when
// points are appended past the allocated size; values <= 0 keep the default.
func (l *CellLinks) Allocate(numLinks, ext int) {
	l.release()
	if ext > 0 {
		l.extend = ext
	}
	l.table = newLinkTable(max(numLinks, 0))
	l.maxID = -1
}

// Frees every link and returns to the uninitialized state
func (l *CellLinks) Initialize() {
	l.release()
	l.maxID = -1
	l.Modified()
}

// Marks every point as unused without releasing memory
func (l *CellLinks) Reset() {
	l.maxID = -1
}

// Reclaims the memory allocated past the last point in use
func (l *CellLinks) Squeeze() {
	if l.table == nil {
		return
	}
	l.Resize(l.maxID + 1)
}

// Resizes the table to hold sz points. Growing by at least the current size doubles the request,
// in the manner of a dynamic array.
func (l *CellLinks) Resize(sz int) {
	size := l.size()
	newSize := sz
	if sz >= size && size > 0 && sz-size >= size {
		newSize = size + sz
	}
	if l.table == nil {
		l.table = newLinkTable(newSize)
		return
	}

	old := l.table
	l.table = old.clone(newSize)
	old.refs.Add(-1)
	if l.maxID >= newSize {
		l.maxID = newSize - 1
	}
}

// Builds the links from every cell of the data set. The build is skipped when the links are
// newer than both their own modifications and the data set.
func (l *CellLinks) BuildLinks() error {
	if l.dataSet == nil {
		glog.Errorf("cannot build cell links: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	if l.table != nil && l.buildTime > max(l.mtime, l.dataSet.MTime()) {
		glog.V(3).Infof("cell links up to date, skipping build")
		return nil
	}

	start := time.Now()
	numPts := l.dataSet.NumberOfPoints()
	numCells := l.dataSet.NumberOfCells()
	l.Allocate(numPts, l.extend)
	links := l.table.links

	// count, then allocate once the degree of every point is known
	for cellID := 0; cellID < numCells; cellID++ {
		for _, ptID := range l.dataSet.CellPoints(cellID) {
			links[ptID].NumberOfCells++
		}
	}
	for ptID := range links {
		links[ptID].Cells = make([]int, links[ptID].NumberOfCells)
	}

	linkLoc := make([]int, numPts)
	for cellID := 0; cellID < numCells; cellID++ {
		for _, ptID := range l.dataSet.CellPoints(cellID) {
			links[ptID].Cells[linkLoc[ptID]] = cellID
			linkLoc[ptID]++
		}
	}
	l.maxID = numPts - 1

	l.buildTime = data.NextMTime()
	l.buildCount++
	metrics.InstrumentBuild(metrics.CellLinks, start)
	glog.V(1).Infof("built cell links for %d points and %d cells in %v", numPts, numCells, time.Since(start))
	return nil
}

// Returns the number of points in use
func (l *CellLinks) GetNumberOfPoints() int {
	return l.maxID + 1
}

// Reports whether ptID has a link record, logging the misuse otherwise
func (l *CellLinks) hasLink(ptID int) bool {
	if l.table == nil {
		glog.Errorf("cannot get cells of point %d: %v", ptID, ErrNotBuilt)
		return false
	}
	if ptID < 0 || ptID >= len(l.table.links) {
		glog.Errorf("cannot get cells of point %d: out of range [0, %d)", ptID, len(l.table.links))
		return false
	}
	return true
}

// Returns a copy of the link record of a point, an empty record for unknown points
func (l *CellLinks) GetLink(ptID int) Link {
	if !l.hasLink(ptID) {
		return Link{}
	}
	return l.table.links[ptID]
}

// Returns the number of cells using a point, 0 for unknown points
func (l *CellLinks) GetNcells(ptID int) int {
	if !l.hasLink(ptID) {
		return 0
	}
	return l.table.links[ptID].NumberOfCells
}

// Returns the cells using a point, nil for unknown points. The slice is only valid until the
// next edit of the links and must not be modified.
func (l *CellLinks) GetCells(ptID int) []int {
	if !l.hasLink(ptID) {
		return nil
	}
	link := &l.table.links[ptID]
	return link.Cells[:link.NumberOfCells]
}

// Appends a point able to hold numLinks cells and returns its id
func (l *CellLinks) InsertNextPoint(numLinks int) int {
	l.maxID++
	if l.maxID >= l.size() {
		l.Resize(max(l.maxID+1, l.size()+l.extend))
	}
	l.writable()
	l.table.links[l.maxID] = Link{Cells: make([]int, max(numLinks, 0))}
	return l.maxID
}

// Appends a cell to the list of a point, growing the list when it is full
func (l *CellLinks) InsertNextCellReference(ptID, cellID int) {
	l.writable()
	link := &l.table.links[ptID]
	if link.NumberOfCells < len(link.Cells) {
		link.Cells[link.NumberOfCells] = cellID
	} else {
		link.Cells = append(link.Cells[:link.NumberOfCells], cellID)
	}
	link.NumberOfCells++
}

// Writes a cell at the given position of the list of a point. Used while filling lists whose
// size is already known.
func (l *CellLinks) InsertCellReference(ptID, pos, cellID int) {
	l.writable()
	l.table.links[ptID].Cells[pos] = cellID
}

// Increments the cell count of a point without storing a cell
func (l *CellLinks) IncrementLinkCount(ptID int) {
	l.writable()
	l.table.links[ptID].NumberOfCells++
}

// Frees the cell list of a point. The point id is not reused.
func (l *CellLinks) DeletePoint(ptID int) {
	l.writable()
	l.table.links[ptID] = Link{}
}

// Removes a cell from the list of a point, keeping the order of the others
func (l *CellLinks) RemoveCellReference(cellID, ptID int) {
	l.writable()
	link := &l.table.links[ptID]
	cells := link.Cells[:link.NumberOfCells]
	if i := slices.Index(cells, cellID); i >= 0 {
		copy(cells[i:], cells[i+1:])
		link.NumberOfCells--
	}
}

// Adds a cell to the list of a point. The list should have been grown with ResizeCellList.
func (l *CellLinks) AddCellReference(cellID, ptID int) {
	l.InsertNextCellReference(ptID, cellID)
}

// Grows the list of a point so that size more cells fit
func (l *CellLinks) ResizeCellList(ptID, size int) {
	l.writable()
	link := &l.table.links[ptID]
	cells := make([]int, link.NumberOfCells+size)
	copy(cells, link.Cells)
	link.Cells = cells
}

// Marks every cell using a point of degree in [minMaxDegree[0], minMaxDegree[1]). cellSelection
// must have one entry per cell of the data set.
func (l *CellLinks) SelectCells(minMaxDegree [2]int, cellSelection []uint8) error {
	if l.dataSet == nil {
		glog.Errorf("cannot select cells: %v", data.ErrNoDataSet)
		return data.ErrNoDataSet
	}
	if len(cellSelection) != l.dataSet.NumberOfCells() {
		glog.Errorf("cannot select cells: %v (%d != %d)", ErrSelectionSize, len(cellSelection), l.dataSet.NumberOfCells())
		return ErrSelectionSize
	}
	if l.table == nil {
		clear(cellSelection)
		return nil
	}
	links := l.table.links
	selectCells(l.maxID+1, minMaxDegree, cellSelection, func(ptID int) []int {
		return links[ptID].Cells[:links[ptID].NumberOfCells]
	})
	return nil
}

// Returns a lower bound of the memory used, in kibibytes rounded up
func (l *CellLinks) GetActualMemorySize() int64 {
	if l.table == nil {
		return 0
	}
	const linkOverhead = 32 // count plus slice header
	var size int64
	for _, link := range l.table.links {
		size += int64(len(link.Cells)) * 8
	}
	size += int64(len(l.table.links)) * linkOverhead
	return (size + 1023) / 1024
}

// Copies every link of src. The data set must have been set first.
func (l *CellLinks) DeepCopy(src *CellLinks) error {
	if l.dataSet == nil {
		glog.Errorf("cannot deep copy cell links: %v", ErrCopyWithoutDataSet)
		return ErrCopyWithoutDataSet
	}
	l.release()
	if src.table != nil {
		l.table = src.table.clone(len(src.table.links))
	}
	l.maxID = src.maxID
	l.extend = src.extend
	l.Modified()
	l.buildTime = data.NextMTime()
	return nil
}

// Shares the link table of src. The first edit made through either structure clones the table,
// so edits never show through the other. The data set must have been set first.
func (l *CellLinks) ShallowCopy(src *CellLinks) error {
	if l.dataSet == nil {
		glog.Errorf("cannot shallow copy cell links: %v", ErrCopyWithoutDataSet)
		return ErrCopyWithoutDataSet
	}
	if l.table == src.table {
		return nil
	}
	l.release()
	if src.table != nil {
		src.table.refs.Add(1)
		l.table = src.table
	}
	l.maxID = src.maxID
	l.extend = src.extend
	l.Modified()
	l.buildTime = data.NextMTime()
	return nil
}

func (l *CellLinks) size() int {
	if l.table == nil {
		return 0
	}
	return len(l.table.links)
}

// Makes the table exclusively owned before an edit
func (l *CellLinks) writable() {
	if l.table == nil {
		l.table = newLinkTable(l.extend)
		return
	}
	if l.table.refs.Load() > 1 {
		old := l.table
		// clone before giving up the reference so the other holders never see a partial edit
		l.table = old.clone(len(old.links))
		old.refs.Add(-1)
	}
}

func (l *CellLinks) release() {
	if l.table != nil {
		l.table.refs.Add(-1)
		l.table = nil
	}
}
