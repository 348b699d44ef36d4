package data

import (
	"sync"

	"github.com/golang/geo/r3"

	"github.com/ecopia-map/mesh_locator/internal/geometry"
)

// Mesh keeps points as a flat xyz slice and cells as a CSR connectivity (cell offsets plus
// point ids). It implements DataSet and Float64Storage.
type Mesh struct {
	coords       []float64
	cellOffsets  []int
	connectivity []int
	mtime        uint64

	boundsLock sync.Mutex
	bounds     geometry.BoundingBox
	boundsTime uint64
}

// Builds a mesh over the given flat xyz coordinates. Trailing values not forming a full point
// are ignored.
func NewMesh(coords []float64) *Mesh {
	return &Mesh{
		coords:      coords[:len(coords)-len(coords)%3],
		cellOffsets: []int{0},
		mtime:       NextMTime(),
	}
}

func NewMeshFromPoints(points []r3.Vector) *Mesh {
	coords := make([]float64, 0, 3*len(points))
	for _, p := range points {
		coords = append(coords, p.X, p.Y, p.Z)
	}
	return NewMesh(coords)
}

// Builds a nx*ny*nz lattice of points with the given spacing, x varying fastest. When every
// dimension is at least 2 the lattice is filled with hexahedral cells.
func NewHexahedronGrid(nx, ny, nz int, spacing float64) *Mesh {
	coords := make([]float64, 0, 3*nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				coords = append(coords, float64(i)*spacing, float64(j)*spacing, float64(k)*spacing)
			}
		}
	}
	mesh := NewMesh(coords)

	id := func(i, j, k int) int { return i + j*nx + k*nx*ny }
	for k := 0; k+1 < nz; k++ {
		for j := 0; j+1 < ny; j++ {
			for i := 0; i+1 < nx; i++ {
				mesh.InsertNextCell(
					id(i, j, k), id(i+1, j, k), id(i+1, j+1, k), id(i, j+1, k),
					id(i, j, k+1), id(i+1, j, k+1), id(i+1, j+1, k+1), id(i, j+1, k+1),
				)
			}
		}
	}
	return mesh
}

func (m *Mesh) NumberOfPoints() int {
	return len(m.coords) / 3
}

func (m *Mesh) Point(id int) r3.Vector {
	return r3.Vector{X: m.coords[3*id], Y: m.coords[3*id+1], Z: m.coords[3*id+2]}
}

func (m *Mesh) Float64Coordinates() []float64 {
	return m.coords
}

// Overwrites the coordinates of an existing point
func (m *Mesh) SetPoint(id int, p r3.Vector) {
	m.coords[3*id], m.coords[3*id+1], m.coords[3*id+2] = p.X, p.Y, p.Z
	m.Modified()
}

// Appends a point and returns its id
func (m *Mesh) InsertNextPoint(p r3.Vector) int {
	m.coords = append(m.coords, p.X, p.Y, p.Z)
	m.Modified()
	return len(m.coords)/3 - 1
}

// Appends a cell made of the given point ids and returns its id
func (m *Mesh) InsertNextCell(pointIDs ...int) int {
	m.connectivity = append(m.connectivity, pointIDs...)
	m.cellOffsets = append(m.cellOffsets, len(m.connectivity))
	m.Modified()
	return len(m.cellOffsets) - 2
}

func (m *Mesh) NumberOfCells() int {
	return len(m.cellOffsets) - 1
}

func (m *Mesh) CellPoints(cellID int) []int {
	return m.connectivity[m.cellOffsets[cellID]:m.cellOffsets[cellID+1]]
}

func (m *Mesh) ConnectivitySize() int {
	return len(m.connectivity)
}

func (m *Mesh) Modified() {
	m.mtime = NextMTime()
}

func (m *Mesh) MTime() uint64 {
	return m.mtime
}

// Returns the bounds of the points, cached until the next modification. A mesh without points
// returns reset (invalid) bounds.
func (m *Mesh) Bounds() [6]float64 {
	m.boundsLock.Lock()
	defer m.boundsLock.Unlock()

	if m.boundsTime != m.mtime {
		box := geometry.NewBoundingBox()
		for i := 0; i+2 < len(m.coords); i += 3 {
			box.AddPoint([3]float64{m.coords[i], m.coords[i+1], m.coords[i+2]})
		}
		m.bounds = box
		m.boundsTime = m.mtime
	}
	return m.bounds.GetBounds()
}

// Float32Points is a point-only set backed by a flat xyz float32 slice, the compact storage used
// by large scanned clouds. It implements PointSet and Float32Storage.
type Float32Points struct {
	coords []float32
	mtime  uint64
}

func NewFloat32Points(coords []float32) *Float32Points {
	return &Float32Points{
		coords: coords[:len(coords)-len(coords)%3],
		mtime:  NextMTime(),
	}
}

func (p *Float32Points) NumberOfPoints() int {
	return len(p.coords) / 3
}

func (p *Float32Points) Point(id int) r3.Vector {
	return r3.Vector{X: float64(p.coords[3*id]), Y: float64(p.coords[3*id+1]), Z: float64(p.coords[3*id+2])}
}

func (p *Float32Points) Float32Coordinates() []float32 {
	return p.coords
}

func (p *Float32Points) Bounds() [6]float64 {
	box := geometry.NewBoundingBox()
	for i := 0; i+2 < len(p.coords); i += 3 {
		box.AddPoint([3]float64{float64(p.coords[i]), float64(p.coords[i+1]), float64(p.coords[i+2])})
	}
	return box.GetBounds()
}

func (p *Float32Points) Modified() {
	p.mtime = NextMTime()
}

func (p *Float32Points) MTime() uint64 {
	return p.mtime
}
