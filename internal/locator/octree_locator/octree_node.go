package octree_locator

import (
	"github.com/ecopia-map/mesh_locator/internal/geometry"
)

// Models a region of the octree, which can either be a leaf (a region without children) or not.
// Every region owns the contiguous slice ids[minID:minID+numberOfPoints] of the point ids sorted
// by the locator, its children splitting that slice in octant order.
type OctreeNode struct {
	bounds         geometry.BoundingBox
	dataBounds     geometry.BoundingBox
	minID          int
	numberOfPoints int
	firstChild     int // index of the first of the 8 children in the node arena, -1 for leaves
	id             int // leaf id, -1 for internal nodes
	level          int
}

func (n *OctreeNode) IsLeaf() bool {
	return n.firstChild < 0
}

// Bounds of the region. A point p belongs to the region when min < p <= max on every axis.
func (n *OctreeNode) GetBoundingBox() geometry.BoundingBox {
	return n.bounds
}

// Bounds of the points of the region, invalid when the region is empty
func (n *OctreeNode) GetDataBoundingBox() geometry.BoundingBox {
	return n.dataBounds
}

func (n *OctreeNode) NumberOfPoints() int {
	return n.numberOfPoints
}

func (n *OctreeNode) GetID() int {
	return n.id
}

func (n *OctreeNode) GetLevel() int {
	return n.level
}

// Reports whether the point lies in the region, the min faces excluded
func (n *OctreeNode) ContainsPoint(p [3]float64) bool {
	return p[0] > n.bounds.MinPoint[0] && p[0] <= n.bounds.MaxPoint[0] &&
		p[1] > n.bounds.MinPoint[1] && p[1] <= n.bounds.MaxPoint[1] &&
		p[2] > n.bounds.MinPoint[2] && p[2] <= n.bounds.MaxPoint[2]
}

func getOctantFromElement(p [3]float64, center [3]float64) int {
	result := 0
	if p[0] > center[0] {
		result += 1
	}
	if p[1] > center[1] {
		result += 2
	}
	if p[2] > center[2] {
		result += 4
	}
	return result
}

// Bounds of the given octant of a box, bit 0 selecting the upper half along x, bit 1 along y
// and bit 2 along z
func getOctantBoundingBox(octant int, box geometry.BoundingBox) geometry.BoundingBox {
	center := box.GetCenter()
	var child geometry.BoundingBox
	for i := 0; i < 3; i++ {
		if octant&(1<<i) == 0 {
			child.MinPoint[i] = box.MinPoint[i]
			child.MaxPoint[i] = center[i]
		} else {
			child.MinPoint[i] = center[i]
			child.MaxPoint[i] = box.MaxPoint[i]
		}
	}
	return child
}
