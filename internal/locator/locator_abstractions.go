package locator

import (
	"github.com/golang/geo/r3"

	"github.com/ecopia-map/mesh_locator/internal/data"
)

// IPointLocator is the query surface shared by the bucket and the octree point locators. Ids
// returned are point ids of the attached data set, -1 when no point qualifies.
type IPointLocator interface {
	SetDataSet(ds data.PointSet)
	GetDataSet() data.PointSet
	// Builds the search structure unless it is already newer than the data set
	BuildLocator() error
	// Builds the search structure unconditionally
	ForceBuildLocator() error
	FreeSearchStructure()
	// Returns the number of genuine (non memoized) builds done so far
	BuildCount() int
	// Returns the memory used by the search structure in kibibytes
	GetActualMemorySize() int64

	FindClosestPoint(x r3.Vector) int
	// Returns the closest point within radius and its squared distance, -1 when there is none
	FindClosestPointWithinRadius(radius float64, x r3.Vector) (int, float64)
	// Returns the n closest points sorted by increasing distance
	FindClosestNPoints(n int, x r3.Vector) []int
	// Returns every point at a distance <= radius
	FindPointsWithinRadius(radius float64, x r3.Vector) []int
}
