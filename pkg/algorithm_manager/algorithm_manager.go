package algorithm_manager

import (
	"github.com/ecopia-map/mesh_locator/internal/links"
	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/locator/octree_locator"
	"github.com/ecopia-map/mesh_locator/internal/locator/static_locator"
)

type AlgorithmManager interface {
	// Returns a new locator of the configured algorithm
	GetLocatorAlgorithm() locator.IPointLocator
	GetStaticLocatorAlgorithm() *static_locator.StaticPointLocator
	GetOctreeLocatorAlgorithm() *octree_locator.OctreePointLocator
	// Returns new cell links, static or dynamic as configured
	GetCellLinksAlgorithm() links.ICellLinks
}
