package std_algorithm_manager

import (
	"github.com/golang/glog"

	"github.com/ecopia-map/mesh_locator/internal/links"
	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/locator/octree_locator"
	"github.com/ecopia-map/mesh_locator/internal/locator/static_locator"
	"github.com/ecopia-map/mesh_locator/pkg/algorithm_manager"
)

type StandardAlgorithmManager struct {
	options     *locator.LocatorOptions
	staticLinks bool
}

func NewAlgorithmManager(opts *locator.LocatorOptions, staticLinks bool) algorithm_manager.AlgorithmManager {
	if opts == nil {
		opts = locator.DefaultLocatorOptions()
	}
	return &StandardAlgorithmManager{
		options:     opts.Copy(),
		staticLinks: staticLinks,
	}
}

func (m *StandardAlgorithmManager) GetLocatorAlgorithm() locator.IPointLocator {
	switch m.options.Algorithm {
	case locator.Bucket:
		return m.GetStaticLocatorAlgorithm()
	case locator.Octree:
		return m.GetOctreeLocatorAlgorithm()
	default:
		glog.Fatalf("unrecognized locator algorithm %q", m.options.Algorithm)
	}
	return nil
}

func (m *StandardAlgorithmManager) GetStaticLocatorAlgorithm() *static_locator.StaticPointLocator {
	return static_locator.NewStaticPointLocator(m.options)
}

func (m *StandardAlgorithmManager) GetOctreeLocatorAlgorithm() *octree_locator.OctreePointLocator {
	return octree_locator.NewOctreePointLocator(m.options)
}

func (m *StandardAlgorithmManager) GetCellLinksAlgorithm() links.ICellLinks {
	if m.staticLinks {
		return links.NewStaticCellLinks()
	}
	return links.NewCellLinks()
}
