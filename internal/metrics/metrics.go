package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const structureLabel = "structure"

// Values of the structure label
const (
	CellLinks          = "cell_links"
	StaticCellLinks    = "static_cell_links"
	StaticPointLocator = "static_point_locator"
	OctreePointLocator = "octree_point_locator"
)

var (
	builds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_locator_builds_total",
		Help: "The number of genuine (non memoized) builds of an index structure.",
	}, []string{
		structureLabel,
	})

	buildLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mesh_locator_build_seconds",
		Help:    "The time to build an index structure.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{
		structureLabel,
	})
)

// Records a finished build of the given structure started at start
func InstrumentBuild(structure string, start time.Time) {
	builds.With(prometheus.Labels{
		structureLabel: structure,
	}).Inc()

	buildLatency.With(prometheus.Labels{
		structureLabel: structure,
	}).Observe(time.Since(start).Seconds())
}

// Returns the counter of builds for a structure, for probing in tests and reports
func Builds(structure string) prometheus.Counter {
	return builds.With(prometheus.Labels{
		structureLabel: structure,
	})
}
