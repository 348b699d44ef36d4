package io

import (
	"math"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/locator"
)

// StandardConsumer answers queries against a built locator. Every query index is owned by exactly
// one WorkUnit, so consumers write their results to disjoint slots of the shared results slice.
type StandardConsumer struct {
	locator locator.IPointLocator
	results []QueryResult
	opts    QueryOptions
}

// The Query field of every result is the position queried, IDs receives the answer
func NewStandardConsumer(loc locator.IPointLocator, results []QueryResult, opts QueryOptions) *StandardConsumer {
	return &StandardConsumer{
		locator: loc,
		results: results,
		opts:    opts,
	}
}

// Continually consumes WorkUnits submitted to a work channel. Continues working until work channel
// is closed or if an error is raised. In this last case submits the error to an error channel
// and drains the remaining work before quitting, so the producer is never blocked.
func (c *StandardConsumer) Consume(workchan chan *WorkUnit, errchan chan error, waitGroup *sync.WaitGroup) {
	defer waitGroup.Done()
	for work := range workchan {
		if err := c.doWork(work); err != nil {
			glog.Errorf("query consumer stopped: %v", err)
			errchan <- err
			for range workchan {
			}
			return
		}
	}
}

func (c *StandardConsumer) doWork(workUnit *WorkUnit) error {
	for i := workUnit.Begin; i < workUnit.End; i++ {
		x := c.results[i].Query
		if math.IsNaN(x.X+x.Y+x.Z) || math.IsInf(x.X+x.Y+x.Z, 0) {
			return errors.Errorf("query %d has non finite coordinates %v", i, x)
		}

		var ids []int
		switch c.opts.Kind {
		case QueryClosest:
			id := -1
			if c.opts.Radius > 0 {
				id, _ = c.locator.FindClosestPointWithinRadius(c.opts.Radius, x)
			} else {
				id = c.locator.FindClosestPoint(x)
			}
			if id >= 0 {
				ids = []int{id}
			}
		case QueryKNearest:
			ids = c.locator.FindClosestNPoints(c.opts.N, x)
		case QueryRadius:
			ids = c.locator.FindPointsWithinRadius(c.opts.Radius, x)
		default:
			return errors.Errorf("unknown query kind %q", c.opts.Kind)
		}
		if ids == nil {
			ids = []int{}
		}
		c.results[i].IDs = ids
	}
	return nil
}
