// Package parallel provides the fork-join helpers used by the locators and the cell links to
// spread their build phases over worker goroutines. Every helper blocks until all the work has
// been joined.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var workers atomic.Int32

func init() {
	workers.Store(int32(max(runtime.GOMAXPROCS(0), 1)))
}

// Returns the number of worker goroutines used by the helpers
func Workers() int {
	return int(workers.Load())
}

// Sets the number of worker goroutines and returns the previous value. Values below one are
// clamped to one, which makes every helper run serially on the calling goroutine.
func SetWorkers(n int) int {
	return int(workers.Swap(int32(max(n, 1))))
}

// Computes the size of the ranges handed to workers: at least grain, and small enough to give
// every worker a few ranges so that uneven ranges balance out.
func chunkSize(n, grain int) int {
	if grain < 1 {
		grain = 1
	}
	size := (n + 4*Workers() - 1) / (4 * Workers())
	if size < grain {
		size = grain
	}
	return size
}

// Splits [0, n) into contiguous [begin, end) ranges of at least grain elements and runs fn over
// them on the worker goroutines. Ranges never overlap, so fn may write to per-index slots of a
// shared slice without locking.
func For(n, grain int, fn func(begin, end int)) {
	if n <= 0 {
		return
	}
	size := chunkSize(n, grain)
	numChunks := (n + size - 1) / size
	numWorkers := min(Workers(), numChunks)
	if numWorkers <= 1 {
		fn(0, n)
		return
	}

	var next atomic.Int64
	var waitGroup sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for {
				chunk := int(next.Add(1) - 1)
				if chunk >= numChunks {
					return
				}
				begin := chunk * size
				fn(begin, min(begin+size, n))
			}
		}()
	}
	waitGroup.Wait()
}

// Same as For but fn may fail. The first error is returned once all ranges already started
// have finished; ranges not yet started are skipped.
func ForE(n, grain int, fn func(begin, end int) error) error {
	if n <= 0 {
		return nil
	}
	size := chunkSize(n, grain)
	numChunks := (n + size - 1) / size
	if Workers() <= 1 || numChunks == 1 {
		return fn(0, n)
	}

	var failed atomic.Bool
	var group errgroup.Group
	group.SetLimit(Workers())
	for chunk := 0; chunk < numChunks; chunk++ {
		begin := chunk * size
		end := min(begin+size, n)
		group.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := fn(begin, end); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	return group.Wait()
}
