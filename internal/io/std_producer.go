package io

import (
	"sync"
)

type StandardProducer struct {
	numQueries int
	batchSize  int
}

func NewStandardProducer(numQueries int, batchSize int) *StandardProducer {
	return &StandardProducer{
		numQueries: numQueries,
		batchSize:  max(batchSize, 1),
	}
}

// Splits the batch of queries in WorkUnits of at most batchSize queries and submits them to the
// provided workchannel. Closes the channel when all work is submitted.
func (p *StandardProducer) Produce(work chan *WorkUnit, wg *sync.WaitGroup) {
	for begin := 0; begin < p.numQueries; begin += p.batchSize {
		work <- &WorkUnit{
			Begin: begin,
			End:   min(begin+p.batchSize, p.numQueries),
		}
	}
	close(work)
	wg.Done()
}
