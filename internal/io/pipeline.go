package io

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Runs the producer and the consumers until all the work is done. The work channel is buffered
// 5 times the number of consumers. Returns the errors raised by the consumers, combined.
func RunPipeline(producer Producer, consumers []Consumer) error {
	if len(consumers) == 0 {
		return errors.New("pipeline needs at least one consumer")
	}
	workChannel := make(chan *WorkUnit, len(consumers)*5)

	// consumers can eventually submit errors that prevented them to finish the job
	errorChannel := make(chan error, len(consumers))

	var waitGroup sync.WaitGroup

	waitGroup.Add(1)
	go producer.Produce(workChannel, &waitGroup)

	for _, consumer := range consumers {
		waitGroup.Add(1)
		go consumer.Consume(workChannel, errorChannel, &waitGroup)
	}

	waitGroup.Wait()
	close(errorChannel)

	var err error
	for e := range errorChannel {
		err = multierr.Append(err, e)
	}
	return err
}
