package io

import (
	"sync"
)

type Producer interface {
	Produce(work chan *WorkUnit, wg *sync.WaitGroup)
}

type Consumer interface {
	Consume(workchan chan *WorkUnit, errchan chan error, waitGroup *sync.WaitGroup)
}
