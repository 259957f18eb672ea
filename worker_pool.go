package evloop

import (
	"sync"

	"github.com/eapache/queue"
)

// WorkerPool runs submitted jobs on a fixed set of goroutines in FIFO order.
// The backlog is unbounded.
type WorkerPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   *queue.Queue
	closed bool
	wg     sync.WaitGroup
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	p := &WorkerPool{jobs: queue.New()}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) Submit(job func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.jobs.Add(job)
	p.cond.Signal()
	return nil
}

// Close rejects new jobs, lets the workers finish the backlog and waits for them.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.jobs.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.jobs.Length() == 0 {
			p.mu.Unlock()
			return
		}
		job := p.jobs.Remove().(func())
		p.mu.Unlock()
		job()
	}
}
