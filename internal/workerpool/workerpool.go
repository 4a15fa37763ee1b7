// Package workerpool is the bounded worker pool spec.md §5 requires for
// action handlers, SSDP search replies, and NOTIFY deliveries: a fixed
// number of goroutines pulling from a single job queue, with a bounded
// grace period to drain in-flight jobs on shutdown.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"time"
)

const minWorkers = 4

// Pool is a fixed-size worker pool. The zero value is not usable; construct
// with New.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// New starts a pool with size workers. size <= 0 selects
// runtime.NumCPU(), with a floor of 4 workers either way.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if size < minWorkers {
		size = minWorkers
	}

	p := &Pool{
		jobs: make(chan func(), size*4),
		stop: make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job()
		case <-p.stop:
			return
		}
	}
}

// Submit enqueues fn for execution by some worker. It never blocks once the
// pool has accepted the job into its queue; if the queue is full it blocks
// the caller until a slot frees up or the pool is draining.
func (p *Pool) Submit(fn func()) {
	select {
	case p.jobs <- fn:
	case <-p.stop:
	}
}

// Drain stops accepting new work conceptually (callers should stop calling
// Submit) and waits for queued and in-flight jobs to finish. If ctx's
// deadline elapses first, workers stop taking queued jobs, Drain still waits
// for the jobs already running to return, and then returns ctx's error.
func (p *Pool) Drain(ctx context.Context) error {
	p.once.Do(func() { close(p.jobs) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		close(p.stop)
		<-done
		return ctx.Err()
	}
}

// DrainWithin is a convenience wrapper around Drain using a fixed grace
// period from now.
func (p *Pool) DrainWithin(grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return p.Drain(ctx)
}
