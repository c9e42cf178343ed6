package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolStopped is returned by Do after Stop.
var ErrPoolStopped = errors.New("server: worker pool stopped")

// job represents a unit of work to be executed on a pool goroutine.
type job struct {
	fn   func() (any, error)
	done chan jobResult
}

// jobResult holds the return value from a job.
type jobResult struct {
	value any
	err   error
}

// WorkerPool runs compilations on a fixed set of goroutines. Each job owns
// its compiler and arena, so jobs never share mutable state; the pool
// bounds memory and recovers compiler panics into errors.
type WorkerPool struct {
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool creates a pool of n workers (at least one) and starts them.
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{
		jobs: make(chan job, 64),
		quit: make(chan struct{}),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

// loop processes jobs until the pool stops.
func (p *WorkerPool) loop() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- p.execute(j.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (p *WorkerPool) execute(fn func() (any, error)) jobResult {
	var result jobResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("compiler panic: %v", r)
			}
		}()
		result.value, result.err = fn()
	}()
	return result
}

// Do submits fn and blocks until it completes or ctx is done.
func (p *WorkerPool) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	j := job{
		fn:   fn,
		done: make(chan jobResult, 1),
	}
	select {
	case p.jobs <- j:
	case <-p.quit:
		return nil, ErrPoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-j.done:
		return result.value, result.err
	case <-p.quit:
		return nil, ErrPoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the workers and waits for running jobs to finish.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}
