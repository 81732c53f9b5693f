// Package pipeline runs a derivation step's per-page work on a bounded
// worker pool and treats the step as a barrier: it returns only once every
// page has finished or a fatal error has cancelled the rest.
package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool builds a pool sized min(configured, cores-1), defaulting to 2 when
// configured is 0, and never going below 1.
func NewPool(configured int) *Pool {
	cores := runtime.NumCPU() - 1
	if cores < 1 {
		cores = 1
	}
	size := configured
	if size == 0 {
		size = 2
	}
	if size > cores {
		size = cores
	}
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Run dispatches tasks across the pool and waits for all of them. The first
// task to return an error cancels ctx, causing tasks not yet started to be
// abandoned (they return ctx.Err() without running). Run returns that first
// error, or nil if every task succeeded.
func (p *Pool) Run(ctx context.Context, tasks []func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(tasks))

	for _, task := range tasks {
		task := task
		if err := p.sem.Acquire(ctx, 1); err != nil {
			errCh <- err
			continue
		}
		go func() {
			defer p.sem.Release(1)
			err := task(ctx)
			errCh <- err
			if err != nil {
				cancel()
			}
		}()
	}

	var first error
	for range tasks {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	return first
}
