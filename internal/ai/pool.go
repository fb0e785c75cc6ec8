package ai

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many model calls run at once across all callers.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int { return p.size }

// Run calls fn for every index in [0, tasks) and returns the first error.
// Remaining tasks are not started once one has failed.
func (p *Pool) Run(ctx context.Context, tasks int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)

	var acquireErr error
	for i := 0; i < tasks; i++ {
		if err := gctx.Err(); err != nil {
			acquireErr = err
			break
		}
		if err := p.sem.Acquire(gctx, 1); err != nil {
			acquireErr = err
			break
		}
		idx := i
		g.Go(func() error {
			defer p.sem.Release(1)
			return fn(gctx, idx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return acquireErr
}
