// Package blocking dispatches CPU-bound work (geocoding, MVT encoding) onto
// a bounded worker pool so the HTTP request goroutines never stall waiting
// on it. Modeled on the worker-pool-over-errgroup shape used for bounded
// concurrent blob uploads elsewhere in the ecosystem.
package blocking

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool runs Do closures across a bounded number of workers.
type Pool struct {
	sem chan struct{}
}

// New creates a Pool with the given concurrency. A non-positive n defaults
// to GOMAXPROCS.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: make(chan struct{}, n)}
}

// Do runs fn on the pool, blocking the caller until a worker slot is free or
// ctx is cancelled.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fn()
}

// Map runs fn(items[i]) across the pool for every item, returning the first
// error encountered (all in-flight work still completes or is cancelled via
// ctx, per errgroup semantics).
func Map[T any](ctx context.Context, p *Pool, items []T, fn func(T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return p.Do(gctx, func() error { return fn(item) })
		})
	}
	return g.Wait()
}
