// Package workerpool partitions embarrassingly data-parallel row/head
// loops (matmul output rows, per-head attention) across a fixed number of
// goroutines. Each worker writes a disjoint output stripe, so no
// synchronization beyond the final join is required. Results are
// bit-identical only up to floating-point reduction-order differences,
// which callers are expected to tolerate.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool bounds the concurrency used for a single forward pass's row/head
// partitioning. A Pool is safe for concurrent use by at most one forward
// pass at a time, matching RunState's single-generator ownership.
type Pool struct {
	workers int
}

// New returns a Pool that partitions work across n goroutines. n <= 1
// degenerates to sequential execution.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{workers: n}
}

// Workers reports the configured parallelism.
func (p *Pool) Workers() int { return p.workers }

// For splits [0, total) into at most p.Workers() contiguous chunks and runs fn on
// each chunk concurrently, blocking until every chunk completes. fn must
// only touch the output indices in [lo, hi).
func (p *Pool) For(total int, fn func(lo, hi int)) {
	if total <= 0 {
		return
	}

	workers := p.workers
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		fn(0, total)
		return
	}

	chunk := (total + workers - 1) / workers

	g, _ := errgroup.WithContext(context.Background())
	for lo := 0; lo < total; lo += chunk {
		hi := lo + chunk
		if hi > total {
			hi = total
		}
		lo, hi := lo, hi
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait() // fn never returns an error; the pool has nothing to report
}
