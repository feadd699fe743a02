// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/extraction-engine/internal/chunk"
)

// processFn handles a single chunk. Implementations must be safe for
// concurrent use.
type processFn func(ctx context.Context, c chunk.Chunk) ChunkResult

// scheduler fans chunks out to fn and collects results indexed by chunk
// position. When failFast is set, the first captured chunk error cancels
// outstanding work and is returned instead of results.
type scheduler func(ctx context.Context, chunks []chunk.Chunk, limit int, failFast bool, fn processFn) ([]ChunkResult, error)

// runPool is the fixed worker pool scheduler (docs/ARCHITECTURE §3.2).
func runPool(ctx context.Context, chunks []chunk.Chunk, limit int, failFast bool, fn processFn) ([]ChunkResult, error) {
	workers := limit
	if workers > len(chunks) {
		workers = len(chunks)
	}
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ChunkResult, len(chunks))
	jobs := make(chan chunk.Chunk)

	var (
		once     sync.Once
		firstErr error
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				res := fn(ctx, c)
				results[c.Index] = res
				if res.Err != nil && failFast {
					once.Do(func() {
						firstErr = res.Err
						cancel()
					})
				}
			}
		}()
	}

	for _, c := range chunks {
		select {
		case <-ctx.Done():
		case jobs <- c:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	if failFast && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// runBounded is the bounded-concurrency scheduler: one goroutine per
// chunk, at most limit running at once.
func runBounded(ctx context.Context, chunks []chunk.Chunk, limit int, failFast bool, fn processFn) ([]ChunkResult, error) {
	if limit < 1 {
		limit = 1
	}

	results := make([]ChunkResult, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, c := range chunks {
		c := c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := fn(ctx, c)
			results[c.Index] = res
			if res.Err != nil && failFast {
				return res.Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
