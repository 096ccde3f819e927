package core

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency bounds bulk resolution when no limit is given.
const DefaultConcurrency = 8

// Result is the outcome of resolving one reference.
type Result[T any] struct {
	Value T
	Err   error
}

// BulkResolve runs fn for every distinct ref in parallel, at most
// concurrency at a time. Every ref gets an entry in the returned map;
// refs not started before ctx is done carry ctx's error.
func BulkResolve[T any](ctx context.Context, refs []Ref, concurrency int, fn func(context.Context, Ref) (T, error)) map[Ref]Result[T] {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make(map[Ref]Result[T], len(refs))
	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	seen := make(map[Ref]bool, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true

		wg.Add(1)
		go func(r Ref) {
			defer wg.Done()

			var res Result[T]
			if err := sem.Acquire(ctx, 1); err != nil {
				res.Err = err
			} else {
				res.Value, res.Err = fn(ctx, r)
				sem.Release(1)
			}

			mu.Lock()
			results[r] = res
			mu.Unlock()
		}(ref)
	}

	wg.Wait()
	return results
}
