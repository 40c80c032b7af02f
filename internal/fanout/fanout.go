// Package fanout runs one function per key on a bounded worker pool.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// DefaultWorkers is used when Run is given no positive worker count.
const DefaultWorkers = 4

// Run calls fn for every key with at most workers calls in flight and
// returns the values in key order. Every key is attempted; failures are
// joined, each prefixed with its key. Keys not started before ctx is done
// fail with ctx.Err().
func Run[K any, V any](ctx context.Context, workers int, keys []K, fn func(context.Context, K) (V, error)) ([]V, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	pool, err := ants.NewPool(min(workers, len(keys)))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]V, len(keys))
	errs := make([]error, len(keys))
	var wg sync.WaitGroup

	for i, key := range keys {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%v: panic: %v", key, r)
				}
			}()

			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("%v: %w", key, err)
				return
			}
			v, err := fn(ctx, key)
			results[i] = v
			if err != nil {
				errs[i] = fmt.Errorf("%v: %w", key, err)
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("%v: submit: %w", key, err)
		}
	}

	wg.Wait()
	return results, errors.Join(errs...)
}
