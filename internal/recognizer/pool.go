package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// fanOut runs fn(i) for i in [0,n) on pool and waits for all of them.
// Each call writes its own slot, so callers keep results in input order.
func fanOut(ctx context.Context, pool *ants.Pool, n int, fn func(i int) error) error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			errs[i] = fn(i)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("failed to submit region %d: %w", i, err)
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
