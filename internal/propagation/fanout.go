package propagation

import (
	"context"
	"sync"
)

// Each runs fn(i) for every index in [0, n) on at most workers goroutines.
// Indexes not yet started when ctx is cancelled are skipped; Each waits for
// in-flight calls and returns ctx.Err(). The batch propagator, the event
// detector, and the frame builder all fan out through here.
func Each(ctx context.Context, workers, n int, fn func(i int)) error {
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			fn(i)
		}(i)
	}

	wg.Wait()
	return ctx.Err()
}
