package site

import (
	"context"
	"sync"
)

// forEach calls fn for every index in [0, n) on at most workers goroutines and waits
// for them. Once ctx is done no further indexes are handed out and ctx.Err() is
// returned; calls already started run to completion.
func forEach(ctx context.Context, workers, n int, fn func(i int)) error {
	if n == 0 {
		return ctx.Err()
	}
	workers = min(max(workers, 1), n)

	tasks := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				fn(i)
			}
		}()
	}

	var err error
feed:
	for i := range n {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case tasks <- i:
		}
	}
	close(tasks)
	wg.Wait()
	return err
}
