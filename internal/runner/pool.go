package runner

import (
	"context"
	"sync"
)

// Task is one unit of work for RunPool.
type Task func(ctx context.Context) error

// RunPool executes tasks with at most maxWorkers concurrently. The returned
// slice is indexed like tasks; nil means the task succeeded. Tasks not yet
// started when ctx is cancelled report ctx.Err().
func RunPool(ctx context.Context, maxWorkers int, tasks []Task) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)

	for i, task := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int, t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = t(ctx)
		}(i, task)
	}
	wg.Wait()
	return errs
}

// Failed counts the non-nil entries of a RunPool result.
func Failed(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
