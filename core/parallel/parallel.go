// Package parallel splits row ranges across goroutines for read-only work such as
// prediction on a frozen model.
package parallel

import (
	"fmt"
	"sync"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// Chunks runs fn over [0, items) split into at most workers contiguous ranges and
// returns the error of the lowest failing range. workers < 1 means one worker. A
// panic inside a concurrent range is returned as *errors.PanicError.
func Chunks(items, workers int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > items {
		workers = items
	}
	if workers == 1 {
		return fn(0, items)
	}

	// Ceiling division so the last chunk absorbs the remainder.
	chunkSize := (items + workers - 1) / workers
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, items)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(idx, s, e int) {
			defer wg.Done()
			errs[idx] = errors.SafeExecute(fmt.Sprintf("chunk [%d, %d)", s, e), func() error { return fn(s, e) })
		}(i, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
