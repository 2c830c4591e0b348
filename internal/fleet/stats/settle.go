package stats

import (
	"context"
	"fmt"
	"sync"
)

// Settle runs the given operations concurrently and waits for all of them,
// collecting each outcome independently. One operation's failure or panic
// never cancels its siblings; the returned slice holds each operation's error
// (or nil) at the matching index.
func Settle(ctx context.Context, ops ...func(context.Context) error) []error {
	results := make([]error, len(ops))

	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op func(context.Context) error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			results[i] = op(ctx)
		}(i, op)
	}
	wg.Wait()

	return results
}
