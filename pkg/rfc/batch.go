package rfc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchRequest names one call to issue as part of a BatchCall.
type BatchRequest struct {
	Path string
	Args []any
}

// BatchResult is the outcome of one BatchRequest, matched by index to the
// request slice passed to BatchCall.
type BatchResult struct {
	Value any
	Err   error
}

// BatchCall issues every request concurrently over driver, one errgroup
// goroutine per request, and returns all results once every call has
// settled. It adds no backpressure bound of its own: the caller controls
// batch size.
func BatchCall(ctx context.Context, driver *Driver, requests []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(requests))

	g, gCtx := errgroup.WithContext(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			v, err := driver.Call(gCtx, req.Path, req.Args...)
			results[i] = BatchResult{Value: v, Err: err}
			return nil
		})
	}
	// Errors are captured per-result, not propagated through g.Wait, so one
	// failing call never cancels its siblings' in-flight replies.
	_ = g.Wait()

	return results
}
