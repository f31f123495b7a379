package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn with a derived context that is cancelled after the
// given timeout. If the function does not complete in time,
// context.DeadlineExceeded is returned. name identifies the call site in the
// returned error; docstore.Client passes its own operation names here
// ("docstore.preprocess", "docstore.fetch_changes", "docstore.lookup_source")
// so a deadline-exceeded error surfaced up through the orchestrator or
// reconciler names which outbound call actually stalled. fn keeps running in
// its own goroutine after the timeout fires; it is handed the derived
// context, which is cancelled by the time WithTimeout returns, so a
// context-aware fn (docstore builds its HTTP requests on it) stops soon
// after, while one that ignores its context holds the goroutine until it
// returns on its own.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}
