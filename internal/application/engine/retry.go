package engine

import (
	"context"
	"time"
)

// RetryPolicy bounds how transient venue failures are retried. Passed
// explicitly into the executor rather than caught ad hoc at call sites.
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy retries up to 4 attempts with exponential backoff
// starting at 500ms, capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseWait: 500 * time.Millisecond, MaxWait: 8 * time.Second}
}

// Wait returns the backoff before attempt (0-based: attempt 1 is the first
// retry).
func (p RetryPolicy) Wait(attempt int) time.Duration {
	w := p.BaseWait << uint(attempt-1)
	if w > p.MaxWait || w <= 0 {
		w = p.MaxWait
	}
	return w
}

// sleep waits out the backoff or returns early when ctx is cancelled.
func (p RetryPolicy) sleep(ctx context.Context, attempt int) {
	t := time.NewTimer(p.Wait(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
