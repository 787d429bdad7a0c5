package axon

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry executes task with Fibonacci backoff up to 5 retries.
// If retries are exhausted, gaveUpTask is invoked (when not nil) and the final error is returned.
// task decides retryability by returning retry.RetryableError-wrapped errors;
// ShouldRetry is the classifier backends typically use for that decision.
func Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	b := retry.NewFibonacci(1 * time.Second)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), task); err != nil {
		log.Warn(err.Error() + ", gave up")
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// ShouldRetry reports whether the error is retryable (non-nil and not a known permanent failure).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellations/timeouts are permanent from the caller's POV.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Cancelled operations belong to a transaction that is shutting down;
	// retrying them is pointless. A locally exhausted retry budget is final too.
	switch CodeOf(err) {
	case TransactionCancelled, RetryLimitReached:
		return false
	}

	// Everything else (network timeouts, reset/refused connections, transient
	// server hiccups) is worth another attempt.
	return true
}
