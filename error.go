package axon

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// TransactionCancelled is the sentinel for an operation that was
	// cancelled, typically because its transaction was closed mid-flight.
	// The execution engine swallows it: no continuation, no retry.
	TransactionCancelled
	// TransactionConflict signals an optimistic concurrency conflict
	// detected at commit; the retry protocol treats it as retryable.
	TransactionConflict
	// ConnectionFailure signals a store connection that could not be opened.
	ConnectionFailure
	// RetryLimitReached signals the executor's local retry cap was exhausted.
	RetryLimitReached
)

// Axon custom error.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("error code: %d, details: %v", e.Code, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode carried by err, or Unknown if err is not an
// axon.Error (nor wraps one).
func CodeOf(err error) ErrorCode {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// IsCancelled detects the operation-cancelled sentinel.
func IsCancelled(err error) bool {
	return err != nil && CodeOf(err) == TransactionCancelled
}
