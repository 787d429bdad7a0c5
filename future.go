package axon

import (
	"errors"
	"sync"
)

// Future is a single-shot handle for one in-flight asynchronous store
// operation. Backends create one per operation and complete it exactly once,
// from whatever goroutine performs the work. Observers either block on
// BlockUntilReady or register a one-shot completion callback; the callback
// fires asynchronously, on an unspecified goroutine.
//
// Pointer identity of a *Future is what the engine keys its pending-operation
// bookkeeping on.
type Future struct {
	mu        sync.Mutex
	ready     chan struct{}
	value     []byte
	err       error
	callback  Task
	completed bool
}

func NewFuture() *Future {
	return &Future{ready: make(chan struct{})}
}

// Complete resolves the future with the operation's result payload and
// terminal error. Completing a future twice is a programming error.
func (f *Future) Complete(value []byte, err error) {
	if !f.tryComplete(value, err) {
		panic("future completed twice")
	}
}

// Cancel resolves the future with the cancellation sentinel. Unlike Complete
// it is a no-op on an already completed future, so backends can sweep their
// in-flight operations at close time without racing the operation goroutines.
func (f *Future) Cancel() {
	f.tryComplete(nil, Error{Code: TransactionCancelled, Err: errors.New("operation cancelled")})
}

func (f *Future) tryComplete(value []byte, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.value = value
	f.err = err
	cb := f.callback
	close(f.ready)
	f.mu.Unlock()

	if cb != nil {
		go cb()
	}
	return true
}

// BlockUntilReady blocks the calling goroutine until the future completes.
func (f *Future) BlockUntilReady() {
	<-f.ready
}

// Error returns the operation's terminal error, nil meaning success. Only
// valid once the future is ready.
func (f *Future) Error() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Value returns the operation's result payload. Only valid once the future
// is ready.
func (f *Future) Value() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// SetCallback registers a one-shot notification invoked exactly once, after
// the future completes. At most one callback may ever be registered;
// registering a second is a programming error. If the future is already
// complete the callback still fires, asynchronously.
func (f *Future) SetCallback(cb Task) {
	f.mu.Lock()
	if f.callback != nil {
		f.mu.Unlock()
		panic("future callback already set")
	}
	f.callback = cb
	completed := f.completed
	f.mu.Unlock()

	if completed {
		go cb()
	}
}
