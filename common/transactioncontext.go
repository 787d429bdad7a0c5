// Package common implements the execution engine that runs transactional
// actors to completion: per-attempt transaction contexts with the retry
// protocol, and the executor owning the store connection pool. Store
// backends (inmemory, redis, cassandra) plug in through the axon contracts.
package common

import (
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"

	"github.com/axonkv/axon"
)

// ExecutorOptions configures the transaction executor and the contexts it creates.
type ExecutorOptions struct {
	// NumConnections is the store connection pool size.
	NumConnections int `json:"num_connections"`
	// BlockOnFutures selects the blocking continuation strategy: a scheduler
	// worker parks on each operation future instead of relying on completion
	// callbacks. Externally observable outcomes are identical either way.
	BlockOnFutures bool `json:"block_on_futures"`
	// MaxRetries caps transparent retries per transaction. 0 means no local
	// cap; the store's own error-resolution backoff governs, as in the
	// reference behavior.
	MaxRetries int `json:"max_retries"`
}

// transactionContext owns one attempt of one transaction: it tracks the
// operation futures the actor is waiting on, resumes the actor through the
// scheduler as they complete, and drives the retry protocol on failure.
//
// The single mutex guarding the pending-operation table and the
// error-resolution future is the correctness backbone: clearing the table and
// installing the resolution future is one indivisible step relative to
// completion callbacks still arriving for operations of the same attempt.
type transactionContext struct {
	options       ExecutorOptions
	scheduler     *axon.Scheduler
	tx            axon.Transaction
	actor         axon.Actor
	contAfterDone func(error)

	mu            sync.Mutex
	waiters       map[*axon.Future]axon.Task
	onErrorFuture *axon.Future
	retryCount    int
	finalErr      error
}

func newTransactionContext(tx axon.Transaction, actor axon.Actor, cont func(error),
	options ExecutorOptions, scheduler *axon.Scheduler) *transactionContext {
	return &transactionContext{
		options:       options,
		scheduler:     scheduler,
		tx:            tx,
		actor:         actor,
		contAfterDone: cont,
		waiters:       make(map[*axon.Future]axon.Task),
	}
}

func (c *transactionContext) Transaction() axon.Transaction {
	return c.tx
}

func (c *transactionContext) ContinueAfter(f *axon.Future, cont axon.Task) {
	if c.options.BlockOnFutures {
		c.blockingContinueAfter(f, cont)
	} else {
		c.asyncContinueAfter(f, cont)
	}
}

// ContinueAfterAll is a fan-in barrier: cont runs exactly once, after every
// future has completed. The countdown is an atomic decrement-and-compare
// because completions arrive on arbitrarily many goroutines at once.
func (c *transactionContext) ContinueAfterAll(futures []*axon.Future, cont axon.Task) {
	if len(futures) == 0 {
		c.scheduler.Schedule(cont)
		return
	}
	var counter atomic.Int64
	counter.Store(int64(len(futures)))
	for _, f := range futures {
		c.ContinueAfter(f, func() {
			if counter.Add(-1) == 0 {
				cont()
			}
		})
	}
}

// Commit routes the transaction's commit future through the same continuation
// path as any other operation, finishing the context on success.
func (c *transactionContext) Commit() {
	f := c.tx.Commit()
	c.ContinueAfter(f, c.Done)
}

// Done finishes the context: the transaction is closed and the completion
// continuation runs with the terminal error (nil on success). Calling Done
// with operations still pending or an error resolution in flight is a bug in
// the caller, not a runtime condition.
func (c *transactionContext) Done() {
	c.mu.Lock()
	if c.onErrorFuture != nil {
		c.mu.Unlock()
		panic("transaction context finished with an error resolution still in flight")
	}
	if len(c.waiters) > 0 {
		c.mu.Unlock()
		panic(fmt.Sprintf("transaction context finished with %d operations still pending", len(c.waiters)))
	}
	cont := c.contAfterDone
	err := c.finalErr
	c.waiters = nil
	c.mu.Unlock()

	if cerr := c.tx.Close(); cerr != nil {
		log.Warn("transaction close failed", "tid", c.tx.ID().String(), "error", cerr)
	}
	cont(err)
}

// blockingContinueAfter parks a scheduler worker on the future. Actors issue
// operations sequentially in this mode, so at most one wait per context is in
// flight at a time in practice.
func (c *transactionContext) blockingContinueAfter(f *axon.Future, cont axon.Task) {
	c.scheduler.Schedule(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.onErrorFuture != nil {
			// A failure from this attempt is being resolved; abandon.
			return
		}
		f.BlockUntilReady()
		err := f.Error()
		if err == nil {
			c.scheduler.Schedule(cont)
			return
		}
		if axon.IsCancelled(err) {
			return
		}
		c.onErrorFuture = c.tx.OnError(err)
		c.onErrorFuture.BlockUntilReady()
		c.scheduler.Schedule(c.handleOnErrorResult)
	})
}

func (c *transactionContext) asyncContinueAfter(f *axon.Future, cont axon.Task) {
	c.mu.Lock()
	if c.onErrorFuture != nil {
		c.mu.Unlock()
		return
	}
	c.waiters[f] = cont
	c.mu.Unlock()
	f.SetCallback(func() { c.onFutureReady(f) })
}

// onFutureReady runs on the future's completion goroutine, possibly
// concurrently with other completions for the same context. It only does
// bookkeeping; continuation work is handed back to the scheduler so callback
// goroutines never run unbounded application logic.
func (c *transactionContext) onFutureReady(f *axon.Future) {
	c.mu.Lock()
	cont, ok := c.waiters[f]
	if !ok {
		// Entry already cleared by a concurrent error transition.
		c.mu.Unlock()
		return
	}
	delete(c.waiters, f)
	err := f.Error()
	if err == nil {
		c.mu.Unlock()
		c.scheduler.Schedule(cont)
		return
	}
	if axon.IsCancelled(err) {
		c.mu.Unlock()
		return
	}
	// Abandon every continuation pending from this attempt and ask the store
	// whether the failure is retryable. Table clear and resolution install
	// happen under one lock hold.
	clear(c.waiters)
	c.onErrorFuture = c.tx.OnError(err)
	onErr := c.onErrorFuture
	c.mu.Unlock()
	onErr.SetCallback(func() {
		c.scheduler.Schedule(c.handleOnErrorResult)
	})
}

// handleOnErrorResult consumes the error-resolution outcome: on success the
// actor is reset and restarted against the same transaction; on failure the
// attempt is terminal and the context finishes with that error.
func (c *transactionContext) handleOnErrorResult() {
	c.mu.Lock()
	err := c.onErrorFuture.Error()
	c.onErrorFuture = nil
	if err != nil {
		c.finalErr = err
		c.mu.Unlock()
		log.Warn("transaction failed", "tid", c.tx.ID().String(), "error", err)
		c.Done()
		return
	}
	c.retryCount++
	if c.options.MaxRetries > 0 && c.retryCount > c.options.MaxRetries {
		c.finalErr = axon.Error{
			Code: axon.RetryLimitReached,
			Err:  fmt.Errorf("gave up after %d retries", c.options.MaxRetries),
		}
		c.mu.Unlock()
		log.Warn("transaction retry limit reached", "tid", c.tx.ID().String(), "retries", c.options.MaxRetries)
		c.Done()
		return
	}
	attempt := c.retryCount
	c.mu.Unlock()

	log.Debug("retrying transaction", "tid", c.tx.ID().String(), "attempt", attempt)
	c.actor.Reset()
	c.actor.Start()
}
