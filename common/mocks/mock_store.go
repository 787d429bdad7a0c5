// Package mocks provides scripted store collaborators for exercising the
// execution engine without a real backend. Operation outcomes are either
// scripted up front or driven by hand through pending futures.
package mocks

import (
	"sync"

	"github.com/axonkv/axon"
)

// MockTransaction is a scripted engine-facing transaction. Zero value of the
// script fields gives a transaction where every operation and commit succeed
// and every failure resolves as retryable.
type MockTransaction struct {
	// CommitErr, when set, supplies the outcome of the n-th Commit call
	// (0-based). Unset means commits succeed.
	CommitErr func(call int) error
	// Retryable, when set, decides whether OnError resolves a failure as
	// retryable. Unset means every failure is retryable.
	Retryable func(err error) bool

	id           axon.UUID
	mu           sync.Mutex
	closed       bool
	pending      []*axon.Future
	commitCalls  int
	onErrorCalls int
}

func NewMockTransaction() *MockTransaction {
	return &MockTransaction{id: axon.NewUUID()}
}

func (t *MockTransaction) ID() axon.UUID { return t.id }

// Op returns a future that completes asynchronously with err (nil = success).
func (t *MockTransaction) Op(err error) *axon.Future {
	f := t.PendingOp()
	go f.Complete(nil, err)
	return f
}

// PendingOp returns a registered future the test completes by hand.
func (t *MockTransaction) PendingOp() *axon.Future {
	f := axon.NewFuture()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		f.Cancel()
		return f
	}
	t.pending = append(t.pending, f)
	t.mu.Unlock()
	return f
}

func (t *MockTransaction) Commit() *axon.Future {
	t.mu.Lock()
	call := t.commitCalls
	t.commitCalls++
	closed := t.closed
	t.mu.Unlock()

	f := axon.NewFuture()
	if closed {
		f.Cancel()
		return f
	}
	var err error
	if t.CommitErr != nil {
		err = t.CommitErr(call)
	}
	go f.Complete(nil, err)
	return f
}

func (t *MockTransaction) OnError(err error) *axon.Future {
	t.mu.Lock()
	t.onErrorCalls++
	t.mu.Unlock()

	retryable := true
	if t.Retryable != nil {
		retryable = t.Retryable(err)
	}
	f := axon.NewFuture()
	go func() {
		if retryable {
			f.Complete(nil, nil)
			return
		}
		f.Complete(nil, err)
	}()
	return f
}

// Close marks the transaction closed and cancels futures still pending.
func (t *MockTransaction) Close() error {
	t.mu.Lock()
	t.closed = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, f := range pending {
		f.Cancel()
	}
	return nil
}

func (t *MockTransaction) CommitCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitCalls
}

func (t *MockTransaction) OnErrorCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onErrorCalls
}

func (t *MockTransaction) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// MockConnection hands out mock transactions and records lifecycle for tests.
type MockConnection struct {
	// Setup, when set, customizes each new transaction before it is returned.
	Setup func(tx *MockTransaction)
	// CreateErr, when set, fails CreateTransaction.
	CreateErr error

	mu      sync.Mutex
	closed  bool
	created []*MockTransaction
}

func NewMockConnection() *MockConnection {
	return &MockConnection{}
}

func (c *MockConnection) CreateTransaction() (axon.Transaction, error) {
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	tx := NewMockTransaction()
	if c.Setup != nil {
		c.Setup(tx)
	}
	c.mu.Lock()
	c.created = append(c.created, tx)
	c.mu.Unlock()
	return tx, nil
}

func (c *MockConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *MockConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Created returns the transactions handed out so far.
func (c *MockConnection) Created() []*MockTransaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*MockTransaction(nil), c.created...)
}
