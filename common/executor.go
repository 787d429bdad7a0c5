package common

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/axonkv/axon"
)

// TransactionExecutor owns a fixed pool of store connections, created at Init
// and destroyed at Release, and runs transactional actors against them. It is
// stateless beyond the pool; each Execute call picks a connection at random.
type TransactionExecutor struct {
	scheduler   *axon.Scheduler
	options     ExecutorOptions
	connections []axon.Connection
}

func NewTransactionExecutor() *TransactionExecutor {
	return &TransactionExecutor{}
}

// Init opens options.NumConnections store connections up front, concurrently.
// Fail fast: if any open fails, the connections opened so far are closed and
// Init fails as a whole, leaving no partial pool behind.
func (e *TransactionExecutor) Init(ctx context.Context, scheduler *axon.Scheduler,
	open axon.OpenConnectionFunc, options ExecutorOptions) error {
	if options.NumConnections < 1 {
		options.NumConnections = 1
	}
	e.scheduler = scheduler
	e.options = options

	conns := make([]axon.Connection, options.NumConnections)
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < options.NumConnections; i++ {
		i := i
		eg.Go(func() error {
			c, err := open(egCtx)
			if err != nil {
				return err
			}
			conns[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, c := range conns {
			if c != nil {
				c.Close()
			}
		}
		return axon.Error{Code: axon.ConnectionFailure, Err: fmt.Errorf("opening store connections: %w", err)}
	}
	e.connections = conns
	return nil
}

// Execute runs one actor against a uniformly random pooled connection. cont
// is invoked exactly once when the actor's transaction finishes, with nil on
// success or the terminal error otherwise. Transient store failures are
// retried internally and never reach cont.
func (e *TransactionExecutor) Execute(actor axon.Actor, cont func(error)) error {
	if len(e.connections) == 0 {
		return fmt.Errorf("executor has no connections, 'call Init first")
	}
	conn := e.connections[rand.Intn(len(e.connections))]
	tx, err := conn.CreateTransaction()
	if err != nil {
		return err
	}
	tc := newTransactionContext(tx, actor, cont, e.options, e.scheduler)
	actor.Init(tc)
	actor.Start()
	return nil
}

// Release closes every pooled connection and returns the last close error,
// if any. Callers must ensure no transaction context is still active; Release
// does not synchronize with concurrent Execute calls.
func (e *TransactionExecutor) Release() error {
	var lastErr error
	for _, c := range e.connections {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	e.connections = nil
	return lastErr
}
