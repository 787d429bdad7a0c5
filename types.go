package axon

import "context"

// Task is a fire-and-forget unit of work runnable on the Scheduler.
type Task func()

// Actor is a pluggable transactional workload. The executor calls Init with
// a fresh transaction context then Start; on a retryable failure the engine
// calls Reset (discard actor-local progress) followed by Start again, against
// the same transaction context. Actors must not hold on to the context past
// its Done call.
type Actor interface {
	Init(tc TransactionContext)
	Start()
	Reset()
}

// TransactionContext drives one attempt of one transaction on behalf of an
// actor. The actor issues store operations and registers continuations here;
// the engine resumes the actor when operations complete, transparently
// retrying failed attempts.
type TransactionContext interface {
	// Transaction returns the transaction this context is bound to. Actors
	// assert it to the backend's concrete type to reach the domain read and
	// write operations.
	Transaction() Transaction
	// ContinueAfter registers cont to run after f completes successfully.
	ContinueAfter(f *Future, cont Task)
	// ContinueAfterAll registers cont to run exactly once after every future
	// has completed, regardless of completion order.
	ContinueAfterAll(futures []*Future, cont Task)
	// Commit commits the transaction and finishes the context on success.
	Commit()
	// Done finishes the context and invokes the completion continuation.
	// It is a bug to call Done with operations still pending.
	Done()
}

// Transaction is the engine-facing surface of a backend transaction. Domain
// read/write operations are additional surface on the concrete backend types;
// the engine never needs them.
type Transaction interface {
	// ID returns the transaction ID.
	ID() UUID
	// Commit returns a future resolving to the commit outcome.
	Commit() *Future
	// OnError runs the store's retry protocol for err: the returned future
	// resolves successfully, after any protocol-mandated backoff, iff the
	// error class is retryable. Attempt-local staged state is discarded on a
	// successful resolution.
	OnError(err error) *Future
	// Close releases the transaction. Operations still in flight complete
	// with the cancellation sentinel.
	Close() error
}

// Connection is a store connection. Connections outlive any number of
// transactions and must be safe for concurrent transaction creation.
type Connection interface {
	CreateTransaction() (Transaction, error)
	Close() error
}

// OpenConnectionFunc opens one connection to the backing store. The executor
// invokes it once per pool slot at Init time.
type OpenConnectionFunc func(ctx context.Context) (Connection, error)
