package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/axonkv/axon"
)

func conflictError(key string) error {
	return axon.Error{Code: axon.TransactionConflict, Err: fmt.Errorf("key %q changed under the transaction", key)}
}

// Transaction is one optimistic read-write set against the shared Database.
// Reads record the key version they observed; writes and deletes are staged
// and applied atomically at commit after the reads are validated. Every
// operation returns a future completed asynchronously, so the engine's two
// continuation strategies behave exactly as with a remote store.
type Transaction struct {
	id axon.UUID
	db *Database

	mu      sync.Mutex
	closed  bool
	reads   map[string]uint64
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newTransaction(db *Database) *Transaction {
	return &Transaction{
		id:      axon.NewUUID(),
		db:      db,
		reads:   make(map[string]uint64),
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (t *Transaction) ID() axon.UUID { return t.id }

// Get reads key. The future's Value is the value, nil when the key is absent.
// Reads see the transaction's own staged writes first.
func (t *Transaction) Get(key string) *axon.Future {
	f := axon.NewFuture()
	go func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		if v, ok := t.writes[key]; ok {
			t.mu.Unlock()
			f.Complete(v, nil)
			return
		}
		if _, ok := t.deletes[key]; ok {
			t.mu.Unlock()
			f.Complete(nil, nil)
			return
		}
		t.mu.Unlock()

		value, version := t.db.get(key)

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		// Keep the first observed version per key; commit validates it.
		if _, ok := t.reads[key]; !ok {
			t.reads[key] = version
		}
		t.mu.Unlock()
		f.Complete(value, nil)
	}()
	return f
}

// Set stages a write of key=value, applied at commit.
func (t *Transaction) Set(key string, value []byte) *axon.Future {
	f := axon.NewFuture()
	go func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		delete(t.deletes, key)
		t.writes[key] = append([]byte(nil), value...)
		t.mu.Unlock()
		f.Complete(nil, nil)
	}()
	return f
}

// Delete stages removal of key, applied at commit.
func (t *Transaction) Delete(key string) *axon.Future {
	f := axon.NewFuture()
	go func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		delete(t.writes, key)
		t.deletes[key] = struct{}{}
		t.mu.Unlock()
		f.Complete(nil, nil)
	}()
	return f
}

// Commit validates every recorded read and applies the staged writes
// atomically. A key changed by a concurrent commit completes the future with
// a TransactionConflict.
func (t *Transaction) Commit() *axon.Future {
	f := axon.NewFuture()
	go func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		reads, writes, deletes := t.reads, t.writes, t.deletes
		t.mu.Unlock()
		f.Complete(nil, t.db.commit(reads, writes, deletes))
	}()
	return f
}

// OnError runs the retry protocol: the future resolves successfully, after a
// short randomized pause staggering the conflicting transactions, iff err is
// retryable for this store. On success the attempt's staged reads and writes
// are discarded so the next attempt starts clean against the same
// transaction.
func (t *Transaction) OnError(err error) *axon.Future {
	f := axon.NewFuture()
	go func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		t.mu.Unlock()

		if !retryable(err) {
			f.Complete(nil, err)
			return
		}
		axon.RandomSleepWithUnit(context.Background(), time.Millisecond)
		t.mu.Lock()
		t.reads = make(map[string]uint64)
		t.writes = make(map[string][]byte)
		t.deletes = make(map[string]struct{})
		t.mu.Unlock()
		f.Complete(nil, nil)
	}()
	return f
}

// Close marks the transaction closed. Operations issued afterwards (and any
// still racing in) complete with the cancellation sentinel.
func (t *Transaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// retryable classifies err for the retry protocol. Only optimistic conflicts
// are retryable here; the in-memory store has no transient failure modes.
func retryable(err error) bool {
	return axon.CodeOf(err) == axon.TransactionConflict
}
