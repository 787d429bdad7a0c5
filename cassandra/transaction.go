package cassandra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	sretry "github.com/sethvargo/go-retry"

	"github.com/axonkv/axon"
)

// Transaction stages writes into a logged batch executed at commit, so the
// full write set is applied atomically by the cluster. Reads are served
// straight from the key-value table at the configured consistency.
type Transaction struct {
	id      axon.UUID
	conn    *Connection
	backoff sretry.Backoff

	mu     sync.Mutex
	closed bool
	writes []write
}

type write struct {
	key    string
	value  []byte
	delete bool
}

func newTransaction(conn *Connection) *Transaction {
	return &Transaction{
		id:      axon.NewUUID(),
		conn:    conn,
		backoff: sretry.WithJitterPercent(25, sretry.NewFibonacci(10*time.Millisecond)),
	}
}

func (t *Transaction) ID() axon.UUID { return t.id }

func (t *Transaction) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Get fetches key. A missing key completes with a nil Value and no error.
func (t *Transaction) Get(key string) *axon.Future {
	f := axon.NewFuture()
	go func() {
		if t.isClosed() {
			f.Cancel()
			return
		}
		var value []byte
		err := t.conn.Session.Query(
			fmt.Sprintf("SELECT value FROM %s.kv WHERE key = ?;", t.conn.Keyspace), key).
			Scan(&value)
		if err == gocql.ErrNotFound {
			f.Complete(nil, nil)
			return
		}
		if err != nil {
			f.Complete(nil, err)
			return
		}
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
		t.writes = append(t.writes, write{key: key, value: append([]byte(nil), value...)})
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
		t.writes = append(t.writes, write{key: key, delete: true})
		t.mu.Unlock()
		f.Complete(nil, nil)
	}()
	return f
}

// Commit executes the staged writes as one logged batch.
func (t *Transaction) Commit() *axon.Future {
	f := axon.NewFuture()
	go func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		writes := t.writes
		t.mu.Unlock()

		batch := t.conn.Session.NewBatch(gocql.LoggedBatch)
		for _, w := range writes {
			if w.delete {
				batch.Query(fmt.Sprintf("DELETE FROM %s.kv WHERE key = ?;", t.conn.Keyspace), w.key)
				continue
			}
			batch.Query(fmt.Sprintf("INSERT INTO %s.kv (key, value) VALUES (?, ?);", t.conn.Keyspace), w.key, w.value)
		}
		f.Complete(nil, t.conn.Session.ExecuteBatch(batch))
	}()
	return f
}

// OnError runs the retry protocol: the future resolves successfully, after a
// jittered Fibonacci backoff, iff err is a transient cluster failure. On
// success the staged write set is discarded for the next attempt.
func (t *Transaction) OnError(err error) *axon.Future {
	f := axon.NewFuture()
	go func() {
		if t.isClosed() {
			f.Cancel()
			return
		}
		if !shouldRetry(err) {
			f.Complete(nil, err)
			return
		}
		if pause, stop := t.backoff.Next(); !stop {
			axon.Sleep(context.Background(), pause)
		}
		t.mu.Lock()
		t.writes = nil
		t.mu.Unlock()
		f.Complete(nil, nil)
	}()
	return f
}

// Close marks the transaction closed. Operations issued afterwards complete
// with the cancellation sentinel. The session belongs to the connection and
// stays open.
func (t *Transaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// shouldRetry classifies cluster errors for the retry protocol. Timeouts,
// unavailability and overload are the transient ones; semantic failures
// (bad query, unauthorized) are final for the transaction.
func shouldRetry(err error) bool {
	if err == nil || axon.IsCancelled(err) {
		return false
	}
	if errors.Is(err, gocql.ErrTimeoutNoResponse) ||
		errors.Is(err, gocql.ErrNoConnections) ||
		errors.Is(err, gocql.ErrConnectionClosed) {
		return true
	}
	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code() {
		case gocql.ErrCodeWriteTimeout, gocql.ErrCodeReadTimeout,
			gocql.ErrCodeUnavailable, gocql.ErrCodeOverloaded:
			return true
		}
		return false
	}
	if axon.CodeOf(err) == axon.TransactionConflict {
		return true
	}
	return false
}
