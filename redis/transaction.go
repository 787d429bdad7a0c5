package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	sretry "github.com/sethvargo/go-retry"

	"github.com/axonkv/axon"
)

var errClosed = errors.New("redis connection is closed, 'can't create transaction")

// Transaction is optimistic: every key read is added to the WATCH set, and
// the staged writes are applied at commit as one MULTI/EXEC unit guarded by
// that set. A watched key changed by a concurrent writer fails the EXEC and
// surfaces as redis.TxFailedErr, which the retry protocol resolves as
// retryable.
type Transaction struct {
	id      axon.UUID
	client  *redis.Client
	backoff sretry.Backoff

	mu     sync.Mutex
	closed bool
	reads  map[string]struct{}
	writes []write
}

type write struct {
	key    string
	value  []byte
	delete bool
}

func newTransaction(client *redis.Client) *Transaction {
	return &Transaction{
		id:      axon.NewUUID(),
		client:  client,
		backoff: sretry.WithJitterPercent(25, sretry.NewFibonacci(5*time.Millisecond)),
		reads:   make(map[string]struct{}),
	}
}

func (t *Transaction) ID() axon.UUID { return t.id }

func (t *Transaction) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Get fetches key and adds it to the WATCH set so commit fails if the key
// changes underneath the transaction. A missing key completes with a nil
// Value and no error; an absent key is watched too.
func (t *Transaction) Get(key string) *axon.Future {
	f := axon.NewFuture()
	go func() {
		if t.isClosed() {
			f.Cancel()
			return
		}
		value, err := t.client.Get(context.Background(), key).Bytes()
		if err != nil && err != redis.Nil {
			f.Complete(nil, err)
			return
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			f.Cancel()
			return
		}
		t.reads[key] = struct{}{}
		t.mu.Unlock()
		if err == redis.Nil {
			f.Complete(nil, nil)
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

// Commit applies the staged writes as one MULTI/EXEC unit with the read set
// under WATCH. A watched key changed since it was read completes the future
// with redis.TxFailedErr.
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
		watched := make([]string, 0, len(t.reads))
		for key := range t.reads {
			watched = append(watched, key)
		}
		t.mu.Unlock()

		ctx := context.Background()
		err := t.client.Watch(ctx, func(tx *redis.Tx) error {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, w := range writes {
					if w.delete {
						pipe.Del(ctx, w.key)
						continue
					}
					pipe.Set(ctx, w.key, w.value, 0)
				}
				return nil
			})
			return err
		}, watched...)
		f.Complete(nil, err)
	}()
	return f
}

// OnError runs the retry protocol: the future resolves successfully, after a
// jittered Fibonacci backoff, iff err is a transient Redis failure. On
// success the staged write set and the WATCH set are discarded so the next
// attempt starts clean against the same transaction.
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
		t.reads = make(map[string]struct{})
		t.mu.Unlock()
		f.Complete(nil, nil)
	}()
	return f
}

// Close marks the transaction closed. Operations issued afterwards complete
// with the cancellation sentinel. The client belongs to the connection and
// stays open.
func (t *Transaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// shouldRetry classifies store errors for the retry protocol. Interrupted
// MULTI/EXEC units and transient network failures are retryable; everything
// else is final for the transaction.
func shouldRetry(err error) bool {
	if err == nil || axon.IsCancelled(err) {
		return false
	}
	if err == redis.Nil {
		return false
	}
	if errors.Is(err, redis.TxFailedErr) {
		return true
	}
	if axon.CodeOf(err) == axon.TransactionConflict {
		return true
	}
	// Any other server reply is a semantic failure (wrong type, bad command),
	// not a transient one.
	var serverErr redis.Error
	if errors.As(err, &serverErr) {
		return false
	}
	return axon.ShouldRetry(err)
}
