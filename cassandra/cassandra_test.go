package cassandra

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"github.com/axonkv/axon"
)

func Test_ShouldRetry_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout waiting for response", gocql.ErrTimeoutNoResponse, true},
		{"no connections", gocql.ErrNoConnections, true},
		{"connection closed", gocql.ErrConnectionClosed, true},
		{"wrapped timeout", fmt.Errorf("read: %w", gocql.ErrTimeoutNoResponse), true},
		{"cancellation sentinel", axon.Error{Code: axon.TransactionCancelled, Err: errors.New("cancelled")}, false},
		{"conflict", axon.Error{Code: axon.TransactionConflict, Err: errors.New("conflict")}, true},
		{"semantic failure", errors.New("line 1: syntax error"), false},
	}
	for _, tt := range tests {
		if got := shouldRetry(tt.err); got != tt.want {
			t.Errorf("%s: shouldRetry = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func waitReady(t *testing.T, f *axon.Future) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		f.BlockUntilReady()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("future never completed")
	}
}

// Staging is client-side only, no cluster needed.
func Test_Transaction_StagesWrites(t *testing.T) {
	tx := newTransaction(&Connection{Config: Config{Keyspace: "axon"}})
	waitReady(t, tx.Set("a", []byte("1")))
	waitReady(t, tx.Delete("b"))

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if len(tx.writes) != 2 {
		t.Fatalf("%d staged writes, want 2", len(tx.writes))
	}
	if !tx.writes[1].delete || tx.writes[1].key != "b" {
		t.Fatalf("last staged write = %+v, want delete of %q", tx.writes[1], "b")
	}
}

func Test_Transaction_ClosedCancelsOperations(t *testing.T) {
	tx := newTransaction(&Connection{Config: Config{Keyspace: "axon"}})
	if err := tx.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	for name, f := range map[string]*axon.Future{
		"get":    tx.Get("k"),
		"set":    tx.Set("k", []byte("v")),
		"commit": tx.Commit(),
	} {
		waitReady(t, f)
		if !axon.IsCancelled(f.Error()) {
			t.Fatalf("%s on a closed transaction = %v, want cancellation sentinel", name, f.Error())
		}
	}
}

func Test_Transaction_OnErrorClearsStagedWrites(t *testing.T) {
	tx := newTransaction(&Connection{Config: Config{Keyspace: "axon"}})
	waitReady(t, tx.Set("a", []byte("1")))

	r := tx.OnError(gocql.ErrTimeoutNoResponse)
	waitReady(t, r)
	if r.Error() != nil {
		t.Fatalf("OnError on a timeout = %v, want success", r.Error())
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if len(tx.writes) != 0 {
		t.Fatalf("%d staged writes survived the retry, want 0", len(tx.writes))
	}
}
