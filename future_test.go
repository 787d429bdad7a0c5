package axon

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func Test_Future_CompleteUnblocksWaiter(t *testing.T) {
	f := NewFuture()
	done := make(chan struct{})
	go func() {
		f.BlockUntilReady()
		close(done)
	}()
	f.Complete([]byte("v"), nil)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("BlockUntilReady did not return after Complete")
	}
	if f.Error() != nil {
		t.Fatalf("Error = %v, want nil", f.Error())
	}
	if string(f.Value()) != "v" {
		t.Fatalf("Value = %q, want %q", f.Value(), "v")
	}
}

func Test_Future_CallbackFiresExactlyOnce(t *testing.T) {
	f := NewFuture()
	var fired atomic.Int32
	done := make(chan struct{})
	f.SetCallback(func() {
		fired.Add(1)
		close(done)
	})
	f.Complete(nil, errors.New("boom"))
	<-done
	// Give a stray second invocation time to show up.
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("callback fired %d times, want 1", got)
	}
}

func Test_Future_CallbackAfterCompletionStillFires(t *testing.T) {
	f := NewFuture()
	f.Complete(nil, nil)
	done := make(chan struct{})
	f.SetCallback(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback registered after completion never fired")
	}
}

func Test_Future_SecondCompletePanics(t *testing.T) {
	f := NewFuture()
	f.Complete(nil, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("second Complete did not panic")
		}
	}()
	f.Complete(nil, nil)
}

func Test_Future_SecondCallbackPanics(t *testing.T) {
	f := NewFuture()
	f.SetCallback(func() {})
	defer func() {
		if recover() == nil {
			t.Fatal("second SetCallback did not panic")
		}
	}()
	f.SetCallback(func() {})
}

func Test_Future_CancelIsIdempotentWithComplete(t *testing.T) {
	f := NewFuture()
	f.Complete([]byte("kept"), nil)
	// Sweeping an already completed future must not panic nor clobber it.
	f.Cancel()
	if f.Error() != nil || string(f.Value()) != "kept" {
		t.Fatalf("Cancel clobbered a completed future: err=%v value=%q", f.Error(), f.Value())
	}

	g := NewFuture()
	g.Cancel()
	if !IsCancelled(g.Error()) {
		t.Fatalf("cancelled future error = %v, want cancellation sentinel", g.Error())
	}
}
