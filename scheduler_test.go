package axon

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func Test_Scheduler_RunsScheduledTasks(t *testing.T) {
	s := NewScheduler(4)
	s.Start()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		s.Schedule(func() {
			ran.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	if got := ran.Load(); got != 100 {
		t.Fatalf("ran %d tasks, want 100", got)
	}
	s.Stop()
	if err := s.Join(); err != nil {
		t.Fatalf("Join error: %v", err)
	}
}

func Test_Scheduler_TasksRunInParallel(t *testing.T) {
	s := NewScheduler(4)
	s.Start()
	defer func() {
		s.Stop()
		s.Join()
	}()

	// Four tasks rendezvous on a barrier; only a parallel pool gets past it.
	var wg sync.WaitGroup
	barrier := make(chan struct{})
	var arrived atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		s.Schedule(func() {
			defer wg.Done()
			if arrived.Add(1) == 4 {
				close(barrier)
			}
			<-barrier
		})
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run in parallel")
	}
}

func Test_Scheduler_StopDrainsQueuedTasks(t *testing.T) {
	// One worker, so queued tasks pile up behind a slow first task and are
	// still in the queue when Stop lands.
	s := NewScheduler(1)
	s.Start()

	release := make(chan struct{})
	var ran atomic.Int32
	s.Schedule(func() { <-release })
	for i := 0; i < 10; i++ {
		s.Schedule(func() { ran.Add(1) })
	}
	s.Stop()
	close(release)
	if err := s.Join(); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if got := ran.Load(); got != 10 {
		t.Fatalf("drained %d queued tasks, want 10", got)
	}
}

func Test_Scheduler_ScheduleAfterStopIsDropped(t *testing.T) {
	s := NewScheduler(2)
	s.Start()
	s.Stop()

	var ran atomic.Int32
	s.Schedule(func() { ran.Add(1) })
	if err := s.Join(); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if got := ran.Load(); got != 0 {
		t.Fatalf("task scheduled after Stop ran %d times, want 0", got)
	}
}

func Test_NewScheduler_WorkerCountBounds(t *testing.T) {
	for _, count := range []int{0, -1, MaxWorkerCount + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewScheduler(%d) did not panic", count)
				}
			}()
			NewScheduler(count)
		}()
	}
	// Bounds themselves are fine.
	NewScheduler(1)
	NewScheduler(MaxWorkerCount)
}
