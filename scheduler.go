package axon

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Maximum number of scheduler workers. Mirrors the pool cap enforced at
// construction time.
const MaxWorkerCount = 1000

// Scheduler runs fire-and-forget tasks on a fixed pool of workers fed from an
// unbounded FIFO queue. Lifecycle is Start -> Schedule... -> Stop -> Join.
// There is no ordering guarantee between tasks beyond FIFO dispatch; tasks
// handed to different workers run in parallel, in any relative order.
type Scheduler struct {
	workerCount int
	eg          *errgroup.Group

	mu       sync.Mutex
	notEmpty *sync.Cond
	queue    []Task
	stopped  bool
}

// NewScheduler creates a scheduler with the given pool size. The count must
// be in [1, MaxWorkerCount]; anything else is a configuration bug and panics.
func NewScheduler(workerCount int) *Scheduler {
	if workerCount < 1 || workerCount > MaxWorkerCount {
		panic(fmt.Sprintf("scheduler worker count %d is out of range [1..%d]", workerCount, MaxWorkerCount))
	}
	s := &Scheduler{
		workerCount: workerCount,
		eg:          &errgroup.Group{},
	}
	s.notEmpty = sync.NewCond(&s.mu)
	return s
}

// Start spins up the worker pool. Call it before scheduling work.
func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.eg.Go(func() error {
			s.workerLoop()
			return nil
		})
	}
}

// Schedule enqueues a task for execution on an arbitrary worker. It is safe
// to call from any number of goroutines concurrently and never blocks.
// Tasks scheduled after Stop are silently discarded.
func (s *Scheduler) Schedule(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.queue = append(s.queue, task)
	s.notEmpty.Signal()
}

// Stop signals that no more work will arrive. Tasks already queued still
// drain before the workers exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.notEmpty.Broadcast()
}

// Join blocks the caller until every worker has exited.
func (s *Scheduler) Join() error {
	return s.eg.Wait()
}

func (s *Scheduler) workerLoop() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.notEmpty.Wait()
		}
		if len(s.queue) == 0 {
			// Stopped and fully drained.
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		task()
	}
}
