package rollback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
)

// ErrQueueStopped is returned by Dispatch after Stop.
var ErrQueueStopped = errors.New("rollback queue stopped")

// Runner tears down one spoke.
type Runner interface {
	Rollback(ctx context.Context, spokeID int) error
}

// Queue feeds spoke ids to a fixed set of rollback workers.
type Queue struct {
	runner Runner
	log    logr.Logger
	jobs   chan int

	mu      sync.RWMutex
	stopped bool

	pendingMu sync.Mutex
	pending   map[int]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines that take ids from a buffer of size.
func NewQueue(runner Runner, workers, size int, log logr.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		runner:  runner,
		log:     log,
		jobs:    make(chan int, size),
		pending: make(map[int]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	q.wg.Add(workers)
	for i := range workers {
		go q.work(i)
	}
	return q
}

// Dispatch enqueues spokeID. It blocks only while the buffer is full. An id
// that is already waiting for a worker is not queued twice.
func (q *Queue) Dispatch(ctx context.Context, spokeID int) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}
	if !q.claim(spokeID) {
		q.log.V(1).Info("rollback already queued", "spoke_id", spokeID)
		return nil
	}
	select {
	case q.jobs <- spokeID:
		q.log.V(1).Info("rollback queued", "spoke_id", spokeID)
		return nil
	case <-ctx.Done():
		q.release(spokeID)
		return ctx.Err()
	}
}

func (q *Queue) claim(spokeID int) bool {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	if _, ok := q.pending[spokeID]; ok {
		return false
	}
	q.pending[spokeID] = struct{}{}
	return true
}

func (q *Queue) release(spokeID int) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	delete(q.pending, spokeID)
}

func (q *Queue) work(worker int) {
	defer q.wg.Done()
	log := q.log.WithValues("worker", worker)
	for spokeID := range q.jobs {
		// Released before the run so a spoke that fails again later can
		// be queued again.
		q.release(spokeID)
		if err := q.runner.Rollback(q.ctx, spokeID); err != nil {
			log.Error(err, "rollback finished with errors", "spoke_id", spokeID)
			continue
		}
		log.V(1).Info("rollback finished", "spoke_id", spokeID)
	}
}

// Stop refuses new work and waits for queued and running teardowns. When
// ctx ends first, running teardowns are cancelled and ctx's error returned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Resume dispatches every stored record left in rolling_back, which only
// happens when a process stopped in the middle of a teardown. It returns the
// number of records queued.
func (q *Queue) Resume(ctx context.Context, st store.Store) (int, error) {
	all, err := st.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list deployments: %w", err)
	}
	n := 0
	for _, d := range all {
		if d.Status != spoke.StatusRollingBack {
			continue
		}
		if err := q.Dispatch(ctx, d.SpokeID); err != nil {
			return n, fmt.Errorf("failed to queue rollback of spoke %d: %w", d.SpokeID, err)
		}
		q.log.Info("resuming interrupted rollback", "spoke_id", d.SpokeID)
		n++
	}
	return n, nil
}
