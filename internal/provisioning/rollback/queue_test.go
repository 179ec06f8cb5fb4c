package rollback_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/provisioning/rollback"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/spoke/spoketest"
	"github.com/imamik/hubspoke/internal/store"
)

// mockRunner implements rollback.Runner with a function field.
type mockRunner struct {
	RollbackFunc func(ctx context.Context, spokeID int) error
}

func (m *mockRunner) Rollback(ctx context.Context, spokeID int) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx, spokeID)
	}
	return nil
}

// seen records the ids a runner was called with.
type seen struct {
	mu  sync.Mutex
	ids []int
}

func (s *seen) add(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
}

func (s *seen) list() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.ids...)
}

func TestQueue_RunsDispatchedSpokes(t *testing.T) {
	var got seen
	q := rollback.NewQueue(&mockRunner{RollbackFunc: func(_ context.Context, id int) error {
		got.add(id)
		return nil
	}}, 3, 8, logr.Discard())

	for id := 1; id <= 5; id++ {
		require.NoError(t, q.Dispatch(context.Background(), id))
	}
	require.NoError(t, q.Stop(context.Background()))

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, got.list())
}

func TestQueue_DispatchAfterStop(t *testing.T) {
	q := rollback.NewQueue(&mockRunner{}, 1, 1, logr.Discard())
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()), "stop is idempotent")

	err := q.Dispatch(context.Background(), 1)
	assert.ErrorIs(t, err, rollback.ErrQueueStopped)
}

func TestQueue_DispatchHonorsContextWhenFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := rollback.NewQueue(&mockRunner{RollbackFunc: func(context.Context, int) error {
		close(started)
		<-release
		return nil
	}}, 1, 0, logr.Discard())

	require.NoError(t, q.Dispatch(context.Background(), 1))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Dispatch(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_CoalescesWaitingDispatches(t *testing.T) {
	var got seen
	started := make(chan struct{})
	release := make(chan struct{})
	q := rollback.NewQueue(&mockRunner{RollbackFunc: func(_ context.Context, id int) error {
		got.add(id)
		if id == 1 {
			close(started)
			<-release
		}
		return nil
	}}, 1, 8, logr.Discard())

	require.NoError(t, q.Dispatch(context.Background(), 1))
	<-started

	require.NoError(t, q.Dispatch(context.Background(), 2))
	require.NoError(t, q.Dispatch(context.Background(), 2), "a waiting id is not queued twice")
	require.NoError(t, q.Dispatch(context.Background(), 1), "a running id may be queued again")

	close(release)
	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, []int{1, 2, 1}, got.list())
}

func TestQueue_StopCancelsRunningWorkOnDeadline(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	q := rollback.NewQueue(&mockRunner{RollbackFunc: func(ctx context.Context, _ int) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}}, 1, 1, logr.Discard())

	require.NoError(t, q.Dispatch(context.Background(), 1))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	default:
		t.Fatal("running rollback was not cancelled")
	}
}

func TestQueue_ResumeInterruptedRollbacks(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	for id, status := range map[int]spoke.Status{
		1: spoke.StatusRollingBack,
		2: spoke.StatusFailed,
		3: spoke.StatusRollingBack,
		4: spoke.StatusCompleted,
	} {
		d := spoke.NewDeployment(spoketest.Config(t, id, "acme"), "op", now)
		d.Status = status
		require.NoError(t, st.Put(context.Background(), d))
	}

	var got seen
	q := rollback.NewQueue(&mockRunner{RollbackFunc: func(_ context.Context, id int) error {
		got.add(id)
		return nil
	}}, 2, 8, logr.Discard())

	n, err := q.Resume(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, q.Stop(context.Background()))
	assert.ElementsMatch(t, []int{1, 3}, got.list())
}

func TestQueue_WithEngine(t *testing.T) {
	e := newEnv(t)
	e.deploy(t, 20)
	e.deploy(t, 21)

	q := rollback.NewQueue(e.engine, e.cfg.Deployment.RollbackWorkers, e.cfg.Deployment.RollbackQueueSize, logr.Discard())
	require.NoError(t, q.Dispatch(context.Background(), 20))
	require.NoError(t, q.Dispatch(context.Background(), 21))
	require.NoError(t, q.Dispatch(context.Background(), 20), "duplicate dispatches are harmless")
	require.NoError(t, q.Stop(context.Background()))

	for _, id := range []int{20, 21} {
		d := e.get(t, id)
		assert.Equal(t, spoke.StatusRolledBack, d.Status)
		assert.Equal(t, 1, d.RollbackAttempts)
	}
	assert.True(t, e.cloud.Inventory().Empty())
}
