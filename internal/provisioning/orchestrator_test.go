package provisioning_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/provider/fake"
	"github.com/imamik/hubspoke/internal/provisioning"
	"github.com/imamik/hubspoke/internal/provisioning/provisioningtest"
	"github.com/imamik/hubspoke/internal/provisioning/rollback"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/spoke/spoketest"
	"github.com/imamik/hubspoke/internal/store"
)

type harness struct {
	cfg    *config.Config
	cloud  *fake.Cloud
	store  *store.Locked
	orch   *provisioning.Orchestrator
	queue  *rollback.Queue
	events *provisioningtest.Recorder
}

// newHarness wires an orchestrator to the fake cloud, a memory store and a
// rollback queue. mutate may adjust the configuration first.
func newHarness(t *testing.T, mutate func(*config.Config), opts ...provisioning.Option) *harness {
	t.Helper()
	return newHarnessOn(t, store.NewMemoryStore(), mutate, opts...)
}

// newHarnessOn is newHarness over the given backend.
func newHarnessOn(t *testing.T, backend store.Store, mutate func(*config.Config), opts ...provisioning.Option) *harness {
	t.Helper()
	cfg := provisioningtest.Config()
	if mutate != nil {
		mutate(cfg)
	}
	h := &harness{
		cfg:    cfg,
		cloud:  fake.New(),
		store:  store.NewLocked(backend),
		events: provisioningtest.NewRecorder(),
	}
	engine := rollback.NewEngine(cfg, h.cloud, h.store, rollback.WithObserver(h.events))
	h.queue = rollback.NewQueue(engine, cfg.Deployment.RollbackWorkers, cfg.Deployment.RollbackQueueSize, logr.Discard())
	t.Cleanup(func() { _ = h.queue.Stop(context.Background()) })

	opts = append([]provisioning.Option{
		provisioning.WithRollback(h.queue),
		provisioning.WithObserver(h.events),
	}, opts...)
	orch, err := provisioning.NewOrchestrator(cfg, h.cloud, h.store, opts...)
	require.NoError(t, err)
	h.orch = orch
	return h
}

// drain waits for every queued rollback.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, h.queue.Stop(context.Background()))
}

func (h *harness) get(t *testing.T, spokeID int) *spoke.Deployment {
	t.Helper()
	d, err := h.orch.Get(context.Background(), spokeID)
	require.NoError(t, err)
	return d
}

// blockingPhase parks the workflow until release is closed.
type blockingPhase struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPhase() *blockingPhase {
	return &blockingPhase{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingPhase) Name() spoke.StepName { return spoke.StepValidate }

func (b *blockingPhase) Provision(ctx *provisioning.Context) error {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failingStore rejects writes of records that match fail.
type failingStore struct {
	store.Store

	mu   sync.Mutex
	fail func(d *spoke.Deployment) bool
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) failWhen(fn func(d *spoke.Deployment) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

func (s *failingStore) Put(ctx context.Context, d *spoke.Deployment) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail != nil && fail(d) {
		return errDiskFull
	}
	return s.Store.Put(ctx, d)
}

// parkedDispatcher accepts rollbacks without running them.
type parkedDispatcher struct {
	mu  sync.Mutex
	ids []int
}

func (p *parkedDispatcher) Dispatch(_ context.Context, spokeID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, spokeID)
	return nil
}

func (p *parkedDispatcher) dispatched() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.ids...)
}

// manualClock is a settable clock for the orchestrator.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCreate_EndToEnd(t *testing.T) {
	h := newHarness(t, nil)

	d, err := h.orch.Create(context.Background(), spoke.Configuration{
		SpokeID:      1,
		ClientName:   "acme",
		SSHPublicKey: spoketest.SSHPublicKey(t),
	})
	require.NoError(t, err)

	assert.Equal(t, spoke.StatusCompleted, d.Status)
	assert.Equal(t, 100.0, d.Progress())
	assert.NotNil(t, d.CompletedAt)
	assert.Empty(t, d.FailedStep)
	for _, s := range d.Steps {
		assert.Equal(t, spoke.StepStatusCompleted, s.Status, s.Name)
	}

	assert.Equal(t, "10.11.1.0/24", d.Config.AddressPrefix)
	assert.Equal(t, [4]string{"10.11.1.0/26", "10.11.1.64/26", "10.11.1.128/26", "10.11.1.192/26"}, d.Config.SubnetPrefixes())
	assert.Equal(t, "10.11.1.4", d.VMPrivateIP)
	assert.NotEmpty(t, d.VNetID)
	assert.Len(t, d.SubnetIDs, 4)
	assert.NotEmpty(t, d.NICID)
	assert.NotEmpty(t, d.VMID)
	assert.Len(t, d.PeeringIDs, 2)
	assert.Equal(t, d.Config.BackendPoolName, d.BackendPoolName)
	assert.Equal(t, d.Config.RoutingRuleName, d.RoutingRuleName)

	inv := h.cloud.Inventory()
	assert.Equal(t, []string{d.Config.VNetName}, inv.VNets)
	assert.Len(t, inv.HubPeerings, 1)
	assert.Equal(t, []string{d.Config.BackendPoolName}, inv.BackendPools)
	assert.Equal(t, []string{d.Config.RoutingRuleName}, inv.RoutingRules)

	stored := h.get(t, 1)
	assert.Equal(t, d.OperationID, stored.OperationID)
	assert.Equal(t, spoke.StatusCompleted, stored.Status)

	types := h.events.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, provisioning.EventDeploymentStarted, types[0])
	assert.Equal(t, provisioning.EventDeploymentCompleted, types[len(types)-1])
	progress := h.events.ProgressUpdates()
	require.Len(t, progress, len(spoke.StepOrder))
	assert.Equal(t, len(spoke.StepOrder), progress[len(progress)-1].Current)
}

func TestCreate_FailureAtStep(t *testing.T) {
	tests := []struct {
		step spoke.StepName
		op   string
	}{
		{spoke.StepCreateNetwork, fake.OpCreateVNet},
		{spoke.StepCreateSubnets, fake.OpCreateSubnets},
		{spoke.StepCreateNIC, fake.OpCreateNIC},
		{spoke.StepCreateVM, fake.OpCreateVM},
		{spoke.StepWaitVMReady, fake.OpGetVMStatus},
		{spoke.StepReadVMPrivateIP, fake.OpGetVMPrivateIP},
		{spoke.StepCreatePeering, fake.OpCreatePeering},
		{spoke.StepVerifyPeering, fake.OpGetPeeringStatus},
		{spoke.StepUpdateGateway, fake.OpAddBackendPool},
	}
	for _, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			h := newHarness(t, func(c *config.Config) { c.Deployment.EnableRollback = false })
			cause := fmt.Errorf("injected failure in %s", tt.op)
			h.cloud.Inject(tt.op, fake.FailAlways(cause))

			d, err := h.orch.Create(context.Background(), spoketest.Config(t, 2, "acme"))

			var derr *provisioning.DeploymentError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.step, derr.Step)
			assert.Equal(t, 2, derr.SpokeID)
			assert.False(t, derr.RollbackQueued)
			assert.ErrorIs(t, err, cause)

			require.NotNil(t, d)
			assert.Equal(t, spoke.StatusFailed, d.Status)
			assert.Equal(t, tt.step, d.FailedStep)
			assert.Contains(t, d.ErrorMessage, "injected failure")
			assert.NotNil(t, d.FailedAt)

			k := -1
			for i, name := range spoke.StepOrder {
				if name == tt.step {
					k = i
				}
			}
			require.GreaterOrEqual(t, k, 0)
			for i, s := range d.Steps {
				switch {
				case i < k:
					assert.Equal(t, spoke.StepStatusCompleted, s.Status, s.Name)
				case i == k:
					assert.Equal(t, spoke.StepStatusFailed, s.Status, s.Name)
					assert.Contains(t, s.ErrorMessage, "injected failure")
				default:
					assert.Equal(t, spoke.StepStatusPending, s.Status, s.Name)
				}
			}
			assert.Equal(t, d, h.get(t, 2))
		})
	}
}

func TestCreate_RoutingRuleFailureKeepsBackendPool(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Deployment.EnableRollback = false })
	h.cloud.Inject(fake.OpCreateRoutingRule, fake.FailAlways(errors.New("listener busy")))

	d, err := h.orch.Create(context.Background(), spoketest.Config(t, 18, "acme"))
	require.Error(t, err)

	assert.Equal(t, spoke.StepUpdateGateway, d.FailedStep)
	assert.Equal(t, d.Config.BackendPoolName, d.BackendPoolName, "the pool was added before the failure")
	assert.Empty(t, d.RoutingRuleName)
	assert.Equal(t, d.BackendPoolName, h.get(t, 18).BackendPoolName)
}

func TestCreate_QuotaExceededRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.cloud.Inject(fake.OpCreateVM, fake.FailAlways(fmt.Errorf("cores: %w", spoke.ErrQuotaExceeded)))

	d, err := h.orch.Create(context.Background(), spoketest.Config(t, 3, "acme"))

	var derr *provisioning.DeploymentError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, spoke.ErrQuotaExceeded)
	assert.Equal(t, spoke.StepCreateVM, derr.Step)
	assert.True(t, derr.RollbackQueued)
	assert.Contains(t, err.Error(), "rollback queued")
	assert.Equal(t, spoke.StatusFailed, d.Status)

	h.drain(t)

	got := h.get(t, 3)
	assert.Equal(t, spoke.StatusRolledBack, got.Status)
	assert.Equal(t, spoke.StepCreateVM, got.FailedStep)
	assert.Empty(t, got.RollbackErrors)
	assert.Equal(t, 1, got.RollbackAttempts)
	assert.NotNil(t, got.FailedAt)
	assert.NotNil(t, got.RollbackStartedAt)
	assert.NotNil(t, got.RollbackFinishedAt)
	assert.True(t, h.cloud.Inventory().Empty(), "inventory: %+v", h.cloud.Inventory())
}

func TestCreate_CompletionWriteFailureRollsBack(t *testing.T) {
	backend := &failingStore{Store: store.NewMemoryStore()}
	backend.failWhen(func(d *spoke.Deployment) bool { return d.Status == spoke.StatusCompleted })
	h := newHarnessOn(t, backend, nil)

	d, err := h.orch.Create(context.Background(), spoketest.Config(t, 19, "acme"))

	var derr *provisioning.DeploymentError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, spoke.StepPersist, derr.Step)
	assert.True(t, derr.RollbackQueued)
	assert.Equal(t, spoke.StatusFailed, d.Status)
	assert.Equal(t, spoke.StepPersist, d.FailedStep)
	assert.Contains(t, d.ErrorMessage, "disk full")

	h.drain(t)
	got := h.get(t, 19)
	assert.Equal(t, spoke.StatusRolledBack, got.Status)
	assert.True(t, h.cloud.Inventory().Empty(), "inventory: %+v", h.cloud.Inventory())
}

func TestCreate_AbandonedWorkflowIsTakenOver(t *testing.T) {
	takeovers := map[string]func(t *testing.T, h *harness, spokeID int){
		"recover": func(t *testing.T, h *harness, _ int) {
			n, err := h.orch.Recover(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = h.orch.Recover(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n, "a recovered record is no longer abandoned")
		},
		"delete": func(t *testing.T, h *harness, spokeID int) {
			d, err := h.orch.Delete(context.Background(), spokeID)
			require.NoError(t, err)
			assert.Equal(t, spoke.StatusRollingBack, d.Status)
			assert.Equal(t, spoke.StepCreateVM, d.FailedStep)
		},
	}
	for name, takeover := range takeovers {
		t.Run(name, func(t *testing.T) {
			clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			backend := &failingStore{Store: store.NewMemoryStore()}
			// Every write after the VM exists fails, as if the process had
			// lost its store halfway through the workflow.
			backend.failWhen(func(d *spoke.Deployment) bool {
				s := d.Step(spoke.StepCreateVM)
				return s != nil && (s.Status == spoke.StepStatusCompleted || s.Status == spoke.StepStatusFailed)
			})
			h := newHarnessOn(t, backend, nil, provisioning.WithClock(clock.Now))

			_, err := h.orch.Create(context.Background(), spoketest.Config(t, 20, "acme"))
			var derr *provisioning.DeploymentError
			require.ErrorAs(t, err, &derr)
			assert.False(t, derr.RollbackQueued)

			stuck := h.get(t, 20)
			require.Equal(t, spoke.StatusInProgress, stuck.Status)
			require.Len(t, h.cloud.Inventory().VMs, 1)

			backend.failWhen(nil)
			_, err = h.orch.Delete(context.Background(), 20)
			assert.ErrorIs(t, err, spoke.ErrConflict, "a recent record may still be driven elsewhere")
			n, err := h.orch.Recover(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)

			clock.Advance(h.cfg.Timeouts.Deployment + time.Second)
			takeover(t, h, 20)
			h.drain(t)

			got := h.get(t, 20)
			assert.Equal(t, spoke.StatusRolledBack, got.Status)
			assert.Equal(t, spoke.StepCreateVM, got.FailedStep)
			assert.Contains(t, got.ErrorMessage, "abandoned")
			assert.True(t, h.cloud.Inventory().Empty(), "inventory: %+v", h.cloud.Inventory())
		})
	}
}

func TestRecover_SkipsRunningWorkflow(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	block := newBlockingPhase()
	h := newHarness(t, nil, provisioning.WithPhases(block), provisioning.WithClock(clock.Now))

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Create(context.Background(), spoketest.Config(t, 21, "acme"))
		done <- err
	}()
	<-block.started
	clock.Advance(h.cfg.Timeouts.Deployment + time.Second)

	n, err := h.orch.Recover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = h.orch.Delete(context.Background(), 21)
	assert.ErrorIs(t, err, spoke.ErrConflict)

	close(block.release)
	require.NoError(t, <-done)
}

func TestCreate_ValidationErrorTouchesNothing(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Create(context.Background(), spoke.Configuration{SpokeID: 4, ClientName: "acme"})
	assert.ErrorIs(t, err, spoke.ErrValidation)

	_, err = h.orch.Create(context.Background(), spoke.Configuration{SpokeID: 255, ClientName: "acme", SSHPublicKey: spoketest.SSHPublicKey(t)})
	assert.ErrorIs(t, err, spoke.ErrValidation)

	assert.Empty(t, h.cloud.Calls())
	_, err = h.orch.Get(context.Background(), 4)
	assert.ErrorIs(t, err, spoke.ErrNotFound)
}

func TestCreate_HubOverlapFailsValidateStep(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Hub.VNetCIDR = "10.11.0.0/16"
		c.Deployment.EnableRollback = false
	})

	d, err := h.orch.Create(context.Background(), spoketest.Config(t, 5, "acme"))

	var derr *provisioning.DeploymentError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, spoke.StepValidate, derr.Step)
	assert.Contains(t, err.Error(), "overlaps hub range")
	assert.Equal(t, spoke.StepValidate, d.FailedStep)
	assert.Empty(t, h.cloud.Calls())
}

func TestCreate_Capacity(t *testing.T) {
	block := newBlockingPhase()
	h := newHarness(t, func(c *config.Config) { c.Deployment.MaxConcurrent = 1 }, provisioning.WithPhases(block))

	first := spoketest.Config(t, 6, "acme")
	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Create(context.Background(), first)
		done <- err
	}()
	<-block.started

	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 7, "acme"))
	assert.ErrorIs(t, err, spoke.ErrCapacity)

	close(block.release)
	require.NoError(t, <-done)

	_, err = h.orch.Create(context.Background(), spoketest.Config(t, 7, "acme"))
	assert.NoError(t, err, "the slot is released when a workflow ends")
}

func TestCreate_Conflict(t *testing.T) {
	h := newHarness(t, nil)
	cfg := spoketest.Config(t, 8, "acme")

	_, err := h.orch.Create(context.Background(), cfg)
	require.NoError(t, err)

	_, err = h.orch.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, spoke.ErrConflict, "a completed spoke cannot be created again")

	_, err = h.orch.Delete(context.Background(), 8)
	require.NoError(t, err)
	h.drain(t)
	require.Equal(t, spoke.StatusRolledBack, h.get(t, 8).Status)

	h2, err := provisioning.NewOrchestrator(h.cfg, h.cloud, h.store)
	require.NoError(t, err)
	d, err := h2.Create(context.Background(), cfg)
	require.NoError(t, err, "a rolled back spoke may be created again")
	assert.Equal(t, spoke.StatusCompleted, d.Status)
	assert.Zero(t, d.RollbackAttempts)
}

func TestCreate_ConflictWhileRunning(t *testing.T) {
	block := newBlockingPhase()
	h := newHarness(t, nil, provisioning.WithPhases(block))

	first := spoketest.Config(t, 9, "acme")
	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Create(context.Background(), first)
		done <- err
	}()
	<-block.started

	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 9, "acme"))
	assert.ErrorIs(t, err, spoke.ErrConflict)
	_, err = h.orch.Delete(context.Background(), 9)
	assert.ErrorIs(t, err, spoke.ErrConflict)
	err = h.orch.Purge(context.Background(), 9)
	assert.ErrorIs(t, err, spoke.ErrConflict)

	close(block.release)
	require.NoError(t, <-done)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 10, "acme"))
	require.NoError(t, err)

	d, err := h.orch.Delete(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, spoke.StatusRollingBack, d.Status)

	h.drain(t)
	got := h.get(t, 10)
	assert.Equal(t, spoke.StatusRolledBack, got.Status)
	assert.NotNil(t, got.CompletedAt, "completion stays on the record")
	assert.True(t, h.cloud.Inventory().Empty())

	d, err = h.orch.Delete(context.Background(), 10)
	require.NoError(t, err, "deleting a rolled back spoke is a no-op")
	assert.Equal(t, spoke.StatusRolledBack, d.Status)
	assert.Equal(t, got.UpdatedAt, d.UpdatedAt)

	_, err = h.orch.Delete(context.Background(), 11)
	assert.ErrorIs(t, err, spoke.ErrNotFound)
}

func TestDelete_QueueStopped(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 12, "acme"))
	require.NoError(t, err)
	h.drain(t)

	d, err := h.orch.Delete(context.Background(), 12)
	assert.ErrorIs(t, err, rollback.ErrQueueStopped)
	require.NotNil(t, d)
	assert.Equal(t, spoke.StatusRollingBack, d.Status, "a later resume picks the record up")
}

func TestPurge(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Deployment.EnableRollback = false })
	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 13, "acme"))
	require.NoError(t, err)

	require.NoError(t, h.orch.Purge(context.Background(), 13))
	_, err = h.orch.Get(context.Background(), 13)
	assert.ErrorIs(t, err, spoke.ErrNotFound)
	assert.ErrorIs(t, h.orch.Purge(context.Background(), 13), spoke.ErrNotFound)
}

func TestPurge_FailedSpokeWithQueuedRollback(t *testing.T) {
	parked := &parkedDispatcher{}
	h := newHarness(t, nil, provisioning.WithRollback(parked))
	h.cloud.Inject(fake.OpCreateVM, fake.FailAlways(errors.New("allocation failed")))

	d, err := h.orch.Create(context.Background(), spoketest.Config(t, 22, "acme"))
	require.Error(t, err)
	require.Equal(t, spoke.StatusFailed, d.Status)
	require.Equal(t, []int{22}, parked.dispatched())

	err = h.orch.Purge(context.Background(), 22)
	assert.ErrorIs(t, err, spoke.ErrConflict)
	assert.Equal(t, spoke.StatusFailed, h.get(t, 22).Status, "the record outlives the refused purge")
	assert.NotEmpty(t, h.cloud.Inventory().VNets)
}

func TestPurge_FailedSpokeWithoutRollback(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Deployment.EnableRollback = false })
	h.cloud.Inject(fake.OpCreateVM, fake.FailAlways(errors.New("allocation failed")))

	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 23, "acme"))
	require.Error(t, err)

	require.NoError(t, h.orch.Purge(context.Background(), 23))
	_, err = h.orch.Get(context.Background(), 23)
	assert.ErrorIs(t, err, spoke.ErrNotFound)
}

func TestList(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Deployment.EnableRollback = false })
	for _, id := range []int{3, 1, 2} {
		_, err := h.orch.Create(context.Background(), spoketest.Config(t, id, "acme"))
		require.NoError(t, err)
	}
	h.cloud.Inject(fake.OpCreateVNet, fake.FailAlways(errors.New("boom")))
	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 4, "acme"))
	require.Error(t, err)

	all, err := h.orch.List(context.Background(), provisioning.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, d := range all {
		assert.Equal(t, i+1, d.SpokeID)
	}

	completed, err := h.orch.List(context.Background(), provisioning.ListFilter{Status: spoke.StatusCompleted, Limit: 2})
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, 1, completed[0].SpokeID)
	assert.Equal(t, 2, completed[1].SpokeID)

	failed, err := h.orch.List(context.Background(), provisioning.ListFilter{Status: spoke.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 4, failed[0].SpokeID)

	_, err = h.orch.List(context.Background(), provisioning.ListFilter{Status: "exploded"})
	assert.ErrorIs(t, err, spoke.ErrValidation)

	stats, err := h.orch.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 14, "acme"))
	require.NoError(t, err)

	st, err := h.orch.Status(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, spoke.StatusCompleted, st.Deployment.Status)
	assert.True(t, st.Live.VNetExists)
	assert.Equal(t, provider.VMRunning, st.Live.VMPowerState)
	assert.Equal(t, "10.11.14.4", st.Live.VMPrivateIP)
	assert.True(t, st.Live.BackendPoolConfigured)
	assert.Empty(t, st.Live.ProbeErrors)

	_, err = h.orch.Delete(context.Background(), 14)
	require.NoError(t, err)
	h.drain(t)

	st, err = h.orch.Status(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, spoke.StatusRolledBack, st.Deployment.Status)
	assert.False(t, st.Live.VNetExists)
	assert.Empty(t, st.Live.VMPowerState)
	assert.False(t, st.Live.BackendPoolConfigured)
	assert.Empty(t, st.Live.ProbeErrors, "absent resources are not probe errors")

	_, err = h.orch.Status(context.Background(), 15)
	assert.ErrorIs(t, err, spoke.ErrNotFound)
}

func TestStatus_ProbeErrors(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Create(context.Background(), spoketest.Config(t, 16, "acme"))
	require.NoError(t, err)
	h.cloud.Inject(fake.OpBackendPoolExists, fake.FailAlways(errors.New("gateway unreachable")))

	st, err := h.orch.Status(context.Background(), 16)
	require.NoError(t, err)
	assert.True(t, st.Live.VNetExists)
	require.Len(t, st.Live.ProbeErrors, 1)
	assert.Contains(t, st.Live.ProbeErrors[0], "gateway unreachable")
}

func TestConcurrentCreateAndDelete(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Deployment.MaxConcurrent = 8 })
	cfg := spoketest.Config(t, 5, "acme")

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 4 {
				var err error
				if i%2 == 0 {
					_, err = h.orch.Create(context.Background(), cfg)
				} else {
					_, err = h.orch.Delete(context.Background(), 5)
				}
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	h.drain(t)

	for err := range errs {
		var derr *provisioning.DeploymentError
		ok := errors.Is(err, spoke.ErrConflict) || errors.Is(err, spoke.ErrNotFound) ||
			errors.Is(err, spoke.ErrCapacity) || errors.As(err, &derr)
		assert.True(t, ok, "unexpected error: %v", err)
	}

	d := h.get(t, 5)
	inv := h.cloud.Inventory()
	switch d.Status {
	case spoke.StatusCompleted:
		assert.Equal(t, 100.0, d.Progress())
		assert.Equal(t, []string{cfg.VNetName}, inv.VNets)
		assert.Equal(t, []string{cfg.VMName}, inv.VMs)
	case spoke.StatusRolledBack:
		assert.Empty(t, inv.VNets)
		assert.Empty(t, inv.VMs)
		assert.Empty(t, inv.NICs)
	default:
		t.Fatalf("spoke 5 ended in unexpected status %s", d.Status)
	}
}
