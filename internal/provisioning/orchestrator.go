package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/imamik/hubspoke/internal/addressing"
	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
)

// Dispatcher hands a spoke id to the rollback workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, spokeID int) error
}

// Orchestrator runs forward workflows and accepts teardown requests.
type Orchestrator struct {
	cfg      *config.Config
	cloud    provider.Cloud
	store    *store.Locked
	planner  *addressing.Planner
	defaults spoke.Defaults
	slots    *semaphore.Weighted
	rollback Dispatcher
	observer Observer
	log      logr.Logger
	now      func() time.Time
	newID    func() string
	phases   []Phase

	mu      sync.Mutex
	running map[int]string
}

// errAbandoned marks a forward workflow no process is driving any more.
var errAbandoned = errors.New("workflow abandoned: no progress recorded within the deployment timeout")

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRollback sets the queue failed and deleted spokes are sent to.
func WithRollback(d Dispatcher) Option {
	return func(o *Orchestrator) { o.rollback = d }
}

// WithObserver sets the event observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithPhases replaces the forward workflow. Used by tests.
func WithPhases(phases ...Phase) Option {
	return func(o *Orchestrator) { o.phases = phases }
}

// NewOrchestrator creates an orchestrator. cfg must not be modified
// afterwards.
func NewOrchestrator(cfg *config.Config, cloud provider.Cloud, st *store.Locked, opts ...Option) (*Orchestrator, error) {
	planner, err := cfg.Planner()
	if err != nil {
		return nil, err
	}
	maxConcurrent := cfg.Deployment.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	o := &Orchestrator{
		cfg:      cfg,
		cloud:    cloud,
		store:    st,
		planner:  planner,
		defaults: cfg.SpokeDefaults(),
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		log:      logr.Discard(),
		now:      time.Now,
		newID:    uuid.NewString,
		phases:   Phases(),
		running:  make(map[int]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.observer == nil {
		o.observer = NewLogObserver(o.log)
	}
	return o, nil
}

// Normalize fills the derivable fields of cfg from the process defaults.
func (o *Orchestrator) Normalize(cfg spoke.Configuration) spoke.Configuration {
	return cfg.Normalize(o.defaults, o.planner)
}

// Create provisions a spoke and blocks until the workflow finishes. The
// returned record reflects the final persisted state; on failure it is
// returned together with a *DeploymentError.
func (o *Orchestrator) Create(ctx context.Context, req spoke.Configuration) (*spoke.Deployment, error) {
	cfg := o.Normalize(req)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !o.slots.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %d deployments already running", spoke.ErrCapacity, o.cfg.Deployment.MaxConcurrent)
	}
	defer o.slots.Release(1)

	opID := o.newID()
	rec, err := o.store.Update(ctx, cfg.SpokeID, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
		if cur != nil && cur.Status != spoke.StatusRolledBack {
			return nil, fmt.Errorf("%w: spoke %d is %s", spoke.ErrConflict, cfg.SpokeID, cur.Status)
		}
		return spoke.NewDeployment(cfg, opID, o.now()), nil
	})
	if err != nil {
		return nil, err
	}
	o.track(cfg.SpokeID, opID)
	defer o.untrack(cfg.SpokeID, opID)

	deploymentsInFlight.Inc()
	defer deploymentsInFlight.Dec()
	start := o.now()

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Deployment)
	defer cancel()
	runCtx, span := StartSpan(runCtx, "deployment.create", cfg.SpokeID)

	observer := o.observer.WithFields(map[string]string{"operation_id": opID})
	observer.Event(Event{Type: EventDeploymentStarted, SpokeID: cfg.SpokeID, Message: "deployment started"})

	pctx := &Context{
		Context:     runCtx,
		Spoke:       cfg,
		OperationID: opID,
		HubCIDR:     o.cfg.Hub.VNetCIDR,
		State:       NewState(),
		Cloud:       o.cloud,
		Observer:    observer,
		Timeouts:    o.cfg.Timeouts,
		Log:         o.log.WithValues("spoke_id", cfg.SpokeID, "operation_id", opID),
	}
	tracker := &recordTracker{o: o, spokeID: cfg.SpokeID, opID: opID, state: pctx.State, last: rec}

	runErr := RunPhases(pctx, o.phases, tracker)
	if runErr == nil {
		runErr = tracker.complete(context.WithoutCancel(ctx))
	}
	EndSpan(span, runErr)

	if runErr == nil {
		recordDeployment("completed", o.now().Sub(start).Seconds())
		observer.Event(Event{Type: EventDeploymentCompleted, SpokeID: cfg.SpokeID, Message: "deployment completed"})
		return tracker.last, nil
	}

	recordDeployment("failed", o.now().Sub(start).Seconds())
	observer.Event(Event{Type: EventDeploymentFailed, SpokeID: cfg.SpokeID, Message: runErr.Error()})

	derr := &DeploymentError{SpokeID: cfg.SpokeID, Err: runErr}
	var stepErr *StepError
	if errors.As(runErr, &stepErr) {
		derr.Step = stepErr.Step
		derr.Err = stepErr.Err
	}
	if forward(tracker.last.Status) {
		// The failure was not recorded, usually because a store write failed.
		err := tracker.update(context.WithoutCancel(ctx), func(d *spoke.Deployment) error {
			return d.Abandon(runErr, o.now())
		})
		if err != nil {
			o.log.Error(err, "failed to record deployment failure, the record is left for recovery", "spoke_id", cfg.SpokeID)
		}
	}
	if derr.Step == "" {
		derr.Step = tracker.last.FailedStep
	}
	if o.cfg.Deployment.EnableRollback && o.rollback != nil && tracker.last.Status == spoke.StatusFailed {
		if err := o.rollback.Dispatch(context.WithoutCancel(ctx), cfg.SpokeID); err != nil {
			o.log.Error(err, "failed to queue rollback", "spoke_id", cfg.SpokeID)
		} else {
			derr.RollbackQueued = true
		}
	}
	return tracker.last, derr
}

// recordTracker persists step transitions, but only while the record still
// belongs to this operation and is in a forward status.
type recordTracker struct {
	o       *Orchestrator
	spokeID int
	opID    string
	state   *State
	last    *spoke.Deployment
}

func (t *recordTracker) update(ctx context.Context, fn func(d *spoke.Deployment) error) error {
	rec, err := t.o.store.Update(ctx, t.spokeID, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
		if cur == nil || cur.OperationID != t.opID {
			return nil, fmt.Errorf("%w: spoke %d was taken over by another operation", spoke.ErrConflict, t.spokeID)
		}
		if cur.Status != spoke.StatusPending && cur.Status != spoke.StatusInProgress {
			return nil, fmt.Errorf("%w: spoke %d is %s", spoke.ErrConflict, t.spokeID, cur.Status)
		}
		t.state.Apply(cur.Config, &cur.Resources)
		if err := fn(cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return err
	}
	t.last = rec
	return nil
}

func (t *recordTracker) StepStarted(ctx context.Context, name spoke.StepName) error {
	return t.update(ctx, func(d *spoke.Deployment) error {
		return d.StartStep(name, t.o.now())
	})
}

func (t *recordTracker) StepCompleted(ctx context.Context, name spoke.StepName) error {
	return t.update(ctx, func(d *spoke.Deployment) error {
		return d.CompleteStep(name, t.o.now())
	})
}

func (t *recordTracker) StepFailed(ctx context.Context, name spoke.StepName, cause error) error {
	return t.update(ctx, func(d *spoke.Deployment) error {
		return d.FailStep(name, cause, t.o.now())
	})
}

func (t *recordTracker) complete(ctx context.Context) error {
	return t.update(ctx, func(d *spoke.Deployment) error {
		return d.Transition(spoke.StatusCompleted, t.o.now())
	})
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status spoke.Status
	Limit  int
}

// Get returns the stored record.
func (o *Orchestrator) Get(ctx context.Context, spokeID int) (*spoke.Deployment, error) {
	return o.store.Get(ctx, spokeID)
}

// List returns stored records ordered by spoke id.
func (o *Orchestrator) List(ctx context.Context, filter ListFilter) ([]*spoke.Deployment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", spoke.ErrValidation, filter.Status)
	}
	all, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*spoke.Deployment, 0, len(all))
	for _, d := range all {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, d)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Stats summarizes the stored records.
func (o *Orchestrator) Stats(ctx context.Context) (store.Stats, error) {
	return store.ComputeStats(ctx, o.store)
}

// forward reports whether a forward workflow owns a record in status s.
func forward(s spoke.Status) bool {
	return s == spoke.StatusPending || s == spoke.StatusInProgress
}

func (o *Orchestrator) track(spokeID int, opID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running[spokeID] = opID
}

func (o *Orchestrator) untrack(spokeID int, opID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[spokeID] == opID {
		delete(o.running, spokeID)
	}
}

// abandoned reports whether d is a forward workflow that this process is not
// running and that has not recorded progress within the deployment timeout.
// Such a record was left behind by a crashed process or a failed write.
func (o *Orchestrator) abandoned(d *spoke.Deployment) bool {
	if !forward(d.Status) {
		return false
	}
	o.mu.Lock()
	opID, ok := o.running[d.SpokeID]
	o.mu.Unlock()
	if ok && opID == d.OperationID {
		return false
	}
	return o.now().Sub(d.UpdatedAt) > o.cfg.Timeouts.Deployment
}

// deletable are the statuses a teardown may be requested from.
func deletable(s spoke.Status) bool {
	switch s {
	case spoke.StatusCompleted, spoke.StatusFailed, spoke.StatusRolledBack, spoke.StatusRollbackFailed:
		return true
	default:
		return false
	}
}

// purgeable are the statuses whose record may be dropped. With rollback
// enabled a failed record still has its teardown queued.
func (o *Orchestrator) purgeable(s spoke.Status) bool {
	if s == spoke.StatusFailed {
		return !o.cfg.Deployment.EnableRollback
	}
	return deletable(s)
}

// Delete requests teardown of a spoke and returns without waiting for it.
// A rolled_back record stays as it is and nothing is queued. An abandoned
// forward workflow is failed first and then torn down.
func (o *Orchestrator) Delete(ctx context.Context, spokeID int) (*spoke.Deployment, error) {
	if o.rollback == nil {
		return nil, errors.New("no rollback queue configured")
	}
	rec, err := o.store.Update(ctx, spokeID, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
		if cur == nil {
			return nil, fmt.Errorf("deployment for spoke %d: %w", spokeID, spoke.ErrNotFound)
		}
		if o.abandoned(cur) {
			o.log.Info("taking over abandoned deployment", "spoke_id", spokeID, "operation_id", cur.OperationID)
			if err := cur.Abandon(errAbandoned, o.now()); err != nil {
				return nil, err
			}
		}
		if !deletable(cur.Status) {
			return nil, fmt.Errorf("%w: spoke %d is %s", spoke.ErrConflict, spokeID, cur.Status)
		}
		if cur.Status == spoke.StatusRolledBack {
			return nil, nil
		}
		if err := cur.Transition(spoke.StatusRollingBack, o.now()); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	if rec.Status == spoke.StatusRolledBack {
		// Nothing is left to tear down. Queuing the id anyway could tear
		// down a later re-create of the same spoke.
		o.log.V(1).Info("spoke already rolled back", "spoke_id", spokeID)
		return rec, nil
	}

	if err := o.rollback.Dispatch(ctx, spokeID); err != nil {
		return rec, fmt.Errorf("failed to queue teardown of spoke %d: %w", spokeID, err)
	}
	o.log.Info("teardown requested", "spoke_id", spokeID, "status", string(rec.Status))
	return rec, nil
}

// Purge removes the record of a spoke that is not being worked on.
func (o *Orchestrator) Purge(ctx context.Context, spokeID int) error {
	return o.store.Remove(ctx, spokeID, func(cur *spoke.Deployment) error {
		if !o.purgeable(cur.Status) {
			return fmt.Errorf("%w: spoke %d is %s", spoke.ErrConflict, spokeID, cur.Status)
		}
		return nil
	})
}

// Recover fails every abandoned forward workflow and, with rollback enabled,
// queues its teardown. It returns the number of records recovered.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	all, err := o.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list deployments: %w", err)
	}
	n := 0
	for _, d := range all {
		if !o.abandoned(d) {
			continue
		}
		var changed bool
		_, err := o.store.Update(ctx, d.SpokeID, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
			if cur == nil || cur.OperationID != d.OperationID || !o.abandoned(cur) {
				return nil, nil
			}
			if err := cur.Abandon(errAbandoned, o.now()); err != nil {
				return nil, err
			}
			changed = true
			return cur, nil
		})
		if err != nil {
			return n, fmt.Errorf("failed to recover spoke %d: %w", d.SpokeID, err)
		}
		if !changed {
			continue
		}
		o.log.Info("recovered abandoned deployment", "spoke_id", d.SpokeID, "operation_id", d.OperationID)
		n++
		if !o.cfg.Deployment.EnableRollback || o.rollback == nil {
			continue
		}
		if err := o.rollback.Dispatch(ctx, d.SpokeID); err != nil {
			return n, fmt.Errorf("failed to queue rollback of spoke %d: %w", d.SpokeID, err)
		}
	}
	return n, nil
}
