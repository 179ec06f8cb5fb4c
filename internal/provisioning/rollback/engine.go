package rollback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/im7mortal/kmutex"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/provisioning"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
)

// Teardown steps, in execution order.
const (
	StepGateway = "gateway"
	StepVM      = "vm"
	StepDisk    = "disk"
	StepNIC     = "nic"
	StepPeering = "peering"
	StepVNet    = "vnet"
)

// ErrSkipped marks a teardown step that was not attempted because the step
// it depends on did not confirm its deletion.
var ErrSkipped = errors.New("skipped")

// Engine runs teardowns. Teardowns of one spoke are serialized; different
// spokes run concurrently.
type Engine struct {
	cloud    provider.Cloud
	store    *store.Locked
	timeouts config.Timeouts
	observer provisioning.Observer
	log      logr.Logger
	now      func() time.Time
	spokes   *kmutex.Kmutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver sets the event observer.
func WithObserver(obs provisioning.Observer) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine that tears down resources in cloud and
// records the outcome in st.
func NewEngine(cfg *config.Config, cloud provider.Cloud, st *store.Locked, opts ...Option) *Engine {
	e := &Engine{
		cloud:    cloud,
		store:    st,
		timeouts: cfg.Timeouts,
		log:      logr.Discard(),
		now:      time.Now,
		spokes:   kmutex.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.observer == nil {
		e.observer = provisioning.NewLogObserver(e.log)
	}
	return e
}

// Rollback tears down every resource of the spoke and leaves the record
// rolled_back or rollback_failed. A rolled_back record is left unchanged.
// The returned *RollbackError lists the steps that failed; their messages
// are also appended to the record.
func (e *Engine) Rollback(ctx context.Context, spokeID int) error {
	e.spokes.Lock(spokeID)
	defer e.spokes.Unlock(spokeID)

	rec, err := e.begin(ctx, spokeID)
	if err != nil {
		return err
	}
	if rec == nil {
		e.log.V(1).Info("spoke already rolled back", "spoke_id", spokeID)
		return nil
	}

	ctx, span := provisioning.StartSpan(ctx, "deployment.rollback", spokeID)
	observer := e.observer.WithFields(map[string]string{"operation_id": rec.OperationID})
	observer.Event(provisioning.Event{
		Type:    provisioning.EventRollbackStarted,
		SpokeID: spokeID,
		Message: fmt.Sprintf("rollback started (attempt %d)", rec.RollbackAttempts),
	})

	t := &teardown{
		e:        e,
		rec:      rec,
		cfg:      rec.Config,
		observer: observer,
		log:      e.log.WithValues("spoke_id", spokeID, "operation_id", rec.OperationID),
		errs:     &RollbackError{SpokeID: spokeID},
	}
	t.run(ctx)

	result := spoke.StatusRolledBack
	if t.errs.HasErrors() {
		result = spoke.StatusRollbackFailed
	}
	persistCtx := context.WithoutCancel(ctx)
	_, err = e.store.Update(persistCtx, spokeID, t.owned(func(d *spoke.Deployment) error {
		return d.Transition(result, e.now())
	}))
	if err != nil {
		t.errs.Add(fmt.Errorf("failed to record rollback result: %w", err))
		result = spoke.StatusRollbackFailed
	}

	provisioning.RecordRollback(string(result))
	if result == spoke.StatusRolledBack {
		provisioning.EndSpan(span, nil)
		observer.Event(provisioning.Event{
			Type:    provisioning.EventRollbackCompleted,
			SpokeID: spokeID,
			Message: "rollback completed",
		})
		return nil
	}
	provisioning.EndSpan(span, t.errs)
	observer.Event(provisioning.Event{
		Type:    provisioning.EventRollbackFailed,
		SpokeID: spokeID,
		Message: t.errs.Error(),
	})
	return t.errs
}

// begin moves the record to rolling_back and counts the attempt. It returns
// nil when there is nothing to do.
func (e *Engine) begin(ctx context.Context, spokeID int) (*spoke.Deployment, error) {
	var noop bool
	rec, err := e.store.Update(ctx, spokeID, func(cur *spoke.Deployment) (*spoke.Deployment, error) {
		if cur == nil {
			return nil, fmt.Errorf("deployment for spoke %d: %w", spokeID, spoke.ErrNotFound)
		}
		switch cur.Status {
		case spoke.StatusRolledBack:
			noop = true
			return nil, nil
		case spoke.StatusRollingBack:
		case spoke.StatusFailed, spoke.StatusCompleted, spoke.StatusRollbackFailed:
			if err := cur.Transition(spoke.StatusRollingBack, e.now()); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: spoke %d is %s", spoke.ErrConflict, spokeID, cur.Status)
		}
		cur.RollbackAttempts++
		cur.UpdatedAt = e.now()
		return cur, nil
	})
	if err != nil || noop {
		return nil, err
	}
	return rec, nil
}
