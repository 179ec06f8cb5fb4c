package rollback

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/go-logr/logr"

	"github.com/imamik/hubspoke/internal/provisioning"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
	"github.com/imamik/hubspoke/internal/util/naming"
	"github.com/imamik/hubspoke/internal/util/retry"
)

// teardown is one rollback run of one spoke.
type teardown struct {
	e        *Engine
	rec      *spoke.Deployment
	cfg      spoke.Configuration
	observer provisioning.Observer
	log      logr.Logger
	errs     *RollbackError

	vmDeleted bool
}

type teardownStep struct {
	name string
	run  func(ctx context.Context) error
}

func (t *teardown) steps() []teardownStep {
	return []teardownStep{
		{name: StepGateway, run: t.removeGateway},
		{name: StepVM, run: t.deleteVM},
		{name: StepDisk, run: t.deleteDisk},
		{name: StepNIC, run: t.deleteNIC},
		{name: StepPeering, run: t.removeHubPeering},
		{name: StepVNet, run: t.deleteVNet},
	}
}

// run attempts every step regardless of earlier failures.
func (t *teardown) run(ctx context.Context) {
	steps := t.steps()
	for i, s := range steps {
		t.observer.Progress("rollback/"+s.name, i+1, len(steps))
		t.do(ctx, s)
	}
}

func (t *teardown) do(ctx context.Context, s teardownStep) {
	stepCtx, span := provisioning.StartSpan(ctx, "rollback."+s.name, t.rec.SpokeID)
	err := s.run(stepCtx)
	provisioning.EndSpan(span, err)

	var stepErr *StepError
	if err != nil {
		stepErr = &StepError{Step: s.name, Err: err}
		t.errs.Add(stepErr)
		provisioning.RecordRollbackStepFailure(s.name)
		t.log.Error(err, "rollback step failed", "step", s.name)
		t.observer.Event(provisioning.Event{
			Type:    provisioning.EventStepFailed,
			SpokeID: t.rec.SpokeID,
			Step:    "rollback/" + s.name,
			Message: stepErr.Error(),
		})
	}

	_, perr := t.e.store.Update(context.WithoutCancel(ctx), t.rec.SpokeID, t.owned(func(d *spoke.Deployment) error {
		if stepErr != nil {
			d.AppendRollbackError(stepErr.Error(), t.e.now())
		} else {
			d.UpdatedAt = t.e.now()
		}
		return nil
	}))
	if perr != nil {
		t.errs.Add(fmt.Errorf("failed to record %s rollback: %w", s.name, perr))
	}
}

// owned wraps fn so it only writes while this run still owns the record.
func (t *teardown) owned(fn func(d *spoke.Deployment) error) store.UpdateFunc {
	return func(cur *spoke.Deployment) (*spoke.Deployment, error) {
		if cur == nil || cur.OperationID != t.rec.OperationID {
			return nil, fmt.Errorf("%w: spoke %d was taken over by another operation", spoke.ErrConflict, t.rec.SpokeID)
		}
		if cur.Status != spoke.StatusRollingBack {
			return nil, fmt.Errorf("%w: spoke %d is %s", spoke.ErrConflict, t.rec.SpokeID, cur.Status)
		}
		if err := fn(cur); err != nil {
			return nil, err
		}
		return cur, nil
	}
}

// neverStarted reports whether the forward step cannot have created anything.
func (t *teardown) neverStarted(name spoke.StepName) bool {
	s := t.rec.Step(name)
	return s == nil || s.Status == spoke.StepStatusPending
}

func absent(err error) bool {
	return errors.Is(err, spoke.ErrNotFound)
}

func (t *teardown) removeGateway(ctx context.Context) error {
	if t.neverStarted(spoke.StepUpdateGateway) {
		t.log.V(1).Info("gateway was never updated")
		return nil
	}
	id := t.rec.SpokeID
	rule, pool := t.cfg.RoutingRuleName, t.cfg.BackendPoolName

	var errs []error
	provisioning.LogResourceDeleting(t.observer, id, StepGateway, "routing_rule", rule)
	if err := t.e.cloud.RemoveRoutingRule(ctx, rule); err != nil && !absent(err) {
		errs = append(errs, fmt.Errorf("routing rule %s: %w", rule, err))
	} else {
		provisioning.LogResourceDeleted(t.observer, id, StepGateway, "routing_rule", rule)
	}

	provisioning.LogResourceDeleting(t.observer, id, StepGateway, "backend_pool", pool)
	if err := t.e.cloud.RemoveBackendPool(ctx, pool); err != nil && !absent(err) {
		errs = append(errs, fmt.Errorf("backend pool %s: %w", pool, err))
	} else {
		provisioning.LogResourceDeleted(t.observer, id, StepGateway, "backend_pool", pool)
	}
	return errors.Join(errs...)
}

func (t *teardown) deleteVM(ctx context.Context) error {
	name := t.cfg.VMName
	provisioning.LogResourceDeleting(t.observer, t.rec.SpokeID, StepVM, "virtual_machine", name)
	if err := t.e.cloud.DeleteVM(ctx, name, t.e.timeouts.Delete); err != nil && !absent(err) {
		return fmt.Errorf("virtual machine %s: %w", name, err)
	}
	t.vmDeleted = true
	provisioning.LogResourceDeleted(t.observer, t.rec.SpokeID, StepVM, "virtual_machine", name)
	return nil
}

// deleteDisk removes the OS disk, which outlives its VM. A disk still
// attached to a VM cannot be deleted, so it is only attempted once the VM
// is confirmed gone.
func (t *teardown) deleteDisk(ctx context.Context) error {
	name := t.cfg.OSDiskName()
	if !t.vmDeleted {
		return fmt.Errorf("os disk %s: %w, virtual machine deletion was not confirmed", name, ErrSkipped)
	}
	provisioning.LogResourceDeleting(t.observer, t.rec.SpokeID, StepDisk, "disk", name)
	if err := t.e.cloud.DeleteDisk(ctx, name, t.e.timeouts.Delete); err != nil && !absent(err) {
		return fmt.Errorf("os disk %s: %w", name, err)
	}
	provisioning.LogResourceDeleted(t.observer, t.rec.SpokeID, StepDisk, "disk", name)
	return nil
}

// deleteNIC removes the NIC by name. Azure keeps a NIC reserved for a while
// after its VM is deleted, so ErrReserved is retried with a fixed delay.
func (t *teardown) deleteNIC(ctx context.Context) error {
	name := t.cfg.NICName()
	id := t.rec.SpokeID

	exists, err := t.e.cloud.NICExists(ctx, name)
	switch {
	case err != nil:
		t.log.Error(err, "failed to look up network interface, deleting anyway", "nic", name)
	case !exists:
		t.log.V(1).Info("network interface does not exist", "nic", name)
		return nil
	case !t.rec.StepCompleted(spoke.StepCreateNIC):
		provisioning.RecordOrphan("network_interface")
		t.observer.Event(provisioning.Event{
			Type:     provisioning.EventResourceOrphaned,
			SpokeID:  id,
			Step:     StepNIC,
			Resource: name,
			Message:  "network interface exists but its creation was never recorded",
			Fields:   map[string]string{"type": "network_interface"},
		})
	}

	provisioning.LogResourceDeleting(t.observer, id, StepNIC, "network_interface", name)
	delay := t.e.timeouts.NICRetryDelay
	err = retry.WithExponentialBackoff(ctx, func() error {
		err := t.e.cloud.DeleteNIC(ctx, name, t.e.timeouts.Delete)
		switch {
		case err == nil, absent(err):
			return nil
		case errors.Is(err, spoke.ErrReserved):
			return err
		default:
			return retry.Fatal(err)
		}
	},
		retry.WithAttempts(t.e.timeouts.NICRetryAttempts),
		retry.WithFixedDelay(delay),
		retry.WithOnRetry(func(attempt int, err error) {
			provisioning.RecordNICRetry()
			t.log.Info("network interface still reserved, retrying",
				"nic", name, "attempt", attempt, "delay", delay.String(), "reason", err.Error())
		}),
	)
	if err != nil {
		return fmt.Errorf("network interface %s: %w", name, err)
	}
	provisioning.LogResourceDeleted(t.observer, id, StepNIC, "network_interface", name)
	return nil
}

// removeHubPeering deletes the hub's side of the peering. The spoke's side
// goes away with the spoke VNet.
func (t *teardown) removeHubPeering(ctx context.Context) error {
	if t.neverStarted(spoke.StepCreatePeering) {
		t.log.V(1).Info("peering was never created")
		return nil
	}
	hubID, err := t.e.cloud.HubVNetID(ctx)
	if err != nil {
		return fmt.Errorf("hub network: %w", err)
	}
	hub := path.Base(hubID)
	name := naming.Peering(hub, t.cfg.VNetName)

	provisioning.LogResourceDeleting(t.observer, t.rec.SpokeID, StepPeering, "peering", name)
	if err := t.e.cloud.DeletePeering(ctx, hub, name); err != nil && !absent(err) {
		return fmt.Errorf("hub peering %s: %w", name, err)
	}
	provisioning.LogResourceDeleted(t.observer, t.rec.SpokeID, StepPeering, "peering", name)
	return nil
}

func (t *teardown) deleteVNet(ctx context.Context) error {
	name := t.cfg.VNetName
	provisioning.LogResourceDeleting(t.observer, t.rec.SpokeID, StepVNet, "virtual_network", name)
	if err := t.e.cloud.DeleteVNet(ctx, name); err != nil && !absent(err) {
		return fmt.Errorf("virtual network %s: %w", name, err)
	}
	provisioning.LogResourceDeleted(t.observer, t.rec.SpokeID, StepVNet, "virtual_network", name)
	return nil
}
