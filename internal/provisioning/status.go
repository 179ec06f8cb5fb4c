package provisioning

import (
	"context"
	"errors"
	"sync"

	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/util/async"
)

// LiveStatus is what the provider currently reports for a spoke.
type LiveStatus struct {
	VNetExists            bool                  `json:"vnet_exists"`
	VMPowerState          provider.VMPowerState `json:"vm_power_state,omitempty"`
	VMPrivateIP           string                `json:"vm_private_ip,omitempty"`
	BackendPoolConfigured bool                  `json:"backend_pool_configured"`
	// ProbeErrors lists probes that failed for reasons other than absence.
	ProbeErrors []string `json:"probe_errors,omitempty"`
}

// SpokeStatus is the stored record plus a live view of its resources.
type SpokeStatus struct {
	Deployment *spoke.Deployment `json:"deployment"`
	Live       LiveStatus        `json:"live"`
}

// Status returns the stored record and probes the provider in parallel.
// It never writes.
func (o *Orchestrator) Status(ctx context.Context, spokeID int) (*SpokeStatus, error) {
	d, err := o.store.Get(ctx, spokeID)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		live LiveStatus
	)
	cfg := d.Config
	tasks := []async.Task{
		{Name: "vnet", Func: func(ctx context.Context) error {
			_, err := o.cloud.GetVNet(ctx, cfg.VNetName)
			mu.Lock()
			defer mu.Unlock()
			live.VNetExists = err == nil
			return absentIsNil(err)
		}},
		{Name: "vm", Func: func(ctx context.Context) error {
			state, err := o.cloud.GetVMStatus(ctx, cfg.VMName)
			if err != nil {
				return absentIsNil(err)
			}
			mu.Lock()
			defer mu.Unlock()
			live.VMPowerState = state
			return nil
		}},
		{Name: "private-ip", Func: func(ctx context.Context) error {
			ip, err := o.cloud.GetVMPrivateIP(ctx, cfg.VMName)
			if err != nil {
				return absentIsNil(err)
			}
			mu.Lock()
			defer mu.Unlock()
			live.VMPrivateIP = ip
			return nil
		}},
		{Name: "backend-pool", Func: func(ctx context.Context) error {
			ok, err := o.cloud.BackendPoolExists(ctx, cfg.BackendPoolName)
			mu.Lock()
			defer mu.Unlock()
			live.BackendPoolConfigured = ok
			return err
		}},
	}

	if err := async.RunParallel(ctx, tasks); err != nil {
		for _, e := range unjoin(err) {
			live.ProbeErrors = append(live.ProbeErrors, e.Error())
		}
	}
	return &SpokeStatus{Deployment: d, Live: live}, nil
}

func absentIsNil(err error) error {
	if errors.Is(err, spoke.ErrNotFound) {
		return nil
	}
	return err
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
