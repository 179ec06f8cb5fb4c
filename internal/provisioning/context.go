package provisioning

import (
	"context"
	"maps"

	"github.com/go-logr/logr"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/util/labels"
)

// State holds the shared results of workflow steps.
// It is progressively populated as each step completes and is read by
// the steps that follow.
type State struct {
	HubVNetID string

	VNetID    string
	SubnetIDs map[string]string // subnet kind -> id

	NICID       string
	VMID        string
	VMPrivateIP string

	Peerings []provider.Peering

	BackendPool string
	RoutingRule string
}

// NewState creates an empty workflow state.
func NewState() *State {
	return &State{
		SubnetIDs: make(map[string]string),
	}
}

// Apply copies the identifiers gathered so far onto the record.
func (s *State) Apply(cfg spoke.Configuration, r *spoke.Resources) {
	if s.VNetID != "" {
		r.VNetID = s.VNetID
		r.VNetName = cfg.VNetName
	}
	if len(s.SubnetIDs) > 0 {
		r.SubnetIDs = maps.Clone(s.SubnetIDs)
	}
	if s.NICID != "" {
		r.NICID = s.NICID
		r.NICName = cfg.NICName()
	}
	if s.VMID != "" {
		r.VMID = s.VMID
		r.VMName = cfg.VMName
		r.OSDiskName = cfg.OSDiskName()
	}
	if s.VMPrivateIP != "" {
		r.VMPrivateIP = s.VMPrivateIP
	}
	if len(s.Peerings) > 0 {
		r.PeeringIDs = r.PeeringIDs[:0]
		for _, p := range s.Peerings {
			r.PeeringIDs = append(r.PeeringIDs, p.ID)
		}
	}
	if s.BackendPool != "" {
		r.BackendPoolName = s.BackendPool
	}
	if s.RoutingRule != "" {
		r.RoutingRuleName = s.RoutingRule
	}
}

// Context wraps all dependencies and state needed for a workflow step.
type Context struct {
	context.Context
	Spoke       spoke.Configuration
	OperationID string
	HubCIDR     string
	State       *State
	Cloud       provider.Cloud
	Observer    Observer
	Timeouts    config.Timeouts
	Log         logr.Logger
}

// Tags returns the tags put on every resource of this spoke.
func (c *Context) Tags() map[string]string {
	return labels.NewLabelBuilder(c.Spoke.SpokeID).
		WithClient(c.Spoke.ClientName).
		WithOperationIfSet(c.OperationID).
		Build()
}
