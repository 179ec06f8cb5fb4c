package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/hubspoke/internal/addressing"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/util/naming"
	"github.com/imamik/hubspoke/internal/util/retry"
)

// step adapts a function to Phase.
type step struct {
	name spoke.StepName
	run  func(ctx *Context) error
}

func (s step) Name() spoke.StepName         { return s.name }
func (s step) Provision(ctx *Context) error { return s.run(ctx) }

// Phases returns the forward workflow in execution order.
func Phases() []Phase {
	return []Phase{
		step{spoke.StepValidate, validateSpoke},
		step{spoke.StepCreateNetwork, createNetwork},
		step{spoke.StepCreateSubnets, createSubnets},
		step{spoke.StepCreateNIC, createNIC},
		step{spoke.StepCreateVM, createVM},
		step{spoke.StepWaitVMReady, waitVMReady},
		step{spoke.StepReadVMPrivateIP, readVMPrivateIP},
		step{spoke.StepCreatePeering, createPeering},
		step{spoke.StepVerifyPeering, verifyPeering},
		step{spoke.StepUpdateGateway, updateGateway},
		step{spoke.StepPersist, verifyResources},
	}
}

// validateSpoke re-checks the configuration and rejects address space
// shared with the hub.
func validateSpoke(ctx *Context) error {
	cfg := ctx.Spoke
	if err := cfg.Validate(); err != nil {
		return err
	}
	prefixes := cfg.SubnetPrefixes()
	if err := addressing.VerifyPartition(cfg.AddressPrefix, prefixes[:]); err != nil {
		return err
	}
	if ctx.HubCIDR == "" {
		return nil
	}
	overlap, err := addressing.Overlaps(cfg.AddressPrefix, ctx.HubCIDR)
	if err != nil {
		return fmt.Errorf("invalid hub address range: %w", err)
	}
	if overlap {
		return fmt.Errorf("address prefix %s overlaps hub range %s", cfg.AddressPrefix, ctx.HubCIDR)
	}
	return nil
}

func createNetwork(ctx *Context) error {
	cfg := ctx.Spoke
	id, err := ctx.Cloud.CreateVNet(ctx, cfg.VNetName, cfg.AddressPrefix, ctx.Tags())
	if err != nil {
		return fmt.Errorf("failed to create virtual network %s: %w", cfg.VNetName, err)
	}
	ctx.State.VNetID = id
	LogResourceCreated(ctx.Observer, cfg.SpokeID, string(spoke.StepCreateNetwork), "virtual network", cfg.VNetName, id)
	return nil
}

func createSubnets(ctx *Context) error {
	cfg := ctx.Spoke
	prefixes := cfg.SubnetPrefixes()

	var specs [4]provider.SubnetSpec
	for i, kind := range addressing.SubnetKinds {
		specs[i] = provider.SubnetSpec{
			Name:          naming.Subnet(cfg.SpokeID, string(kind)),
			AddressPrefix: prefixes[i],
		}
	}

	ids, err := ctx.Cloud.CreateSubnets(ctx, cfg.VNetName, specs)
	if err != nil {
		return fmt.Errorf("failed to create subnets in %s: %w", cfg.VNetName, err)
	}
	for i, kind := range addressing.SubnetKinds {
		id, ok := ids[specs[i].Name]
		if !ok {
			return fmt.Errorf("provider returned no id for subnet %s", specs[i].Name)
		}
		ctx.State.SubnetIDs[string(kind)] = id
	}
	return nil
}

func createNIC(ctx *Context) error {
	cfg := ctx.Spoke
	subnetID := ctx.State.SubnetIDs[string(addressing.SubnetVM)]
	if subnetID == "" {
		return errors.New("vm subnet id is not known")
	}
	id, err := ctx.Cloud.CreateNIC(ctx, cfg.NICName(), subnetID, ctx.Tags())
	if err != nil {
		return fmt.Errorf("failed to create network interface %s: %w", cfg.NICName(), err)
	}
	ctx.State.NICID = id
	LogResourceCreated(ctx.Observer, cfg.SpokeID, string(spoke.StepCreateNIC), "network interface", cfg.NICName(), id)
	return nil
}

func createVM(ctx *Context) error {
	cfg := ctx.Spoke
	if ctx.State.NICID == "" {
		return errors.New("network interface id is not known")
	}
	id, err := ctx.Cloud.CreateVM(ctx, provider.VMSpec{
		Name:           cfg.VMName,
		Size:           cfg.VMSize,
		AdminUsername:  cfg.AdminUsername,
		SSHPublicKey:   cfg.SSHPublicKey,
		NICID:          ctx.State.NICID,
		OSDiskName:     cfg.OSDiskName(),
		ImagePublisher: cfg.Image.Publisher,
		ImageOffer:     cfg.Image.Offer,
		ImageSKU:       cfg.Image.SKU,
		ImageVersion:   cfg.Image.Version,
		Tags:           ctx.Tags(),
	})
	if err != nil {
		return fmt.Errorf("failed to create virtual machine %s: %w", cfg.VMName, err)
	}
	ctx.State.VMID = id
	LogResourceCreated(ctx.Observer, cfg.SpokeID, string(spoke.StepCreateVM), "virtual machine", cfg.VMName, id)
	return nil
}

func waitVMReady(ctx *Context) error {
	name := ctx.Spoke.VMName
	err := retry.Poll(ctx, ctx.Timeouts.PollInterval, ctx.Timeouts.VMReady, func(c context.Context) (bool, error) {
		state, err := ctx.Cloud.GetVMStatus(c, name)
		if err != nil {
			return false, err
		}
		switch state {
		case provider.VMRunning:
			return true, nil
		case provider.VMFailed:
			return false, fmt.Errorf("virtual machine %s entered failed state", name)
		default:
			ctx.Log.V(1).Info("waiting for virtual machine", "vm", name, "state", string(state))
			return false, nil
		}
	})
	if errors.Is(err, retry.ErrPollTimeout) {
		return &spoke.TimeoutError{Operation: "wait for virtual machine " + name, Timeout: ctx.Timeouts.VMReady}
	}
	return err
}

func readVMPrivateIP(ctx *Context) error {
	name := ctx.Spoke.VMName
	ip, err := ctx.Cloud.GetVMPrivateIP(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to read private address of %s: %w", name, err)
	}
	if ip == "" {
		return fmt.Errorf("virtual machine %s has no private address", name)
	}
	ctx.State.VMPrivateIP = ip
	return nil
}

// createPeering creates the spoke-side peering first, then the hub side.
func createPeering(ctx *Context) error {
	cfg := ctx.Spoke
	hubID, err := ctx.Cloud.HubVNetID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve hub network: %w", err)
	}
	ctx.State.HubVNetID = hubID

	toHub, err := ctx.Cloud.CreatePeering(ctx, cfg.VNetName, hubID, provider.SpokeToHub)
	if err != nil {
		return fmt.Errorf("failed to create spoke-to-hub peering: %w", err)
	}
	ctx.State.Peerings = append(ctx.State.Peerings[:0], toHub)

	fromHub, err := ctx.Cloud.CreatePeering(ctx, cfg.VNetName, ctx.State.VNetID, provider.HubToSpoke)
	if err != nil {
		return fmt.Errorf("failed to create hub-to-spoke peering: %w", err)
	}
	ctx.State.Peerings = append(ctx.State.Peerings, fromHub)

	for _, p := range ctx.State.Peerings {
		LogResourceCreated(ctx.Observer, cfg.SpokeID, string(spoke.StepCreatePeering), "peering", p.Name, p.ID)
	}
	return nil
}

// verifyPeering waits until both halves report Connected.
func verifyPeering(ctx *Context) error {
	if len(ctx.State.Peerings) != 2 {
		return fmt.Errorf("expected 2 peerings, have %d", len(ctx.State.Peerings))
	}
	err := retry.Poll(ctx, ctx.Timeouts.PollInterval, ctx.Timeouts.Peering, func(c context.Context) (bool, error) {
		for _, p := range ctx.State.Peerings {
			state, err := ctx.Cloud.GetPeeringStatus(c, p.ID)
			if err != nil {
				return false, err
			}
			switch state {
			case provider.PeeringConnected:
			case provider.PeeringDisconnected:
				return false, fmt.Errorf("peering %s is disconnected", p.Name)
			default:
				return false, nil
			}
		}
		return true, nil
	})
	if errors.Is(err, retry.ErrPollTimeout) {
		return &spoke.TimeoutError{Operation: "wait for peering", Timeout: ctx.Timeouts.Peering}
	}
	return err
}

func updateGateway(ctx *Context) error {
	cfg := ctx.Spoke
	if ctx.State.VMPrivateIP == "" {
		return errors.New("virtual machine private address is not known")
	}
	if err := ctx.Cloud.AddBackendPool(ctx, cfg.BackendPoolName, ctx.State.VMPrivateIP); err != nil {
		return fmt.Errorf("failed to add backend pool %s: %w", cfg.BackendPoolName, err)
	}
	ctx.State.BackendPool = cfg.BackendPoolName
	if err := ctx.Cloud.CreateRoutingRule(ctx, cfg.RoutingRuleName, cfg.BackendPoolName); err != nil {
		return fmt.Errorf("failed to create routing rule %s: %w", cfg.RoutingRuleName, err)
	}
	ctx.State.RoutingRule = cfg.RoutingRuleName
	return nil
}

// verifyResources checks that every identifier the record needs is known
// before the deployment is declared complete.
func verifyResources(ctx *Context) error {
	s := ctx.State
	var missing []string
	if s.VNetID == "" {
		missing = append(missing, "vnet_id")
	}
	if len(s.SubnetIDs) != len(addressing.SubnetKinds) {
		missing = append(missing, "subnet_ids")
	}
	if s.NICID == "" {
		missing = append(missing, "nic_id")
	}
	if s.VMID == "" {
		missing = append(missing, "vm_id")
	}
	if s.VMPrivateIP == "" {
		missing = append(missing, "vm_private_ip")
	}
	if len(s.Peerings) != 2 {
		missing = append(missing, "peering_ids")
	}
	if len(missing) > 0 {
		return fmt.Errorf("deployment record incomplete: missing %v", missing)
	}
	return nil
}
