package azure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"

	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/util/labels"
	"github.com/imamik/hubspoke/internal/util/naming"
)

// CreateNIC creates a NIC with one dynamic private IP in subnetID. An
// existing NIC of the same name is reused.
func (c *Client) CreateNIC(ctx context.Context, name, subnetID string, tags map[string]string) (string, error) {
	if existing, err := c.interfaces.Get(ctx, c.resourceGroup, name, nil); err == nil {
		c.log.Info("network interface already exists", "name", name)
		return toValue(existing.ID), nil
	} else if !IsNotFound(err) {
		return "", classify("get network interface "+name, err)
	}

	poller, err := c.interfaces.BeginCreateOrUpdate(ctx, c.resourceGroup, name, armnetwork.Interface{
		Location: to.Ptr(c.location),
		Tags:     labels.Pointers(tags),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{{
				Name: to.Ptr(naming.IPConfig(name)),
				Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
					Subnet:                    &armnetwork.Subnet{ID: to.Ptr(subnetID)},
					PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
					Primary:                   to.Ptr(true),
				},
			}},
		},
	}, nil)
	if err != nil {
		return "", classify("create network interface "+name, err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", classify("create network interface "+name, err)
	}
	return toValue(resp.ID), nil
}

// CreateVM creates a Linux VM with SSH key authentication only. The OS disk
// is detached on VM deletion so teardown controls its lifetime.
func (c *Client) CreateVM(ctx context.Context, spec provider.VMSpec) (string, error) {
	if existing, err := c.vms.Get(ctx, c.resourceGroup, spec.Name, nil); err == nil {
		c.log.Info("virtual machine already exists", "name", spec.Name)
		return toValue(existing.ID), nil
	} else if !IsNotFound(err) {
		return "", classify("get virtual machine "+spec.Name, err)
	}

	vm := armcompute.VirtualMachine{
		Location: to.Ptr(c.location),
		Tags:     labels.Pointers(spec.Tags),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(spec.Size)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: &armcompute.ImageReference{
					Publisher: to.Ptr(spec.ImagePublisher),
					Offer:     to.Ptr(spec.ImageOffer),
					SKU:       to.Ptr(spec.ImageSKU),
					Version:   to.Ptr(spec.ImageVersion),
				},
				OSDisk: &armcompute.OSDisk{
					Name:         to.Ptr(spec.OSDiskName),
					CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
					DeleteOption: to.Ptr(armcompute.DiskDeleteOptionTypesDetach),
					ManagedDisk: &armcompute.ManagedDiskParameters{
						StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardLRS),
					},
				},
			},
			OSProfile: &armcompute.OSProfile{
				ComputerName:  to.Ptr(spec.Name),
				AdminUsername: to.Ptr(spec.AdminUsername),
				LinuxConfiguration: &armcompute.LinuxConfiguration{
					DisablePasswordAuthentication: to.Ptr(true),
					SSH: &armcompute.SSHConfiguration{
						PublicKeys: []*armcompute.SSHPublicKey{{
							Path:    to.Ptr(fmt.Sprintf("/home/%s/.ssh/authorized_keys", spec.AdminUsername)),
							KeyData: to.Ptr(spec.SSHPublicKey),
						}},
					},
				},
			},
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID: to.Ptr(spec.NICID),
					Properties: &armcompute.NetworkInterfaceReferenceProperties{
						Primary: to.Ptr(true),
					},
				}},
			},
		},
	}

	poller, err := c.vms.BeginCreateOrUpdate(ctx, c.resourceGroup, spec.Name, vm, nil)
	if err != nil {
		return "", classify("create virtual machine "+spec.Name, err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", classify("create virtual machine "+spec.Name, err)
	}
	c.log.Info("virtual machine created", "name", spec.Name, "size", spec.Size)
	return toValue(resp.ID), nil
}

// GetVMStatus reads the PowerState/* code from the instance view.
func (c *Client) GetVMStatus(ctx context.Context, name string) (provider.VMPowerState, error) {
	resp, err := c.vms.InstanceView(ctx, c.resourceGroup, name, nil)
	if err != nil {
		return provider.VMUnknownState, classify("get virtual machine status "+name, err)
	}
	for _, s := range resp.Statuses {
		code := toValue(s.Code)
		if state, ok := strings.CutPrefix(code, "PowerState/"); ok {
			return powerState(state), nil
		}
		if strings.HasPrefix(code, "ProvisioningState/failed") {
			return provider.VMFailed, nil
		}
	}
	return provider.VMUnknownState, nil
}

func powerState(s string) provider.VMPowerState {
	switch s {
	case "starting":
		return provider.VMStarting
	case "running":
		return provider.VMRunning
	case "stopped", "stopping":
		return provider.VMStopped
	case "deallocated", "deallocating":
		return provider.VMDeallocated
	default:
		return provider.VMUnknownState
	}
}

// GetVMPrivateIP returns the private IP of the VM's primary NIC.
func (c *Client) GetVMPrivateIP(ctx context.Context, name string) (string, error) {
	vm, err := c.vms.Get(ctx, c.resourceGroup, name, nil)
	if err != nil {
		return "", classify("get virtual machine "+name, err)
	}
	if vm.Properties == nil || vm.Properties.NetworkProfile == nil {
		return "", fmt.Errorf("virtual machine %s has no network profile", name)
	}

	var nicID string
	for _, ref := range vm.Properties.NetworkProfile.NetworkInterfaces {
		if ref == nil || ref.ID == nil {
			continue
		}
		if nicID == "" || (ref.Properties != nil && toValue(ref.Properties.Primary)) {
			nicID = *ref.ID
		}
	}
	if nicID == "" {
		return "", fmt.Errorf("virtual machine %s has no network interface", name)
	}

	id, err := arm.ParseResourceID(nicID)
	if err != nil {
		return "", fmt.Errorf("invalid network interface id %q: %w", nicID, err)
	}
	nic, err := c.interfaces.Get(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		return "", classify("get network interface "+id.Name, err)
	}
	if nic.Properties != nil {
		for _, ipc := range nic.Properties.IPConfigurations {
			if ipc != nil && ipc.Properties != nil && ipc.Properties.PrivateIPAddress != nil {
				return *ipc.Properties.PrivateIPAddress, nil
			}
		}
	}
	return "", fmt.Errorf("network interface %s has no private address", id.Name)
}

// DeleteVM deletes the VM and waits up to timeout.
func (c *Client) DeleteVM(ctx context.Context, name string, timeout time.Duration) error {
	return deleteOperation{
		Kind:    "virtual machine",
		Name:    name,
		Timeout: timeout,
		Begin: func(ctx context.Context) (func(context.Context) error, error) {
			poller, err := c.vms.BeginDelete(ctx, c.resourceGroup, name, nil)
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context) error {
				_, err := poller.PollUntilDone(ctx, nil)
				return err
			}, nil
		},
	}.execute(ctx, c.log)
}

// DeleteNIC deletes the NIC. Azure keeps a NIC reserved for a while after
// its VM is deleted; that surfaces as spoke.ErrReserved.
func (c *Client) DeleteNIC(ctx context.Context, name string, timeout time.Duration) error {
	return deleteOperation{
		Kind:    "network interface",
		Name:    name,
		Timeout: timeout,
		Begin: func(ctx context.Context) (func(context.Context) error, error) {
			poller, err := c.interfaces.BeginDelete(ctx, c.resourceGroup, name, nil)
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context) error {
				_, err := poller.PollUntilDone(ctx, nil)
				return err
			}, nil
		},
	}.execute(ctx, c.log)
}

// DeleteDisk deletes a managed disk.
func (c *Client) DeleteDisk(ctx context.Context, name string, timeout time.Duration) error {
	return deleteOperation{
		Kind:    "disk",
		Name:    name,
		Timeout: timeout,
		Begin: func(ctx context.Context) (func(context.Context) error, error) {
			poller, err := c.disks.BeginDelete(ctx, c.resourceGroup, name, nil)
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context) error {
				_, err := poller.PollUntilDone(ctx, nil)
				return err
			}, nil
		},
	}.execute(ctx, c.log)
}

// NICExists implements provider.ComputeProvider.
func (c *Client) NICExists(ctx context.Context, name string) (bool, error) {
	_, err := c.interfaces.Get(ctx, c.resourceGroup, name, nil)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, classify("get network interface "+name, err)
	}
	return true, nil
}
