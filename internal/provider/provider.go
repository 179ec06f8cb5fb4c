// Package provider defines the cloud capabilities the orchestrator and the
// rollback engine depend on.
//
// Implementations classify failures by wrapping spoke.ErrNotFound,
// spoke.ErrReserved and spoke.ErrQuotaExceeded so callers never inspect
// provider-specific error types. Delete operations treat an absent resource
// as success.
package provider

import (
	"context"
	"time"
)

// SubnetSpec describes one subnet to create inside a VNet.
type SubnetSpec struct {
	Name          string
	AddressPrefix string
}

// VMSpec holds all parameters for creating a Linux VM.
type VMSpec struct {
	Name           string
	Size           string
	AdminUsername  string
	SSHPublicKey   string
	NICID          string
	OSDiskName     string
	ImagePublisher string
	ImageOffer     string
	ImageSKU       string
	ImageVersion   string
	Tags           map[string]string
}

// PeeringDirection says which side of a hub/spoke pair a peering lives on.
type PeeringDirection string

// Peering directions.
const (
	SpokeToHub PeeringDirection = "spoke-to-hub"
	HubToSpoke PeeringDirection = "hub-to-spoke"
)

// PeeringState is the connection state reported by the provider.
type PeeringState string

// Peering states.
const (
	PeeringInitiated    PeeringState = "Initiated"
	PeeringConnected    PeeringState = "Connected"
	PeeringDisconnected PeeringState = "Disconnected"
)

// Peering identifies a created peering.
type Peering struct {
	ID        string
	Name      string
	VNetName  string
	Direction PeeringDirection
}

// VNetInfo is the provider's view of a virtual network.
type VNetInfo struct {
	ID            string
	Name          string
	AddressPrefix string
	SubnetIDs     map[string]string
}

// VMPowerState is the reduced power state of a VM.
type VMPowerState string

// VM power states.
const (
	VMStarting     VMPowerState = "starting"
	VMRunning      VMPowerState = "running"
	VMStopped      VMPowerState = "stopped"
	VMDeallocated  VMPowerState = "deallocated"
	VMFailed       VMPowerState = "failed"
	VMUnknownState VMPowerState = "unknown"
)

// NetworkProvider manages virtual networks, subnets and peerings.
type NetworkProvider interface {
	CreateVNet(ctx context.Context, name, addressPrefix string, tags map[string]string) (string, error)
	// CreateSubnets returns subnet ids keyed by subnet name.
	CreateSubnets(ctx context.Context, vnetName string, subnets [4]SubnetSpec) (map[string]string, error)
	// CreatePeering creates a peering on the side named by direction.
	// local is the spoke VNet name; remoteID is the id of the opposite VNet.
	CreatePeering(ctx context.Context, local, remoteID string, direction PeeringDirection) (Peering, error)
	GetPeeringStatus(ctx context.Context, peeringID string) (PeeringState, error)
	// GetVNet returns spoke.ErrNotFound when the VNet does not exist.
	GetVNet(ctx context.Context, name string) (*VNetInfo, error)
	// HubVNetID returns the id of the configured hub VNet.
	HubVNetID(ctx context.Context) (string, error)
	// DeletePeering removes a peering from vnetName, which may be the hub.
	DeletePeering(ctx context.Context, vnetName, peeringName string) error
	DeleteVNet(ctx context.Context, name string) error
}

// ComputeProvider manages NICs, VMs and managed disks.
type ComputeProvider interface {
	CreateNIC(ctx context.Context, name, subnetID string, tags map[string]string) (string, error)
	CreateVM(ctx context.Context, spec VMSpec) (string, error)
	GetVMStatus(ctx context.Context, name string) (VMPowerState, error)
	GetVMPrivateIP(ctx context.Context, name string) (string, error)
	DeleteVM(ctx context.Context, name string, timeout time.Duration) error
	// DeleteNIC returns spoke.ErrReserved while the provider still holds the
	// NIC for a deleted VM.
	DeleteNIC(ctx context.Context, name string, timeout time.Duration) error
	DeleteDisk(ctx context.Context, name string, timeout time.Duration) error
	NICExists(ctx context.Context, name string) (bool, error)
}

// GatewayProvider manages the shared application gateway.
type GatewayProvider interface {
	AddBackendPool(ctx context.Context, pool, ip string) error
	RemoveBackendPool(ctx context.Context, pool string) error
	CreateRoutingRule(ctx context.Context, rule, pool string) error
	RemoveRoutingRule(ctx context.Context, rule string) error
	BackendPoolExists(ctx context.Context, pool string) (bool, error)
}

// Cloud bundles the three capabilities.
type Cloud interface {
	NetworkProvider
	ComputeProvider
	GatewayProvider
}
