package spoke

import (
	"github.com/imamik/hubspoke/internal/addressing"
	"github.com/imamik/hubspoke/internal/util/naming"
)

// Image selects a marketplace image.
type Image struct {
	Publisher string `json:"publisher" yaml:"publisher"`
	Offer     string `json:"offer" yaml:"offer"`
	SKU       string `json:"sku" yaml:"sku"`
	Version   string `json:"version" yaml:"version"`
}

// IsZero reports whether no image field is set.
func (i Image) IsZero() bool {
	return i == Image{}
}

// Default VM settings applied when neither the request nor the process
// configuration names one.
const (
	DefaultVMSize        = "Standard_B2s"
	DefaultAdminUsername = "azureuser"
)

// DefaultImage is Ubuntu 22.04 LTS gen2.
var DefaultImage = Image{
	Publisher: "Canonical",
	Offer:     "0001-com-ubuntu-server-jammy",
	SKU:       "22_04-lts-gen2",
	Version:   "latest",
}

// Configuration describes one spoke. Build it with [Configuration.Normalize]
// and treat the result as read-only.
type Configuration struct {
	SpokeID    int    `json:"spoke_id" yaml:"spoke_id"`
	ClientName string `json:"client_name" yaml:"client_name"`

	AddressPrefix         string `json:"address_prefix,omitempty" yaml:"address_prefix,omitempty"`
	VMSubnetPrefix        string `json:"vm_subnet_prefix,omitempty" yaml:"vm_subnet_prefix,omitempty"`
	DBSubnetPrefix        string `json:"db_subnet_prefix,omitempty" yaml:"db_subnet_prefix,omitempty"`
	KVSubnetPrefix        string `json:"kv_subnet_prefix,omitempty" yaml:"kv_subnet_prefix,omitempty"`
	WorkspaceSubnetPrefix string `json:"workspace_subnet_prefix,omitempty" yaml:"workspace_subnet_prefix,omitempty"`

	VNetName string `json:"vnet_name,omitempty" yaml:"vnet_name,omitempty"`
	VMName   string `json:"vm_name,omitempty" yaml:"vm_name,omitempty"`

	VMSize        string `json:"vm_size,omitempty" yaml:"vm_size,omitempty"`
	AdminUsername string `json:"admin_username,omitempty" yaml:"admin_username,omitempty"`
	Image         Image  `json:"image,omitzero" yaml:"image,omitempty"`
	SSHPublicKey  string `json:"ssh_public_key" yaml:"ssh_public_key"`

	BackendPoolName string `json:"backend_pool_name,omitempty" yaml:"backend_pool_name,omitempty"`
	RoutingRuleName string `json:"routing_rule_name,omitempty" yaml:"routing_rule_name,omitempty"`
}

// Defaults are the process-wide values a Configuration falls back to.
type Defaults struct {
	VMSize        string
	AdminUsername string
	Image         Image
}

// Normalize returns a copy with every empty derivable field filled in. Address
// prefixes are only derived for an in-range spoke id; Validate reports the
// range error otherwise.
func (c Configuration) Normalize(d Defaults, planner *addressing.Planner) Configuration {
	out := c

	if out.AddressPrefix == "" && planner != nil {
		if vnet, err := planner.PlanVNet(out.SpokeID); err == nil {
			out.AddressPrefix = vnet
		}
	}
	if out.AddressPrefix != "" && out.VMSubnetPrefix == "" && out.DBSubnetPrefix == "" &&
		out.KVSubnetPrefix == "" && out.WorkspaceSubnetPrefix == "" {
		if subnets, err := addressing.PlanSubnets(out.AddressPrefix); err == nil {
			out.VMSubnetPrefix = subnets[0]
			out.DBSubnetPrefix = subnets[1]
			out.KVSubnetPrefix = subnets[2]
			out.WorkspaceSubnetPrefix = subnets[3]
		}
	}

	if out.VNetName == "" {
		out.VNetName = naming.VNet(out.SpokeID)
	}
	if out.VMName == "" && out.ClientName != "" {
		out.VMName = naming.VM(out.ClientName, out.SpokeID)
	}
	if out.BackendPoolName == "" && out.ClientName != "" {
		out.BackendPoolName = naming.BackendPool(out.ClientName, out.SpokeID)
	}
	if out.RoutingRuleName == "" && out.ClientName != "" {
		out.RoutingRuleName = naming.RoutingRule(out.ClientName, out.SpokeID)
	}

	if out.VMSize == "" {
		out.VMSize = firstNonEmpty(d.VMSize, DefaultVMSize)
	}
	if out.AdminUsername == "" {
		out.AdminUsername = firstNonEmpty(d.AdminUsername, DefaultAdminUsername)
	}
	if out.Image.IsZero() {
		out.Image = d.Image
		if out.Image.IsZero() {
			out.Image = DefaultImage
		}
	}
	return out
}

// SubnetPrefixes returns the four subnet prefixes in addressing.SubnetKinds order.
func (c Configuration) SubnetPrefixes() [4]string {
	return [4]string{c.VMSubnetPrefix, c.DBSubnetPrefix, c.KVSubnetPrefix, c.WorkspaceSubnetPrefix}
}

// NICName is the interface name derived from the VM name.
func (c Configuration) NICName() string {
	return naming.NIC(c.VMName)
}

// OSDiskName is the managed disk name derived from the VM name.
func (c Configuration) OSDiskName() string {
	return naming.OSDisk(c.VMName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
