package addressing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/EvilSuperstars/go-cidrman"
)

const (
	// MinSpokeID is the lowest spoke id that maps to a usable third octet.
	MinSpokeID = 1
	// MaxSpokeID is the highest spoke id that maps to a usable third octet.
	MaxSpokeID = 254

	// VNetPrefixLength is the mask length of every spoke VNet.
	VNetPrefixLength = 24
	// SubnetPrefixLength is the mask length of every spoke subnet.
	SubnetPrefixLength = 26

	// DefaultBase is the two-octet range spokes are carved from.
	DefaultBase = "10.11"
)

// SubnetKind names one of the four tiers inside a spoke VNet.
type SubnetKind string

// Subnet tiers in address order.
const (
	SubnetVM        SubnetKind = "vm"
	SubnetDB        SubnetKind = "db"
	SubnetKV        SubnetKind = "kv"
	SubnetWorkspace SubnetKind = "workspace"
)

// SubnetKinds lists the tiers in the order PlanSubnets returns them.
var SubnetKinds = [4]SubnetKind{SubnetVM, SubnetDB, SubnetKV, SubnetWorkspace}

// Planner derives spoke address ranges from a two-octet base.
type Planner struct {
	base string
}

// NewPlanner returns a planner for base, which must be two dotted decimal
// octets such as "10.11".
func NewPlanner(base string) (*Planner, error) {
	parts := strings.Split(base, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: base %q must have two octets", ErrInvalidPrefix, base)
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || strconv.Itoa(n) != p {
			return nil, fmt.Errorf("%w: base %q has invalid octet %q", ErrInvalidPrefix, base, p)
		}
	}
	return &Planner{base: base}, nil
}

// Base returns the two-octet base.
func (p *Planner) Base() string {
	return p.base
}

// PlanVNet returns {base}.{spokeID}.0/24.
func (p *Planner) PlanVNet(spokeID int) (string, error) {
	if spokeID < MinSpokeID || spokeID > MaxSpokeID {
		return "", &RangeError{SpokeID: spokeID}
	}
	return fmt.Sprintf("%s.%d.0/%d", p.base, spokeID, VNetPrefixLength), nil
}

// PlanSubnets splits an IPv4 /24 into four /26 blocks at offsets 0, 64, 128
// and 192, ordered as SubnetKinds.
func PlanSubnets(vnetCIDR string) ([4]string, error) {
	var out [4]string

	network, err := parseIPv4CIDR(vnetCIDR)
	if err != nil {
		return out, err
	}
	if ones, _ := network.Mask.Size(); ones != VNetPrefixLength {
		return out, fmt.Errorf("%w: %q is not a /%d", ErrInvalidPrefix, vnetCIDR, VNetPrefixLength)
	}

	for i := range out {
		subnet, err := cidrSubnet(network, SubnetPrefixLength-VNetPrefixLength, i)
		if err != nil {
			return out, fmt.Errorf("failed to compute subnet %d of %s: %w", i, vnetCIDR, err)
		}
		out[i] = subnet
	}
	return out, nil
}

// Plan returns the VNet range and its subnets for spokeID.
func (p *Planner) Plan(spokeID int) (string, [4]string, error) {
	vnet, err := p.PlanVNet(spokeID)
	if err != nil {
		return "", [4]string{}, err
	}
	subnets, err := PlanSubnets(vnet)
	return vnet, subnets, err
}

// VerifyPartition checks that subnets are pairwise disjoint and that together
// they cover exactly vnet.
func VerifyPartition(vnet string, subnets []string) error {
	vnetNet, err := parseIPv4CIDR(vnet)
	if err != nil {
		return err
	}

	for i, s := range subnets {
		sNet, err := parseIPv4CIDR(s)
		if err != nil {
			return err
		}
		if !vnetNet.Contains(sNet.IP) {
			return fmt.Errorf("%w: subnet %s lies outside %s", ErrInvalidPrefix, s, vnet)
		}
		for _, other := range subnets[i+1:] {
			overlap, err := Overlaps(s, other)
			if err != nil {
				return err
			}
			if overlap {
				return fmt.Errorf("%w: subnets %s and %s overlap", ErrInvalidPrefix, s, other)
			}
		}
	}

	merged, err := cidrman.MergeCIDRs(subnets)
	if err != nil {
		return fmt.Errorf("failed to merge subnets: %w", err)
	}
	if len(merged) != 1 || merged[0] != vnetNet.String() {
		return fmt.Errorf("%w: subnets %v do not cover %s", ErrInvalidPrefix, subnets, vnet)
	}
	return nil
}
