package addressing

import (
	"encoding/binary"
	"fmt"
	"net"
)

// parseIPv4CIDR parses prefix and rejects anything that is not IPv4 or whose
// address is not the network address.
func parseIPv4CIDR(prefix string) (*net.IPNet, error) {
	ip, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPrefix, prefix, err)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("%w: only IPv4 is supported, got %q", ErrInvalidPrefix, prefix)
	}
	if !ip.Equal(network.IP) {
		return nil, fmt.Errorf("%w: %q has host bits set", ErrInvalidPrefix, prefix)
	}
	return network, nil
}

// cidrSubnet returns the netnum-th subnet of prefix after lengthening its mask
// by newbits, the same arithmetic as Terraform's cidrsubnet.
func cidrSubnet(network *net.IPNet, newbits, netnum int) (string, error) {
	maskSize, totalBits := network.Mask.Size()
	newMaskSize := maskSize + newbits
	if newMaskSize > totalBits {
		return "", fmt.Errorf("prefix extension of %d bits is too large for %s", newbits, network)
	}
	if netnum < 0 || netnum >= 1<<newbits {
		return "", fmt.Errorf("subnet number %d exceeds max subnets %d", netnum, 1<<newbits)
	}

	base := binary.BigEndian.Uint32(network.IP.To4())
	// #nosec G115 -- netnum and the block size are bounded by the mask checks above
	base += uint32(netnum) << uint32(totalBits-newMaskSize)

	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, base)
	return fmt.Sprintf("%s/%d", ip, newMaskSize), nil
}

// Overlaps reports whether two IPv4 prefixes share any address.
func Overlaps(a, b string) (bool, error) {
	na, err := parseIPv4CIDR(a)
	if err != nil {
		return false, err
	}
	nb, err := parseIPv4CIDR(b)
	if err != nil {
		return false, err
	}
	return na.Contains(nb.IP) || nb.Contains(na.IP), nil
}
