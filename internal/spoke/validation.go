package spoke

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/hubspoke/internal/addressing"
)

var (
	clientNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	vmSizePattern     = regexp.MustCompile(`^(Basic|Standard)_[A-Z]+[0-9]+[a-z]*(_v[0-9]+)?$`)
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

const (
	minClientNameLength = 3
	maxClientNameLength = 50
	maxUsernameLength   = 64
)

// allowedKeyTypes are the SSH public key algorithms accepted for the admin user.
var allowedKeyTypes = map[string]bool{
	ssh.KeyAlgoRSA:      true,
	ssh.KeyAlgoED25519:  true,
	ssh.KeyAlgoECDSA256: true,
	ssh.KeyAlgoECDSA384: true,
	ssh.KeyAlgoECDSA521: true,
}

// Validate checks every field and returns a *ValidationError listing all
// problems, or nil.
func (c Configuration) Validate() error {
	verr := &ValidationError{}

	if c.SpokeID < addressing.MinSpokeID || c.SpokeID > addressing.MaxSpokeID {
		verr.add("spoke_id", "must be between %d and %d, got %d",
			addressing.MinSpokeID, addressing.MaxSpokeID, c.SpokeID)
	}

	validateClientName(verr, c.ClientName)
	validateAddressing(verr, c)

	if c.VNetName == "" {
		verr.add("vnet_name", "is required")
	}
	if c.VMName == "" {
		verr.add("vm_name", "is required")
	}
	if c.BackendPoolName == "" {
		verr.add("backend_pool_name", "is required")
	}
	if c.RoutingRuleName == "" {
		verr.add("routing_rule_name", "is required")
	}

	if !vmSizePattern.MatchString(c.VMSize) {
		verr.add("vm_size", "invalid VM size %q", c.VMSize)
	}

	switch {
	case c.AdminUsername == "":
		verr.add("admin_username", "is required")
	case len(c.AdminUsername) > maxUsernameLength:
		verr.add("admin_username", "must be at most %d characters", maxUsernameLength)
	case !usernamePattern.MatchString(c.AdminUsername):
		verr.add("admin_username", "must start with a letter or underscore and contain only letters, digits and underscores")
	}

	if c.Image.Publisher == "" || c.Image.Offer == "" || c.Image.SKU == "" || c.Image.Version == "" {
		verr.add("image", "publisher, offer, sku and version are required")
	}

	validateSSHKey(verr, c.SSHPublicKey)

	return verr.orNil()
}

func validateClientName(verr *ValidationError, name string) {
	switch {
	case name == "":
		verr.add("client_name", "is required")
	case len(name) < minClientNameLength || len(name) > maxClientNameLength:
		verr.add("client_name", "must be %d-%d characters, got %d", minClientNameLength, maxClientNameLength, len(name))
	case !clientNamePattern.MatchString(name):
		verr.add("client_name", "must be alphanumeric with inner hyphens")
	case strings.Contains(name, "--"):
		verr.add("client_name", "must not contain consecutive hyphens")
	}
}

func validateAddressing(verr *ValidationError, c Configuration) {
	fields := []struct {
		name  string
		value string
	}{
		{"address_prefix", c.AddressPrefix},
		{"vm_subnet_prefix", c.VMSubnetPrefix},
		{"db_subnet_prefix", c.DBSubnetPrefix},
		{"kv_subnet_prefix", c.KVSubnetPrefix},
		{"workspace_subnet_prefix", c.WorkspaceSubnetPrefix},
	}

	ok := true
	for _, f := range fields {
		if f.value == "" {
			verr.add(f.name, "is required")
			ok = false
		}
	}
	if !ok {
		return
	}

	subnets := c.SubnetPrefixes()
	suffix := "/" + strconv.Itoa(addressing.SubnetPrefixLength)
	for i, s := range subnets {
		if !strings.HasSuffix(s, suffix) {
			verr.add(fields[i+1].name, "must be a /%d, got %q", addressing.SubnetPrefixLength, s)
			ok = false
		}
	}
	if !ok {
		return
	}
	if _, err := addressing.PlanSubnets(c.AddressPrefix); err != nil {
		verr.add("address_prefix", "%v", err)
		return
	}
	if err := addressing.VerifyPartition(c.AddressPrefix, subnets[:]); err != nil {
		verr.add("subnet_prefixes", "%v", err)
	}
}

func validateSSHKey(verr *ValidationError, key string) {
	if strings.TrimSpace(key) == "" {
		verr.add("ssh_public_key", "is required")
		return
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key))
	if err != nil {
		verr.add("ssh_public_key", "not a valid authorized key: %v", err)
		return
	}
	if !allowedKeyTypes[pub.Type()] {
		verr.add("ssh_public_key", "unsupported key type %q", pub.Type())
	}
}
