package naming

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxLength is the longest resource name Azure accepts for the resource
// types we create.
const MaxLength = 64

var (
	invalidChars = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRuns   = regexp.MustCompile(`-+`)
)

// Sanitize lowercases name and reduces it to [a-z0-9-], collapsing hyphen
// runs and trimming hyphens at both ends. The result is at most maxLength
// characters; an input with nothing usable yields "default".
func Sanitize(name string, maxLength int) string {
	name = strings.ToLower(name)
	name = invalidChars.ReplaceAllString(name, "-")
	name = hyphenRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	if len(name) > maxLength {
		name = strings.TrimRight(name[:maxLength], "-")
	}
	if name == "" {
		return "default"
	}
	return name
}

func VNet(spokeID int) string {
	return fmt.Sprintf("spoke-vnet-%d", spokeID)
}

// Subnet returns the name of one of the four spoke subnets.
// kind is one of "vm", "db", "kv", "workspace".
func Subnet(spokeID int, kind string) string {
	return fmt.Sprintf("spoke-%d-%s-subnet", spokeID, kind)
}

func VM(clientName string, spokeID int) string {
	return fmt.Sprintf("%s-spoke%d-vm", Sanitize(clientName, MaxLength-16), spokeID)
}

func NIC(vmName string) string {
	return vmName + "-nic"
}

func OSDisk(vmName string) string {
	return vmName + "-osdisk"
}

func IPConfig(nicName string) string {
	return nicName + "-ipconfig"
}

// Peering returns the name of the peering from source to target VNet.
func Peering(source, target string) string {
	return fmt.Sprintf("%s-to-%s", source, target)
}

func BackendPool(clientName string, spokeID int) string {
	return fmt.Sprintf("%s-spoke%d-pool", Sanitize(clientName, MaxLength-16), spokeID)
}

func RoutingRule(clientName string, spokeID int) string {
	return fmt.Sprintf("%s-spoke%d-rule", Sanitize(clientName, MaxLength-16), spokeID)
}
