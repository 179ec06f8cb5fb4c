// Package fake is a stateful in-memory cloud implementing provider.Cloud.
//
// It keeps just enough state to make create and delete observable (a VNet
// exists until deleted, a NIC stays reserved while its VM exists) and lets
// tests inject failures per operation with [Cloud.Inject].
package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/util/naming"
)

// Operation names accepted by Inject.
const (
	OpCreateVNet        = "CreateVNet"
	OpCreateSubnets     = "CreateSubnets"
	OpCreatePeering     = "CreatePeering"
	OpGetPeeringStatus  = "GetPeeringStatus"
	OpGetVNet           = "GetVNet"
	OpDeletePeering     = "DeletePeering"
	OpDeleteVNet        = "DeleteVNet"
	OpCreateNIC         = "CreateNIC"
	OpCreateVM          = "CreateVM"
	OpGetVMStatus       = "GetVMStatus"
	OpGetVMPrivateIP    = "GetVMPrivateIP"
	OpDeleteVM          = "DeleteVM"
	OpDeleteNIC         = "DeleteNIC"
	OpDeleteDisk        = "DeleteDisk"
	OpNICExists         = "NICExists"
	OpAddBackendPool    = "AddBackendPool"
	OpRemoveBackendPool = "RemoveBackendPool"
	OpCreateRoutingRule = "CreateRoutingRule"
	OpRemoveRoutingRule = "RemoveRoutingRule"
	OpBackendPoolExists = "BackendPoolExists"
)

const (
	idPrefix             = "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/hubspoke-rg/providers"
	defaultHubVNetName   = "hub-vnet"
	defaultHubVNetPrefix = "10.0.0.0/16"
)

// Hook decides the outcome of the n-th call (1-based) of an operation on
// resource. A non-nil error is returned instead of performing the call.
type Hook func(n int, resource string) error

// Call is one recorded provider invocation.
type Call struct {
	Op       string
	Resource string
}

func (c Call) String() string {
	return c.Op + ":" + c.Resource
}

type vnet struct {
	id       string
	prefix   string
	subnets  map[string]string
	peerings map[string]*peering
}

type peering struct {
	id     string
	checks int
}

type nic struct {
	id       string
	subnetID string
	vm       string
}

type vm struct {
	id     string
	nic    string
	disk   string
	ip     string
	checks int
}

// Cloud is a fake provider.Cloud. The zero value is not usable; use New.
type Cloud struct {
	mu sync.Mutex

	hubName string
	hub     *vnet

	vnets map[string]*vnet
	nics  map[string]*nic
	vms   map[string]*vm
	disks map[string]bool
	pools map[string]string
	rules map[string]string

	// VMReadyAfter is the number of GetVMStatus calls that report
	// "starting" before a VM reports "running".
	VMReadyAfter int
	// PeeringConnectedAfter is the number of GetPeeringStatus calls that
	// report "Initiated" before a peering reports "Connected".
	PeeringConnectedAfter int

	hooks  map[string]Hook
	counts map[string]int
	calls  []Call
}

var _ provider.Cloud = (*Cloud)(nil)

// New returns an empty cloud with a hub VNet.
func New() *Cloud {
	c := &Cloud{
		hubName: defaultHubVNetName,
		vnets:   make(map[string]*vnet),
		nics:    make(map[string]*nic),
		vms:     make(map[string]*vm),
		disks:   make(map[string]bool),
		pools:   make(map[string]string),
		rules:   make(map[string]string),
		hooks:   make(map[string]Hook),
		counts:  make(map[string]int),
	}
	c.hub = &vnet{
		id:       vnetID(defaultHubVNetName),
		prefix:   defaultHubVNetPrefix,
		subnets:  map[string]string{},
		peerings: map[string]*peering{},
	}
	return c
}

// HubName returns the hub VNet name.
func (c *Cloud) HubName() string {
	return c.hubName
}

// Inject installs hook for op, replacing any earlier hook. A nil hook
// removes it.
func (c *Cloud) Inject(op string, hook Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hook == nil {
		delete(c.hooks, op)
		return
	}
	c.hooks[op] = hook
}

// FailAlways returns a hook that always fails with err.
func FailAlways(err error) Hook {
	return func(int, string) error { return err }
}

// FailTimes returns a hook that fails the first n calls with err.
func FailTimes(n int, err error) Hook {
	return func(call int, _ string) error {
		if call <= n {
			return err
		}
		return nil
	}
}

// Calls returns the recorded invocations in order.
func (c *Cloud) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallCount returns how often op was invoked.
func (c *Cloud) CallCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[op]
}

// enter records the call and consults the hook. Caller holds c.mu.
func (c *Cloud) enter(ctx context.Context, op, resource string) error {
	c.counts[op]++
	c.calls = append(c.calls, Call{Op: op, Resource: resource})
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook, ok := c.hooks[op]; ok {
		return hook(c.counts[op], resource)
	}
	return nil
}

func vnetID(name string) string {
	return fmt.Sprintf("%s/Microsoft.Network/virtualNetworks/%s", idPrefix, name)
}

func nameFromID(id string) string {
	return id[strings.LastIndex(id, "/")+1:]
}

func notFound(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, spoke.ErrNotFound)
}

// CreateVNet implements provider.NetworkProvider.
func (c *Cloud) CreateVNet(ctx context.Context, name, addressPrefix string, _ map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreateVNet, name); err != nil {
		return "", err
	}
	if v, ok := c.vnets[name]; ok {
		return v.id, nil
	}
	v := &vnet{id: vnetID(name), prefix: addressPrefix, subnets: map[string]string{}, peerings: map[string]*peering{}}
	c.vnets[name] = v
	return v.id, nil
}

// CreateSubnets implements provider.NetworkProvider.
func (c *Cloud) CreateSubnets(ctx context.Context, vnetName string, subnets [4]provider.SubnetSpec) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreateSubnets, vnetName); err != nil {
		return nil, err
	}
	v, ok := c.vnets[vnetName]
	if !ok {
		return nil, notFound("virtual network", vnetName)
	}
	out := make(map[string]string, len(subnets))
	for _, s := range subnets {
		id := fmt.Sprintf("%s/subnets/%s", v.id, s.Name)
		v.subnets[s.Name] = id
		out[s.Name] = id
	}
	return out, nil
}

// CreatePeering implements provider.NetworkProvider.
func (c *Cloud) CreatePeering(ctx context.Context, local, remoteID string, direction provider.PeeringDirection) (provider.Peering, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreatePeering, local+"/"+string(direction)); err != nil {
		return provider.Peering{}, err
	}
	spokeNet, ok := c.vnets[local]
	if !ok {
		return provider.Peering{}, notFound("virtual network", local)
	}

	owner, ownerName, name := spokeNet, local, naming.Peering(local, nameFromID(remoteID))
	if direction == provider.HubToSpoke {
		owner, ownerName, name = c.hub, c.hubName, naming.Peering(c.hubName, local)
	}
	p, ok := owner.peerings[name]
	if !ok {
		p = &peering{id: fmt.Sprintf("%s/virtualNetworkPeerings/%s", owner.id, name)}
		owner.peerings[name] = p
	}
	return provider.Peering{ID: p.id, Name: name, VNetName: ownerName, Direction: direction}, nil
}

// GetPeeringStatus implements provider.NetworkProvider.
func (c *Cloud) GetPeeringStatus(ctx context.Context, peeringID string) (provider.PeeringState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpGetPeeringStatus, peeringID); err != nil {
		return "", err
	}
	p := c.findPeering(peeringID)
	if p == nil {
		return "", notFound("peering", peeringID)
	}
	p.checks++
	if p.checks <= c.PeeringConnectedAfter {
		return provider.PeeringInitiated, nil
	}
	return provider.PeeringConnected, nil
}

func (c *Cloud) findPeering(id string) *peering {
	for _, v := range append([]*vnet{c.hub}, c.vnetList()...) {
		for _, p := range v.peerings {
			if p.id == id {
				return p
			}
		}
	}
	return nil
}

func (c *Cloud) vnetList() []*vnet {
	out := make([]*vnet, 0, len(c.vnets))
	for _, v := range c.vnets {
		out = append(out, v)
	}
	return out
}

// GetVNet implements provider.NetworkProvider.
func (c *Cloud) GetVNet(ctx context.Context, name string) (*provider.VNetInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpGetVNet, name); err != nil {
		return nil, err
	}
	v, ok := c.vnets[name]
	if !ok {
		return nil, notFound("virtual network", name)
	}
	subnets := make(map[string]string, len(v.subnets))
	for k, id := range v.subnets {
		subnets[k] = id
	}
	return &provider.VNetInfo{ID: v.id, Name: name, AddressPrefix: v.prefix, SubnetIDs: subnets}, nil
}

// HubVNetID implements provider.NetworkProvider.
func (c *Cloud) HubVNetID(context.Context) (string, error) {
	return c.hub.id, nil
}

// DeletePeering implements provider.NetworkProvider.
func (c *Cloud) DeletePeering(ctx context.Context, vnetName, peeringName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpDeletePeering, vnetName+"/"+peeringName); err != nil {
		return err
	}
	owner := c.vnets[vnetName]
	if vnetName == c.hubName {
		owner = c.hub
	}
	if owner != nil {
		delete(owner.peerings, peeringName)
	}
	return nil
}

// DeleteVNet implements provider.NetworkProvider. Peerings on the hub that
// point at the VNet are left behind, as they are on Azure.
func (c *Cloud) DeleteVNet(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpDeleteVNet, name); err != nil {
		return err
	}
	delete(c.vnets, name)
	return nil
}

// CreateNIC implements provider.ComputeProvider.
func (c *Cloud) CreateNIC(ctx context.Context, name, subnetID string, _ map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreateNIC, name); err != nil {
		return "", err
	}
	if n, ok := c.nics[name]; ok {
		return n.id, nil
	}
	n := &nic{id: fmt.Sprintf("%s/Microsoft.Network/networkInterfaces/%s", idPrefix, name), subnetID: subnetID}
	c.nics[name] = n
	return n.id, nil
}

// CreateVM implements provider.ComputeProvider.
func (c *Cloud) CreateVM(ctx context.Context, spec provider.VMSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreateVM, spec.Name); err != nil {
		return "", err
	}
	if v, ok := c.vms[spec.Name]; ok {
		return v.id, nil
	}
	nicName := nameFromID(spec.NICID)
	n, ok := c.nics[nicName]
	if !ok {
		return "", notFound("network interface", nicName)
	}
	n.vm = spec.Name
	v := &vm{
		id:   fmt.Sprintf("%s/Microsoft.Compute/virtualMachines/%s", idPrefix, spec.Name),
		nic:  nicName,
		disk: spec.OSDiskName,
		ip:   c.privateIPFor(n.subnetID),
	}
	c.vms[spec.Name] = v
	c.disks[spec.OSDiskName] = true
	return v.id, nil
}

// privateIPFor returns the first usable address of the subnet backing subnetID.
func (c *Cloud) privateIPFor(subnetID string) string {
	for _, v := range c.vnets {
		for _, id := range v.subnets {
			if id == subnetID {
				// Spoke VNets are /24 and the VM subnet is the first /26.
				base := strings.TrimSuffix(v.prefix, "0/24")
				return base + "4"
			}
		}
	}
	return "10.255.255.4"
}

// GetVMStatus implements provider.ComputeProvider.
func (c *Cloud) GetVMStatus(ctx context.Context, name string) (provider.VMPowerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpGetVMStatus, name); err != nil {
		return "", err
	}
	v, ok := c.vms[name]
	if !ok {
		return "", notFound("virtual machine", name)
	}
	v.checks++
	if v.checks <= c.VMReadyAfter {
		return provider.VMStarting, nil
	}
	return provider.VMRunning, nil
}

// GetVMPrivateIP implements provider.ComputeProvider.
func (c *Cloud) GetVMPrivateIP(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpGetVMPrivateIP, name); err != nil {
		return "", err
	}
	v, ok := c.vms[name]
	if !ok {
		return "", notFound("virtual machine", name)
	}
	return v.ip, nil
}

// DeleteVM implements provider.ComputeProvider. The OS disk survives.
func (c *Cloud) DeleteVM(ctx context.Context, name string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpDeleteVM, name); err != nil {
		return err
	}
	if v, ok := c.vms[name]; ok {
		if n, ok := c.nics[v.nic]; ok {
			n.vm = ""
		}
		delete(c.vms, name)
	}
	return nil
}

// DeleteNIC implements provider.ComputeProvider.
func (c *Cloud) DeleteNIC(ctx context.Context, name string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpDeleteNIC, name); err != nil {
		return err
	}
	if n, ok := c.nics[name]; ok && n.vm != "" {
		return fmt.Errorf("network interface %q is attached to %q: %w", name, n.vm, spoke.ErrReserved)
	}
	delete(c.nics, name)
	return nil
}

// DeleteDisk implements provider.ComputeProvider.
func (c *Cloud) DeleteDisk(ctx context.Context, name string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpDeleteDisk, name); err != nil {
		return err
	}
	delete(c.disks, name)
	return nil
}

// NICExists implements provider.ComputeProvider.
func (c *Cloud) NICExists(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpNICExists, name); err != nil {
		return false, err
	}
	_, ok := c.nics[name]
	return ok, nil
}

// AddBackendPool implements provider.GatewayProvider.
func (c *Cloud) AddBackendPool(ctx context.Context, pool, ip string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpAddBackendPool, pool); err != nil {
		return err
	}
	c.pools[pool] = ip
	return nil
}

// RemoveBackendPool implements provider.GatewayProvider.
func (c *Cloud) RemoveBackendPool(ctx context.Context, pool string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpRemoveBackendPool, pool); err != nil {
		return err
	}
	for rule, p := range c.rules {
		if p == pool {
			return fmt.Errorf("backend pool %q is referenced by rule %q: %w", pool, rule, spoke.ErrReserved)
		}
	}
	delete(c.pools, pool)
	return nil
}

// CreateRoutingRule implements provider.GatewayProvider.
func (c *Cloud) CreateRoutingRule(ctx context.Context, rule, pool string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreateRoutingRule, rule); err != nil {
		return err
	}
	if _, ok := c.pools[pool]; !ok {
		return notFound("backend pool", pool)
	}
	c.rules[rule] = pool
	return nil
}

// RemoveRoutingRule implements provider.GatewayProvider.
func (c *Cloud) RemoveRoutingRule(ctx context.Context, rule string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpRemoveRoutingRule, rule); err != nil {
		return err
	}
	delete(c.rules, rule)
	return nil
}

// BackendPoolExists implements provider.GatewayProvider.
func (c *Cloud) BackendPoolExists(ctx context.Context, pool string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpBackendPoolExists, pool); err != nil {
		return false, err
	}
	_, ok := c.pools[pool]
	return ok, nil
}

// Inventory lists the names of every live resource, sorted, for assertions.
type Inventory struct {
	VNets        []string
	HubPeerings  []string
	NICs         []string
	VMs          []string
	Disks        []string
	BackendPools []string
	RoutingRules []string
}

// Empty reports whether no spoke resource is left.
func (i Inventory) Empty() bool {
	return len(i.VNets)+len(i.HubPeerings)+len(i.NICs)+len(i.VMs)+
		len(i.Disks)+len(i.BackendPools)+len(i.RoutingRules) == 0
}

// Inventory snapshots the live resources.
func (c *Cloud) Inventory() Inventory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Inventory{
		VNets:        sortedKeys(c.vnets),
		HubPeerings:  sortedKeys(c.hub.peerings),
		NICs:         sortedKeys(c.nics),
		VMs:          sortedKeys(c.vms),
		Disks:        sortedKeys(c.disks),
		BackendPools: sortedKeys(c.pools),
		RoutingRules: sortedKeys(c.rules),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
