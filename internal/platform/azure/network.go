package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"

	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/util/labels"
	"github.com/imamik/hubspoke/internal/util/naming"
)

// groupFor returns the resource group holding vnetName.
func (c *Client) groupFor(vnetName string) string {
	if vnetName == c.hubVNet {
		return c.hubGroup
	}
	return c.resourceGroup
}

// CreateVNet creates the VNet. An existing VNet of the same name is reused.
func (c *Client) CreateVNet(ctx context.Context, name, addressPrefix string, tags map[string]string) (string, error) {
	if existing, err := c.vnets.Get(ctx, c.resourceGroup, name, nil); err == nil {
		c.log.Info("virtual network already exists", "name", name)
		return toValue(existing.ID), nil
	} else if !IsNotFound(err) {
		return "", classify("get virtual network "+name, err)
	}

	poller, err := c.vnets.BeginCreateOrUpdate(ctx, c.resourceGroup, name, armnetwork.VirtualNetwork{
		Location: to.Ptr(c.location),
		Tags:     labels.Pointers(tags),
		Properties: &armnetwork.VirtualNetworkPropertiesFormat{
			AddressSpace: &armnetwork.AddressSpace{
				AddressPrefixes: []*string{to.Ptr(addressPrefix)},
			},
		},
	}, nil)
	if err != nil {
		return "", classify("create virtual network "+name, err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", classify("create virtual network "+name, err)
	}
	c.log.Info("virtual network created", "name", name, "prefix", addressPrefix)
	return toValue(resp.ID), nil
}

// CreateSubnets creates the subnets one at a time; Azure rejects concurrent
// writes to the same VNet.
func (c *Client) CreateSubnets(ctx context.Context, vnetName string, subnets [4]provider.SubnetSpec) (map[string]string, error) {
	ids := make(map[string]string, len(subnets))
	for _, s := range subnets {
		op := fmt.Sprintf("create subnet %s/%s", vnetName, s.Name)
		poller, err := c.subnets.BeginCreateOrUpdate(ctx, c.resourceGroup, vnetName, s.Name, armnetwork.Subnet{
			Properties: &armnetwork.SubnetPropertiesFormat{
				AddressPrefix: to.Ptr(s.AddressPrefix),
			},
		}, nil)
		if err != nil {
			return nil, classify(op, err)
		}
		resp, err := poller.PollUntilDone(ctx, nil)
		if err != nil {
			return nil, classify(op, err)
		}
		ids[s.Name] = toValue(resp.ID)
	}
	return ids, nil
}

// CreatePeering creates the spoke-side or hub-side half of the peering.
// The hub side allows gateway transit; the spoke side uses it.
func (c *Client) CreatePeering(ctx context.Context, local, remoteID string, direction provider.PeeringDirection) (provider.Peering, error) {
	owner, group := local, c.resourceGroup
	name := naming.Peering(local, c.hubVNet)
	props := &armnetwork.VirtualNetworkPeeringPropertiesFormat{
		RemoteVirtualNetwork:      &armnetwork.SubResource{ID: to.Ptr(remoteID)},
		AllowVirtualNetworkAccess: to.Ptr(true),
		AllowForwardedTraffic:     to.Ptr(true),
		AllowGatewayTransit:       to.Ptr(false),
		UseRemoteGateways:         to.Ptr(false),
	}
	if direction == provider.HubToSpoke {
		owner, group = c.hubVNet, c.hubGroup
		name = naming.Peering(c.hubVNet, local)
		props.AllowGatewayTransit = to.Ptr(true)
	}

	op := fmt.Sprintf("create peering %s/%s", owner, name)
	poller, err := c.peerings.BeginCreateOrUpdate(ctx, group, owner, name, armnetwork.VirtualNetworkPeering{
		Properties: props,
	}, nil)
	if err != nil {
		return provider.Peering{}, classify(op, err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return provider.Peering{}, classify(op, err)
	}
	c.log.Info("peering created", "vnet", owner, "peering", name, "direction", string(direction))
	return provider.Peering{ID: toValue(resp.ID), Name: name, VNetName: owner, Direction: direction}, nil
}

// GetPeeringStatus resolves the peering from its resource id.
func (c *Client) GetPeeringStatus(ctx context.Context, peeringID string) (provider.PeeringState, error) {
	id, err := arm.ParseResourceID(peeringID)
	if err != nil {
		return "", fmt.Errorf("invalid peering id %q: %w", peeringID, err)
	}
	if id.Parent == nil {
		return "", fmt.Errorf("peering id %q has no parent network", peeringID)
	}
	resp, err := c.peerings.Get(ctx, id.ResourceGroupName, id.Parent.Name, id.Name, nil)
	if err != nil {
		return "", classify("get peering "+id.Name, err)
	}
	if resp.Properties == nil || resp.Properties.PeeringState == nil {
		return provider.PeeringInitiated, nil
	}
	return provider.PeeringState(*resp.Properties.PeeringState), nil
}

// GetVNet returns the VNet with its subnet ids keyed by subnet name.
func (c *Client) GetVNet(ctx context.Context, name string) (*provider.VNetInfo, error) {
	resp, err := c.vnets.Get(ctx, c.groupFor(name), name, nil)
	if err != nil {
		return nil, classify("get virtual network "+name, err)
	}
	info := &provider.VNetInfo{
		ID:        toValue(resp.ID),
		Name:      name,
		SubnetIDs: map[string]string{},
	}
	if props := resp.Properties; props != nil {
		if props.AddressSpace != nil && len(props.AddressSpace.AddressPrefixes) > 0 {
			info.AddressPrefix = toValue(props.AddressSpace.AddressPrefixes[0])
		}
		for _, s := range props.Subnets {
			if s != nil && s.Name != nil {
				info.SubnetIDs[*s.Name] = toValue(s.ID)
			}
		}
	}
	return info, nil
}

// HubVNetID implements provider.NetworkProvider.
func (c *Client) HubVNetID(ctx context.Context) (string, error) {
	hub, err := c.GetVNet(ctx, c.hubVNet)
	if err != nil {
		return "", err
	}
	return hub.ID, nil
}

// DeletePeering removes a peering; an absent peering is not an error.
func (c *Client) DeletePeering(ctx context.Context, vnetName, peeringName string) error {
	poller, err := c.peerings.BeginDelete(ctx, c.groupFor(vnetName), vnetName, peeringName, nil)
	if err == nil {
		_, err = poller.PollUntilDone(ctx, nil)
	}
	if err != nil && !IsNotFound(err) {
		return classify(fmt.Sprintf("delete peering %s/%s", vnetName, peeringName), err)
	}
	return nil
}

// DeleteVNet removes the VNet with its subnets and spoke-side peerings.
func (c *Client) DeleteVNet(ctx context.Context, name string) error {
	poller, err := c.vnets.BeginDelete(ctx, c.resourceGroup, name, nil)
	if err == nil {
		_, err = poller.PollUntilDone(ctx, nil)
	}
	if err != nil && !IsNotFound(err) {
		return classify("delete virtual network "+name, err)
	}
	c.log.Info("virtual network deleted", "name", name)
	return nil
}
