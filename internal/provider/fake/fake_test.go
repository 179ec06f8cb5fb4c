package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/spoke"
)

func buildSpoke(t *testing.T, c *Cloud) {
	t.Helper()
	ctx := context.Background()

	_, err := c.CreateVNet(ctx, "spoke-vnet-1", "10.11.1.0/24", nil)
	require.NoError(t, err)
	ids, err := c.CreateSubnets(ctx, "spoke-vnet-1", [4]provider.SubnetSpec{
		{Name: "vm", AddressPrefix: "10.11.1.0/26"},
		{Name: "db", AddressPrefix: "10.11.1.64/26"},
		{Name: "kv", AddressPrefix: "10.11.1.128/26"},
		{Name: "ws", AddressPrefix: "10.11.1.192/26"},
	})
	require.NoError(t, err)
	nicID, err := c.CreateNIC(ctx, "vm-nic", ids["vm"], nil)
	require.NoError(t, err)
	_, err = c.CreateVM(ctx, provider.VMSpec{Name: "vm", NICID: nicID, OSDiskName: "vm-osdisk"})
	require.NoError(t, err)
}

func TestCloud_CreateAndInspect(t *testing.T) {
	t.Parallel()
	c := New()
	c.VMReadyAfter = 2
	buildSpoke(t, c)
	ctx := context.Background()

	for range 2 {
		state, err := c.GetVMStatus(ctx, "vm")
		require.NoError(t, err)
		assert.Equal(t, provider.VMStarting, state)
	}
	state, err := c.GetVMStatus(ctx, "vm")
	require.NoError(t, err)
	assert.Equal(t, provider.VMRunning, state)

	ip, err := c.GetVMPrivateIP(ctx, "vm")
	require.NoError(t, err)
	assert.Equal(t, "10.11.1.4", ip)

	info, err := c.GetVNet(ctx, "spoke-vnet-1")
	require.NoError(t, err)
	assert.Equal(t, "10.11.1.0/24", info.AddressPrefix)
	assert.Len(t, info.SubnetIDs, 4)

	_, err = c.GetVNet(ctx, "missing")
	assert.ErrorIs(t, err, spoke.ErrNotFound)
}

func TestCloud_Peerings(t *testing.T) {
	t.Parallel()
	c := New()
	c.PeeringConnectedAfter = 1
	buildSpoke(t, c)
	ctx := context.Background()

	hubID, err := c.HubVNetID(ctx)
	require.NoError(t, err)
	spokeInfo, err := c.GetVNet(ctx, "spoke-vnet-1")
	require.NoError(t, err)

	out, err := c.CreatePeering(ctx, "spoke-vnet-1", hubID, provider.SpokeToHub)
	require.NoError(t, err)
	assert.Equal(t, "spoke-vnet-1-to-hub-vnet", out.Name)

	in, err := c.CreatePeering(ctx, "spoke-vnet-1", spokeInfo.ID, provider.HubToSpoke)
	require.NoError(t, err)
	assert.Equal(t, "hub-vnet-to-spoke-vnet-1", in.Name)
	assert.Equal(t, "hub-vnet", in.VNetName)

	state, err := c.GetPeeringStatus(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, provider.PeeringInitiated, state)
	state, err = c.GetPeeringStatus(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, provider.PeeringConnected, state)

	assert.Equal(t, []string{"hub-vnet-to-spoke-vnet-1"}, c.Inventory().HubPeerings)
	require.NoError(t, c.DeletePeering(ctx, "hub-vnet", in.Name))
	assert.Empty(t, c.Inventory().HubPeerings)
}

func TestCloud_NICReservedWhileVMExists(t *testing.T) {
	t.Parallel()
	c := New()
	buildSpoke(t, c)
	ctx := context.Background()

	err := c.DeleteNIC(ctx, "vm-nic", 0)
	assert.ErrorIs(t, err, spoke.ErrReserved)

	require.NoError(t, c.DeleteVM(ctx, "vm", 0))
	require.NoError(t, c.DeleteNIC(ctx, "vm-nic", 0))
	// Deleting again is a no-op.
	require.NoError(t, c.DeleteNIC(ctx, "vm-nic", 0))

	exists, err := c.NICExists(ctx, "vm-nic")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []string{"vm-osdisk"}, c.Inventory().Disks)
}

func TestCloud_Gateway(t *testing.T) {
	t.Parallel()
	c := New()
	ctx := context.Background()

	assert.ErrorIs(t, c.CreateRoutingRule(ctx, "rule", "pool"), spoke.ErrNotFound)

	require.NoError(t, c.AddBackendPool(ctx, "pool", "10.11.1.4"))
	require.NoError(t, c.CreateRoutingRule(ctx, "rule", "pool"))
	assert.ErrorIs(t, c.RemoveBackendPool(ctx, "pool"), spoke.ErrReserved)

	require.NoError(t, c.RemoveRoutingRule(ctx, "rule"))
	require.NoError(t, c.RemoveBackendPool(ctx, "pool"))
	exists, err := c.BackendPoolExists(ctx, "pool")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCloud_Inject(t *testing.T) {
	t.Parallel()
	c := New()
	quota := errors.New("quota")
	c.Inject(OpCreateVNet, FailTimes(2, quota))
	ctx := context.Background()

	for range 2 {
		_, err := c.CreateVNet(ctx, "v", "10.11.1.0/24", nil)
		assert.ErrorIs(t, err, quota)
	}
	_, err := c.CreateVNet(ctx, "v", "10.11.1.0/24", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, c.CallCount(OpCreateVNet))
	calls := c.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "CreateVNet:v", calls[0].String())
}

func TestCloud_InventoryEmpty(t *testing.T) {
	t.Parallel()
	c := New()
	assert.True(t, c.Inventory().Empty())
	buildSpoke(t, c)
	assert.False(t, c.Inventory().Empty())
}
