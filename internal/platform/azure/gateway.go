package azure

import (
	"context"
	"fmt"
	"slices"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
)

// Routing rule priorities accepted by Application Gateway v2.
const (
	minRulePriority  = 100
	maxRulePriority  = 20000
	rulePriorityStep = 10
)

// updateGateway reads the gateway, applies mutate and writes it back when
// mutate reports a change. Gateway writes replace the whole resource.
func (c *Client) updateGateway(ctx context.Context, op string, mutate func(gw *armnetwork.ApplicationGateway) (bool, error)) error {
	resp, err := c.gateways.Get(ctx, c.hubGroup, c.gateway, nil)
	if err != nil {
		return classify("get application gateway "+c.gateway, err)
	}
	gw := resp.ApplicationGateway
	if gw.Properties == nil {
		gw.Properties = &armnetwork.ApplicationGatewayPropertiesFormat{}
	}

	changed, err := mutate(&gw)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !changed {
		return nil
	}

	poller, err := c.gateways.BeginCreateOrUpdate(ctx, c.hubGroup, c.gateway, gw, nil)
	if err != nil {
		return classify(op, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classify(op, err)
	}
	c.log.Info("application gateway updated", "gateway", c.gateway, "operation", op)
	return nil
}

func (c *Client) subResource(kind, name string) *armnetwork.SubResource {
	return &armnetwork.SubResource{ID: to.Ptr(fmt.Sprintf(
		"/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/applicationGateways/%s/%s/%s",
		c.subscription, c.hubGroup, c.gateway, kind, name,
	))}
}

// AddBackendPool adds or replaces the pool with a single backend address.
func (c *Client) AddBackendPool(ctx context.Context, pool, ip string) error {
	return c.updateGateway(ctx, "add backend pool "+pool, func(gw *armnetwork.ApplicationGateway) (bool, error) {
		pools := slices.DeleteFunc(gw.Properties.BackendAddressPools, func(p *armnetwork.ApplicationGatewayBackendAddressPool) bool {
			return p != nil && toValue(p.Name) == pool
		})
		gw.Properties.BackendAddressPools = append(pools, &armnetwork.ApplicationGatewayBackendAddressPool{
			Name: to.Ptr(pool),
			Properties: &armnetwork.ApplicationGatewayBackendAddressPoolPropertiesFormat{
				BackendAddresses: []*armnetwork.ApplicationGatewayBackendAddress{{IPAddress: to.Ptr(ip)}},
			},
		})
		return true, nil
	})
}

// RemoveBackendPool removes the pool. Azure rejects the write while a rule
// still references it.
func (c *Client) RemoveBackendPool(ctx context.Context, pool string) error {
	return c.updateGateway(ctx, "remove backend pool "+pool, func(gw *armnetwork.ApplicationGateway) (bool, error) {
		before := len(gw.Properties.BackendAddressPools)
		gw.Properties.BackendAddressPools = slices.DeleteFunc(gw.Properties.BackendAddressPools, func(p *armnetwork.ApplicationGatewayBackendAddressPool) bool {
			return p != nil && toValue(p.Name) == pool
		})
		return len(gw.Properties.BackendAddressPools) != before, nil
	})
}

// CreateRoutingRule adds a basic rule sending the configured listener's
// traffic to pool. The rule takes the next free priority.
func (c *Client) CreateRoutingRule(ctx context.Context, rule, pool string) error {
	return c.updateGateway(ctx, "create routing rule "+rule, func(gw *armnetwork.ApplicationGateway) (bool, error) {
		priority := int32(minRulePriority)
		for _, r := range gw.Properties.RequestRoutingRules {
			if r == nil {
				continue
			}
			if toValue(r.Name) == rule {
				return false, nil
			}
			if r.Properties != nil && toValue(r.Properties.Priority) >= priority {
				priority = toValue(r.Properties.Priority) + rulePriorityStep
			}
		}
		if priority > maxRulePriority {
			return false, fmt.Errorf("no free routing rule priority")
		}

		gw.Properties.RequestRoutingRules = append(gw.Properties.RequestRoutingRules, &armnetwork.ApplicationGatewayRequestRoutingRule{
			Name: to.Ptr(rule),
			Properties: &armnetwork.ApplicationGatewayRequestRoutingRulePropertiesFormat{
				RuleType:            to.Ptr(armnetwork.ApplicationGatewayRequestRoutingRuleTypeBasic),
				Priority:            to.Ptr(priority),
				HTTPListener:        c.subResource("httpListeners", c.listener),
				BackendAddressPool:  c.subResource("backendAddressPools", pool),
				BackendHTTPSettings: c.subResource("backendHttpSettingsCollection", c.httpSettings),
			},
		})
		return true, nil
	})
}

// RemoveRoutingRule implements provider.GatewayProvider.
func (c *Client) RemoveRoutingRule(ctx context.Context, rule string) error {
	return c.updateGateway(ctx, "remove routing rule "+rule, func(gw *armnetwork.ApplicationGateway) (bool, error) {
		before := len(gw.Properties.RequestRoutingRules)
		gw.Properties.RequestRoutingRules = slices.DeleteFunc(gw.Properties.RequestRoutingRules, func(r *armnetwork.ApplicationGatewayRequestRoutingRule) bool {
			return r != nil && toValue(r.Name) == rule
		})
		return len(gw.Properties.RequestRoutingRules) != before, nil
	})
}

// BackendPoolExists implements provider.GatewayProvider.
func (c *Client) BackendPoolExists(ctx context.Context, pool string) (bool, error) {
	resp, err := c.gateways.Get(ctx, c.hubGroup, c.gateway, nil)
	if err != nil {
		return false, classify("get application gateway "+c.gateway, err)
	}
	if resp.Properties == nil {
		return false, nil
	}
	return slices.ContainsFunc(resp.Properties.BackendAddressPools, func(p *armnetwork.ApplicationGatewayBackendAddressPool) bool {
		return p != nil && toValue(p.Name) == pool
	}), nil
}
