package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/go-logr/logr"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/provider"
)

// Client implements provider.Cloud against Azure Resource Manager.
type Client struct {
	log logr.Logger

	subscription  string
	location      string
	resourceGroup string
	hubGroup      string
	hubVNet       string
	gateway       string
	listener      string
	httpSettings  string

	vnets      *armnetwork.VirtualNetworksClient
	subnets    *armnetwork.SubnetsClient
	peerings   *armnetwork.VirtualNetworkPeeringsClient
	interfaces *armnetwork.InterfacesClient
	gateways   *armnetwork.ApplicationGatewaysClient
	vms        *armcompute.VirtualMachinesClient
	disks      *armcompute.DisksClient
}

var _ provider.Cloud = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	credential azcore.TokenCredential
	arm        *arm.ClientOptions
	log        logr.Logger
}

// WithCredential overrides the credential derived from the configuration.
func WithCredential(cred azcore.TokenCredential) ClientOption {
	return func(o *clientOptions) { o.credential = cred }
}

// WithARMOptions sets the ARM client options, e.g. a custom endpoint or
// transport for tests.
func WithARMOptions(opts *arm.ClientOptions) ClientOption {
	return func(o *clientOptions) { o.arm = opts }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) ClientOption {
	return func(o *clientOptions) { o.log = log }
}

// NewCredential returns a client secret credential when a secret is
// configured and the default credential chain otherwise.
func NewCredential(cfg config.AzureConfig) (azcore.TokenCredential, error) {
	if cfg.ClientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client secret credential: %w", err)
		}
		return cred, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: cfg.TenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create default credential: %w", err)
	}
	return cred, nil
}

// NewClient builds the ARM clients for cfg.
func NewClient(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	o := clientOptions{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.credential == nil {
		cred, err := NewCredential(cfg.Azure)
		if err != nil {
			return nil, err
		}
		o.credential = cred
	}

	sub := cfg.Azure.SubscriptionID
	c := &Client{
		log:           o.log.WithName("azure"),
		subscription:  sub,
		location:      cfg.Azure.Location,
		resourceGroup: cfg.Azure.ResourceGroup,
		hubGroup:      cfg.HubResourceGroup(),
		hubVNet:       cfg.Hub.VNetName,
		gateway:       cfg.Hub.ApplicationGateway,
		listener:      cfg.Hub.GatewayListener,
		httpSettings:  cfg.Hub.GatewayHTTPSettings,
	}

	var err error
	if c.vnets, err = armnetwork.NewVirtualNetworksClient(sub, o.credential, o.arm); err != nil {
		return nil, fmt.Errorf("failed to create virtual networks client: %w", err)
	}
	if c.subnets, err = armnetwork.NewSubnetsClient(sub, o.credential, o.arm); err != nil {
		return nil, fmt.Errorf("failed to create subnets client: %w", err)
	}
	if c.peerings, err = armnetwork.NewVirtualNetworkPeeringsClient(sub, o.credential, o.arm); err != nil {
		return nil, fmt.Errorf("failed to create peerings client: %w", err)
	}
	if c.interfaces, err = armnetwork.NewInterfacesClient(sub, o.credential, o.arm); err != nil {
		return nil, fmt.Errorf("failed to create interfaces client: %w", err)
	}
	if c.gateways, err = armnetwork.NewApplicationGatewaysClient(sub, o.credential, o.arm); err != nil {
		return nil, fmt.Errorf("failed to create application gateways client: %w", err)
	}
	if c.vms, err = armcompute.NewVirtualMachinesClient(sub, o.credential, o.arm); err != nil {
		return nil, fmt.Errorf("failed to create virtual machines client: %w", err)
	}
	if c.disks, err = armcompute.NewDisksClient(sub, o.credential, o.arm); err != nil {
		return nil, fmt.Errorf("failed to create disks client: %w", err)
	}
	return c, nil
}

// deleteOperation runs a begin-delete call to completion within timeout.
// A resource that is already gone counts as deleted.
type deleteOperation struct {
	Kind    string
	Name    string
	Timeout time.Duration
	// Begin starts the deletion and returns a function that waits for it.
	Begin func(ctx context.Context) (wait func(ctx context.Context) error, err error)
}

func (op deleteOperation) execute(ctx context.Context, log logr.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, op.Timeout)
	defer cancel()

	desc := fmt.Sprintf("delete %s %s", op.Kind, op.Name)
	log.V(1).Info("deleting resource", "kind", op.Kind, "name", op.Name)

	wait, err := op.Begin(ctx)
	if err == nil {
		err = wait(ctx)
	}
	if IsNotFound(err) {
		log.V(1).Info("resource already absent", "kind", op.Kind, "name", op.Name)
		return nil
	}
	return classifyWait(ctx, desc, op.Timeout, err)
}

func toValue[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
