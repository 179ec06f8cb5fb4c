package config

import (
	"fmt"

	"github.com/imamik/hubspoke/internal/addressing"
	"github.com/imamik/hubspoke/internal/spoke"
)

// Cloud backends.
const (
	CloudAzure = "azure"
	CloudFake  = "fake"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
)

// Config holds the application configuration.
type Config struct {
	// Cloud selects the provider implementation: "azure" or "fake".
	Cloud string `yaml:"cloud"`

	Azure      AzureConfig      `yaml:"azure"`
	Hub        HubConfig        `yaml:"hub"`
	Spoke      SpokeConfig      `yaml:"spoke"`
	Deployment DeploymentConfig `yaml:"deployment"`
	Timeouts   Timeouts         `yaml:"timeouts"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Events     EventsConfig     `yaml:"events"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AzureConfig identifies the subscription and service principal.
type AzureConfig struct {
	SubscriptionID string `yaml:"subscription_id"`
	TenantID       string `yaml:"tenant_id"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	ResourceGroup  string `yaml:"resource_group"`
	Location       string `yaml:"location"`
}

// HubConfig describes the shared hub network and application gateway.
type HubConfig struct {
	VNetName      string `yaml:"vnet_name"`
	ResourceGroup string `yaml:"resource_group"`
	VNetCIDR      string `yaml:"vnet_cidr"`

	ApplicationGateway string `yaml:"application_gateway"`
	// GatewayListener and GatewayHTTPSettings are existing gateway
	// components new routing rules are bound to.
	GatewayListener     string `yaml:"gateway_listener"`
	GatewayHTTPSettings string `yaml:"gateway_http_settings"`
}

// SpokeConfig holds defaults applied to every spoke request.
type SpokeConfig struct {
	AddressBase   string      `yaml:"address_base"`
	VMSize        string      `yaml:"vm_size"`
	AdminUsername string      `yaml:"admin_username"`
	Image         spoke.Image `yaml:"image"`
}

// DeploymentConfig bounds workflow and teardown concurrency.
type DeploymentConfig struct {
	MaxConcurrent     int  `yaml:"max_concurrent"`
	EnableRollback    bool `yaml:"enable_rollback"`
	RollbackWorkers   int  `yaml:"rollback_workers"`
	RollbackQueueSize int  `yaml:"rollback_queue_size"`
}

// StoreConfig selects and configures the deployment store.
type StoreConfig struct {
	Backend string   `yaml:"backend"`
	Path    string   `yaml:"path"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the object store backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EventsConfig configures event publishing. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cloud: CloudAzure,
		Azure: AzureConfig{
			Location: "eastus",
		},
		Hub: HubConfig{
			VNetCIDR:            "10.0.0.0/16",
			GatewayListener:     "appGatewayHttpListener",
			GatewayHTTPSettings: "appGatewayBackendHttpSettings",
		},
		Spoke: SpokeConfig{
			AddressBase:   addressing.DefaultBase,
			VMSize:        spoke.DefaultVMSize,
			AdminUsername: spoke.DefaultAdminUsername,
			Image:         spoke.DefaultImage,
		},
		Deployment: DeploymentConfig{
			MaxConcurrent:     3,
			EnableRollback:    true,
			RollbackWorkers:   2,
			RollbackQueueSize: 64,
		},
		Timeouts: DefaultTimeouts(),
		Store: StoreConfig{
			Backend: StoreFile,
			Path:    "storage/deployments.json",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Events: EventsConfig{
			Subject: "hubspoke.deployments",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// SpokeDefaults returns the per-request defaults in the form spoke expects.
func (c *Config) SpokeDefaults() spoke.Defaults {
	return spoke.Defaults{
		VMSize:        c.Spoke.VMSize,
		AdminUsername: c.Spoke.AdminUsername,
		Image:         c.Spoke.Image,
	}
}

// Planner returns the address planner for the configured base.
func (c *Config) Planner() (*addressing.Planner, error) {
	p, err := addressing.NewPlanner(c.Spoke.AddressBase)
	if err != nil {
		return nil, fmt.Errorf("spoke.address_base: %w", err)
	}
	return p, nil
}

// HubResourceGroup is the resource group of the hub, defaulting to the
// spoke resource group.
func (c *Config) HubResourceGroup() string {
	if c.Hub.ResourceGroup != "" {
		return c.Hub.ResourceGroup
	}
	return c.Azure.ResourceGroup
}
