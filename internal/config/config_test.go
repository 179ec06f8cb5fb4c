package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAzure() *Config {
	cfg := Default()
	cfg.Azure.SubscriptionID = "sub"
	cfg.Azure.ResourceGroup = "rg"
	cfg.Hub.VNetName = "hub-vnet"
	cfg.Hub.ApplicationGateway = "appgw"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, CloudAzure, cfg.Cloud)
	assert.Equal(t, "10.11", cfg.Spoke.AddressBase)
	assert.Equal(t, "10.0.0.0/16", cfg.Hub.VNetCIDR)
	assert.Equal(t, 3, cfg.Deployment.MaxConcurrent)
	assert.True(t, cfg.Deployment.EnableRollback)
	assert.Equal(t, 30*time.Minute, cfg.Timeouts.Deployment)
	assert.Equal(t, 5, cfg.Timeouts.NICRetryAttempts)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.NICRetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.Timeouts.VMReady)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.PollInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid azure", mutate: func(*Config) {}},
		{name: "fake cloud needs no credentials", mutate: func(c *Config) {
			c.Cloud = CloudFake
			c.Azure = AzureConfig{}
			c.Hub.VNetName = ""
		}},
		{name: "unknown cloud", mutate: func(c *Config) { c.Cloud = "gcp" }, wantErr: "unknown cloud"},
		{name: "missing subscription", mutate: func(c *Config) { c.Azure.SubscriptionID = "" }, wantErr: "subscription_id"},
		{name: "missing gateway", mutate: func(c *Config) { c.Hub.ApplicationGateway = "" }, wantErr: "application_gateway"},
		{name: "bad base", mutate: func(c *Config) { c.Spoke.AddressBase = "10" }, wantErr: "address_base"},
		{name: "hub overlaps spokes", mutate: func(c *Config) { c.Hub.VNetCIDR = "10.0.0.0/8" }, wantErr: "overlaps"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Deployment.MaxConcurrent = 0 }, wantErr: "max_concurrent"},
		{name: "zero nic attempts", mutate: func(c *Config) { c.Timeouts.NICRetryAttempts = 0 }, wantErr: "nic_retry_attempts"},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeouts.Peering = -time.Second }, wantErr: "positive"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "etcd" }, wantErr: "unknown backend"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Store.Backend = StoreS3 }, wantErr: "s3.bucket"},
		{name: "badger without path", mutate: func(c *Config) {
			c.Store.Backend = StoreBadger
			c.Store.Path = ""
		}, wantErr: "path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAzure()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubspoke.yaml")
	content := `
cloud: fake
hub:
  vnet_cidr: 10.1.0.0/16
spoke:
  address_base: "10.20"
  vm_size: Standard_D2s_v3
deployment:
  max_concurrent: 5
timeouts:
  vm_ready: 2m
  nic_retry_delay: 1s
store:
  backend: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CloudFake, cfg.Cloud)
	assert.Equal(t, "10.1.0.0/16", cfg.Hub.VNetCIDR)
	assert.Equal(t, "10.20", cfg.Spoke.AddressBase)
	assert.Equal(t, "Standard_D2s_v3", cfg.Spoke.VMSize)
	assert.Equal(t, 5, cfg.Deployment.MaxConcurrent)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.VMReady)
	assert.Equal(t, time.Second, cfg.Timeouts.NICRetryDelay)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.Peering)
	assert.True(t, cfg.Deployment.EnableRollback)
	assert.Equal(t, "Canonical", cfg.Spoke.Image.Publisher)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cloud: [unclosed"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to unmarshal yaml")

	t.Setenv("HUBSPOKE_CLOUD", "azure")
	_, err = Load("")
	assert.ErrorContains(t, err, "configuration validation failed")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("HUBSPOKE_CLOUD", "fake")
	t.Setenv("AZURE_SUBSCRIPTION_ID", "sub-1")
	t.Setenv("AZURE_LOCATION", "westeurope")
	t.Setenv("HUBSPOKE_HUB_VNET_NAME", "hub")
	t.Setenv("HUBSPOKE_MAX_CONCURRENT_DEPLOYMENTS", "7")
	t.Setenv("HUBSPOKE_ENABLE_ROLLBACK", "false")
	t.Setenv("HUBSPOKE_TIMEOUT_VM_READY", "90s")
	t.Setenv("HUBSPOKE_NIC_RETRY_ATTEMPTS", "not-a-number")
	t.Setenv("HUBSPOKE_STORE", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, CloudFake, cfg.Cloud)
	assert.Equal(t, "sub-1", cfg.Azure.SubscriptionID)
	assert.Equal(t, "westeurope", cfg.Azure.Location)
	assert.Equal(t, "hub", cfg.Hub.VNetName)
	assert.Equal(t, 7, cfg.Deployment.MaxConcurrent)
	assert.False(t, cfg.Deployment.EnableRollback)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.VMReady)
	// Invalid values fall back to the current value.
	assert.Equal(t, 5, cfg.Timeouts.NICRetryAttempts)
}

func TestHelpers(t *testing.T) {
	cfg := validAzure()

	d := cfg.SpokeDefaults()
	assert.Equal(t, cfg.Spoke.VMSize, d.VMSize)
	assert.Equal(t, cfg.Spoke.Image, d.Image)

	p, err := cfg.Planner()
	require.NoError(t, err)
	assert.Equal(t, "10.11", p.Base())

	assert.Equal(t, "rg", cfg.HubResourceGroup())
	cfg.Hub.ResourceGroup = "hub-rg"
	assert.Equal(t, "hub-rg", cfg.HubResourceGroup())
}
