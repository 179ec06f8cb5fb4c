package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Unset or
// unparsable variables leave the current value in place.
func (c *Config) ApplyEnv() {
	c.Cloud = parseString("HUBSPOKE_CLOUD", c.Cloud)

	c.Azure.SubscriptionID = parseString("AZURE_SUBSCRIPTION_ID", c.Azure.SubscriptionID)
	c.Azure.TenantID = parseString("AZURE_TENANT_ID", c.Azure.TenantID)
	c.Azure.ClientID = parseString("AZURE_CLIENT_ID", c.Azure.ClientID)
	c.Azure.ClientSecret = parseString("AZURE_CLIENT_SECRET", c.Azure.ClientSecret)
	c.Azure.ResourceGroup = parseString("AZURE_RESOURCE_GROUP", c.Azure.ResourceGroup)
	c.Azure.Location = parseString("AZURE_LOCATION", c.Azure.Location)

	c.Hub.VNetName = parseString("HUBSPOKE_HUB_VNET_NAME", c.Hub.VNetName)
	c.Hub.ResourceGroup = parseString("HUBSPOKE_HUB_RESOURCE_GROUP", c.Hub.ResourceGroup)
	c.Hub.VNetCIDR = parseString("HUBSPOKE_HUB_VNET_CIDR", c.Hub.VNetCIDR)
	c.Hub.ApplicationGateway = parseString("HUBSPOKE_APPLICATION_GATEWAY", c.Hub.ApplicationGateway)

	c.Spoke.AddressBase = parseString("HUBSPOKE_SPOKE_ADDRESS_BASE", c.Spoke.AddressBase)
	c.Spoke.VMSize = parseString("HUBSPOKE_VM_SIZE", c.Spoke.VMSize)
	c.Spoke.AdminUsername = parseString("HUBSPOKE_ADMIN_USERNAME", c.Spoke.AdminUsername)

	c.Deployment.MaxConcurrent = parseInt("HUBSPOKE_MAX_CONCURRENT_DEPLOYMENTS", c.Deployment.MaxConcurrent)
	c.Deployment.EnableRollback = parseBool("HUBSPOKE_ENABLE_ROLLBACK", c.Deployment.EnableRollback)
	c.Deployment.RollbackWorkers = parseInt("HUBSPOKE_ROLLBACK_WORKERS", c.Deployment.RollbackWorkers)

	c.Timeouts.applyEnv()

	c.Store.Backend = parseString("HUBSPOKE_STORE", c.Store.Backend)
	c.Store.Path = parseString("HUBSPOKE_STORE_PATH", c.Store.Path)
	c.Store.S3.Endpoint = parseString("HUBSPOKE_S3_ENDPOINT", c.Store.S3.Endpoint)
	c.Store.S3.Region = parseString("HUBSPOKE_S3_REGION", c.Store.S3.Region)
	c.Store.S3.Bucket = parseString("HUBSPOKE_S3_BUCKET", c.Store.S3.Bucket)
	c.Store.S3.AccessKey = parseString("HUBSPOKE_S3_ACCESS_KEY", c.Store.S3.AccessKey)
	c.Store.S3.SecretKey = parseString("HUBSPOKE_S3_SECRET_KEY", c.Store.S3.SecretKey)

	c.Server.Addr = parseString("HUBSPOKE_ADDR", c.Server.Addr)
	c.Events.NATSURL = parseString("HUBSPOKE_NATS_URL", c.Events.NATSURL)
	c.Logging.Level = parseString("HUBSPOKE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = parseString("HUBSPOKE_LOG_FORMAT", c.Logging.Format)
}

func parseString(envVar, defaultVal string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultVal
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}

func parseBool(envVar string, defaultVal bool) bool {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}

	return b
}
