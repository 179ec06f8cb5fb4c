package config

import (
	"fmt"

	"github.com/imamik/hubspoke/internal/addressing"
)

// Validate checks the configuration for common errors and returns a detailed error if validation fails.
func (c *Config) Validate() error {
	switch c.Cloud {
	case CloudAzure:
		if err := c.validateAzure(); err != nil {
			return fmt.Errorf("azure validation failed: %w", err)
		}
	case CloudFake:
	default:
		return fmt.Errorf("unknown cloud %q (want %s or %s)", c.Cloud, CloudAzure, CloudFake)
	}

	if err := c.validateAddressing(); err != nil {
		return fmt.Errorf("network validation failed: %w", err)
	}

	if err := c.validateDeployment(); err != nil {
		return fmt.Errorf("deployment validation failed: %w", err)
	}

	if err := c.validateStore(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		return fmt.Errorf("events.subject is required when events.nats_url is set")
	}
	return nil
}

func (c *Config) validateAzure() error {
	if c.Azure.SubscriptionID == "" {
		return fmt.Errorf("subscription_id is required")
	}
	if c.Azure.ResourceGroup == "" {
		return fmt.Errorf("resource_group is required")
	}
	if c.Azure.Location == "" {
		return fmt.Errorf("location is required")
	}
	if c.Hub.VNetName == "" {
		return fmt.Errorf("hub.vnet_name is required")
	}
	if c.Hub.ApplicationGateway == "" {
		return fmt.Errorf("hub.application_gateway is required")
	}
	return nil
}

func (c *Config) validateAddressing() error {
	planner, err := c.Planner()
	if err != nil {
		return err
	}
	if c.Hub.VNetCIDR == "" {
		return fmt.Errorf("hub.vnet_cidr is required")
	}
	spokeRange := planner.Base() + ".0.0/16"
	overlap, err := addressing.Overlaps(c.Hub.VNetCIDR, spokeRange)
	if err != nil {
		return fmt.Errorf("hub.vnet_cidr: %w", err)
	}
	if overlap {
		return fmt.Errorf("hub.vnet_cidr %s overlaps the spoke range %s", c.Hub.VNetCIDR, spokeRange)
	}
	return nil
}

func (c *Config) validateDeployment() error {
	d := c.Deployment
	if d.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", d.MaxConcurrent)
	}
	if d.RollbackWorkers < 1 {
		return fmt.Errorf("rollback_workers must be at least 1, got %d", d.RollbackWorkers)
	}
	if d.RollbackQueueSize < 1 {
		return fmt.Errorf("rollback_queue_size must be at least 1, got %d", d.RollbackQueueSize)
	}

	t := c.Timeouts
	if t.PollInterval <= 0 || t.VMReady <= 0 || t.Peering <= 0 || t.Delete <= 0 || t.Deployment <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if t.NICRetryAttempts < 1 {
		return fmt.Errorf("nic_retry_attempts must be at least 1, got %d", t.NICRetryAttempts)
	}
	if t.NICRetryDelay < 0 {
		return fmt.Errorf("nic_retry_delay must not be negative")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile, StoreBadger, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("path is required for the %s backend", c.Store.Backend)
		}
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Store.Backend)
	}
	return nil
}
