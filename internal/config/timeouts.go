package config

import (
	"time"
)

// Timeouts holds all configurable timeout values.
type Timeouts struct {
	VMReady          time.Duration `yaml:"vm_ready"`           // Upper bound for a new VM to report running
	PollInterval     time.Duration `yaml:"poll_interval"`      // Interval between readiness probes
	Peering          time.Duration `yaml:"peering"`            // Upper bound for both peerings to connect
	Delete           time.Duration `yaml:"delete"`             // Timeout for each delete operation
	NICRetryAttempts int           `yaml:"nic_retry_attempts"` // Attempts to delete a reserved NIC
	NICRetryDelay    time.Duration `yaml:"nic_retry_delay"`    // Fixed delay between NIC delete attempts
	Deployment       time.Duration `yaml:"deployment"`         // Overall bound for one forward workflow
}

// DefaultTimeouts returns the built-in timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		VMReady:          10 * time.Minute,
		PollInterval:     10 * time.Second,
		Peering:          5 * time.Minute,
		Delete:           10 * time.Minute,
		NICRetryAttempts: 5,
		NICRetryDelay:    60 * time.Second,
		Deployment:       30 * time.Minute,
	}
}

// applyEnv overrides timeouts from environment variables.
//
// Environment Variables:
//   - HUBSPOKE_TIMEOUT_VM_READY (default: 10m)
//   - HUBSPOKE_TIMEOUT_POLL_INTERVAL (default: 10s)
//   - HUBSPOKE_TIMEOUT_PEERING (default: 5m)
//   - HUBSPOKE_TIMEOUT_DELETE (default: 10m)
//   - HUBSPOKE_NIC_RETRY_ATTEMPTS (default: 5)
//   - HUBSPOKE_NIC_RETRY_DELAY (default: 60s)
//   - HUBSPOKE_DEPLOYMENT_TIMEOUT (default: 30m)
func (t *Timeouts) applyEnv() {
	t.VMReady = parseDuration("HUBSPOKE_TIMEOUT_VM_READY", t.VMReady)
	t.PollInterval = parseDuration("HUBSPOKE_TIMEOUT_POLL_INTERVAL", t.PollInterval)
	t.Peering = parseDuration("HUBSPOKE_TIMEOUT_PEERING", t.Peering)
	t.Delete = parseDuration("HUBSPOKE_TIMEOUT_DELETE", t.Delete)
	t.NICRetryAttempts = parseInt("HUBSPOKE_NIC_RETRY_ATTEMPTS", t.NICRetryAttempts)
	t.NICRetryDelay = parseDuration("HUBSPOKE_NIC_RETRY_DELAY", t.NICRetryDelay)
	t.Deployment = parseDuration("HUBSPOKE_DEPLOYMENT_TIMEOUT", t.Deployment)
}
