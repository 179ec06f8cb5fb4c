// Package naming provides consistent naming functions for spoke resources.
//
// Network resources are named after the spoke id ({prefix}-{id}), compute
// and gateway resources after the sanitized client name and spoke id
// ({client}-spoke{id}-{suffix}). Keeping names derivable from the spoke
// configuration is what lets teardown find resources without relying on
// recorded provisioning state.
package naming
