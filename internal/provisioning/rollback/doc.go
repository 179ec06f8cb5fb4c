// Package rollback tears down the provider resources of a failed or deleted
// spoke.
//
// Teardown runs in reverse dependency order: gateway entries, the virtual
// machine and its OS disk, the NIC, the hub-side peering and finally the
// spoke VNet. Every step is attempted, its outcome is persisted on the
// deployment record, and the record ends as rolled_back or rollback_failed.
//
// The Orchestrator never runs teardown itself. It hands spoke ids to a
// Queue, whose workers call Engine.Rollback.
package rollback
