// Package provisioning runs the forward workflow that builds a spoke.
//
// # Core Types
//
// Orchestrator is the caller-facing entry point: Create, Status, List,
// Delete, Purge and Recover. Create runs the steps returned by Phases in order
// through RunPhases, persisting the deployment record after every step
// transition and handing failed spokes to the rollback queue. Recover fails
// and rolls back workflows that stopped recording progress, such as those
// of a crashed process.
//
// Context carries the spoke configuration, the cloud provider, timeouts and
// the Observer for one run. State accumulates the identifiers produced by
// earlier steps; a step only reads what its predecessors wrote.
//
// Observer receives structured events. LogObserver writes them through
// logr and MultiObserver fans them out. Metrics are exported through the
// default Prometheus registry and steps are traced with OpenTelemetry.
package provisioning
