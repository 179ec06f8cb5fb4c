// Package spoke holds the data model shared by every hubspoke component:
// the immutable [Configuration] a caller submits, the persisted
// [Deployment] record with its ordered [Step] list, the lifecycle state
// machine enforced by [Deployment.Transition], and the error taxonomy
// providers and the orchestrator classify failures into.
package spoke
