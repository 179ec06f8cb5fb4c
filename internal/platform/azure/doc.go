// Package azure implements the provider capabilities on Azure Resource
// Manager.
//
// Spoke resources live in the configured resource group. The hub VNet and
// the application gateway may live in a separate hub resource group. All
// long-running operations block until Azure reports a terminal state, and
// every returned error is classified into the spoke error kinds.
package azure
