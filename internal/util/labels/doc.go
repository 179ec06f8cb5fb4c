// Package labels provides consistent tagging for spoke resources.
//
// Every resource created for a spoke carries its spoke id, client name and
// the managing system, so stray resources can be traced back to a spoke
// when a deployment record is lost.
package labels
