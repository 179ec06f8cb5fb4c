// Package config defines the process configuration of hubspoke.
//
// A [Config] is assembled once at startup: built-in defaults, then an
// optional YAML file, then environment overrides (HUBSPOKE_* and the
// standard AZURE_* credential variables), then [Config.Validate]. The
// result is passed by pointer into every constructor and never mutated
// afterwards.
package config
