// Package config defines the supervisor settings and provides helpers to
// load, validate and save them in YAML format.
//
// Validate fills defaults for every optional key and reports missing or
// invalid required values as deploy.ConfigFault before any cycle runs.
package config
