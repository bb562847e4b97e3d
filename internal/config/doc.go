// Package config loads the process configuration.
//
// Sources are applied in a fixed order: built-in defaults, then a config
// file (HCL or YAML, chosen by extension), then HOTSYNC_* environment
// variables. Command-line flags are applied by the caller afterwards, and
// Validate runs last.
package config
