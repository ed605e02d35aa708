// Package config loads, validates, and normalizes the TOML configuration
// shared by the shipyard CLI and the signerd daemon.
package config
