// Package config loads and validates Winch configuration from TOML.
package config
