// Package config loads, normalizes, and validates the TOML configuration that
// drives the vid2doc daemon. Secrets may come from the environment (optionally
// seeded from a .env file) and override values read from disk.
package config
