// Package config loads, normalizes, and validates Stockpile configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// IGDB_CLIENT_ID. The Config type centralizes every knob the daemon and CLI
// need: store locations, detector sources, enrichment batch sizing and the
// per-provider settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors. Settings that are legal but
// leave a feature degraded (a provider enabled without credentials) are not
// validation errors; they are reported by Warnings for the diagnostics report.
package config
