// Package api defines the daemon's HTTP wire types, the converters from
// internal models, and a small client the CLI uses to reach a running daemon.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Catalog metadata is passed through as a JSON object so provider specific
// extras reach consumers without schema changes.
package api
