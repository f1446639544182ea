// Package logging assembles structured slog loggers and formatting helpers used
// across Stockpile services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so detection passes and enrichment
// batches automatically tag log lines with their correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system. Warnings should carry
// event_type, error_hint and impact (see WarnWithContext).
package logging
