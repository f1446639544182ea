// Package main hosts the stockpile CLI entrypoint and command graph.
//
// The Cobra command tree runs detection passes and enrichment batches
// in-process, renders the inventory and diagnostics, scaffolds configuration,
// and hosts the daemon in the foreground. Commands that can be served by a
// running daemon talk to it over the HTTP API and fall back to local
// execution when nothing answers.
//
// Keep this package lean: new behaviour belongs in the internal packages and
// is surfaced here through dedicated commands or flags.
package main
