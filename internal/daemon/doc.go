// Package daemon coordinates the long-running Stockpile process.
//
// It wires the stores, the refresh coordinator and the enrichment
// orchestrator into a single lifecycle with flock-based locking to prevent
// multiple instances. A run group hosts the HTTP API and the periodic refresh
// loop; the orchestrator runs its own loop and is started and stopped with
// the daemon.
//
// Keep orchestration logic here: detection and enrichment live in their own
// packages while the daemon focuses on startup, shutdown, and triggers.
package daemon
