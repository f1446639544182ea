// Package enrichment attaches descriptive metadata to catalog entries.
//
// The Orchestrator owns one loop goroutine. Work arrives over a buffered
// channel: ids seeded by a refresh pass (Enqueue), explicit background or
// force batches (RequestBatch) and a periodic background tick. RunBatch runs
// the same batch logic synchronously for the CLI.
//
// Per entry the state moves unenriched -> enriching -> enriched, failed or
// skipped. Providers are tried in order among those serving the entry's
// kind; the first result at or above the confidence threshold wins. Skipped
// entries (component categories, or kinds nothing serves) record a
// LastEnrichedAt with no source so they stay quiet for the freshness window.
// Failed entries keep LastEnrichedAt empty and are retried by later batches.
package enrichment
