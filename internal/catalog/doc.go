// Package catalog persists reference catalog entries: the shareable "what is
// this software" records keyed by (origin, external id) with a normalized-name
// fallback.
//
// Entries are created by find-or-create during refresh passes and updated by
// the enrichment orchestrator. They are never deleted. FindOrCreate is safe
// under concurrent callers: unique-index collisions are resolved by re-reading
// the winning row. Read methods degrade to empty results with a warning when
// the table is missing or the file is corrupt.
package catalog
