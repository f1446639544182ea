// Package installs persists machine-scoped installation facts, one row per
// detected install, linked to a reference catalog entry by id.
//
// The link is enforced here rather than by the database: the catalog lives in
// a separate file that is ATTACHed read-only style for joins and the catalog
// id check performed by Upsert. Rows not observed by the latest full detection
// pass are removed by PruneStale.
package installs
