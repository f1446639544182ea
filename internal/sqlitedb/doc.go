// Package sqlitedb holds the SQLite plumbing shared by the catalog and
// installation stores and the GOG detector: opening databases with the
// standard pragmas, the single-version schema check, busy retries and error
// classification, plus small helpers for nullable columns.
package sqlitedb
