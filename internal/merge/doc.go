// Package merge collapses detections that describe the same product into one
// canonical candidate per normalized name.
//
// Within a group the survivor is chosen by: specialized detector over the
// generic registry scan, then non-empty category over empty, then first seen.
// Losers backfill fields the survivor lacks so origin-specific extras survive
// the merge. The result is deterministic and Merge(Merge(x)) == Merge(x).
package merge
