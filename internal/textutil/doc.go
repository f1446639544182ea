// Package textutil provides product-name normalization and similarity scoring.
//
// NormalizeName produces the dedupe key shared by the merge engine and the
// catalog: case-folded, compatibility-decomposed, diacritics stripped, with
// trademark symbols and punctuation collapsed to single spaces.
//
// Similarity compares two names after normalization using normalized edit
// distance, yielding a score in [0, 1] that providers report as confidence.
package textutil
