// Package detect defines the detector contract and runs an ordered set of
// detectors for one refresh pass.
//
// Detectors read platform artifacts (registry records, launcher manifests,
// launcher databases) and emit raw candidates. A detector that cannot read a
// record skips it and reports a SourceReadError through RecordErrors; a
// detector that fails outright is logged and the pass continues with the rest.
// After collection, generic registry candidates living under a specialized
// detector's install location are offered to PathClaimers so the specialized
// detector can take them over.
package detect
