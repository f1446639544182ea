// Package providers defines the metadata provider contract and the plumbing
// shared by every implementation: rate limiting, a retrying HTTP client and
// an on-disk response cache.
//
// A provider answers lookups for one or more inventory kinds. Lookups return
// (nil, nil) when nothing matched; errors are reserved for failed calls.
// Implementations live in subpackages and are assembled by providerset.
package providers
