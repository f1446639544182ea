// Package inventory defines the transient candidate model shared by detectors,
// the merge engine and the refresh coordinator, together with the origin and
// category vocabulary the persisted stores use.
package inventory
