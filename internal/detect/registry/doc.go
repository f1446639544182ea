// Package registry scans the operating system's installed-program records.
//
// It is the generic detector: every installed product with an uninstall entry
// shows up here, so specialized launcher detectors outrank it in the merge and
// may claim its candidates by install path. On Windows the uninstall keys under
// HKLM (native and WOW6432Node views) and HKCU are read through
// golang.org/x/sys/windows/registry; other platforms report unavailable.
package registry
