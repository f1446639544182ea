// Package gog detects games installed through GOG Galaxy 2.0.
//
// Galaxy keeps its state in a SQLite database (galaxy-2.0.db). The detector
// opens it read-only, lists InstalledBaseProducts and takes titles from
// LimitedDetails. The GOG product id is the candidate's external id.
package gog
