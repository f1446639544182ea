// Package diagnostics assembles a read-only health report of the catalog,
// providers, detectors and configuration for the CLI and the daemon API.
package diagnostics

import (
	"fmt"
	"time"

	"stockpile/internal/catalog"
	"stockpile/internal/inventory"
	"stockpile/internal/providers"
)

// Report is the structured output of Build.
type Report struct {
	GeneratedAt    time.Time                  `json:"generated_at"`
	Entries        int                        `json:"entries"`
	Installations  int                        `json:"installations"`
	ByState        map[catalog.State]int      `json:"by_state"`
	ByOrigin       map[inventory.Origin]int   `json:"by_origin"`
	ByCategory     map[inventory.Category]int `json:"by_category"`
	Failed         []EntrySummary             `json:"failed,omitempty"`
	NeverAttempted []EntrySummary             `json:"never_attempted,omitempty"`
	Providers      []providers.Status         `json:"providers"`
	Detectors      []DetectorReport           `json:"detectors,omitempty"`
	Checks         []Check                    `json:"checks,omitempty"`
	Warnings       []string                   `json:"warnings,omitempty"`
	Errors         []string                   `json:"errors,omitempty"`
}

// EntrySummary captures the catalog fields an operator needs to act on a
// problem entry.
type EntrySummary struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	Origin          inventory.Origin   `json:"origin"`
	ExternalID      string             `json:"external_id,omitempty"`
	Category        inventory.Category `json:"category,omitempty"`
	State           catalog.State      `json:"state"`
	LastAttemptedAt *time.Time         `json:"last_attempted_at,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// DetectorReport is one detector's outcome in the most recent refresh.
type DetectorReport struct {
	Name       string           `json:"name"`
	Origin     inventory.Origin `json:"origin"`
	Available  bool             `json:"available"`
	Candidates int              `json:"candidates"`
	Skipped    int              `json:"skipped"`
	Claimed    int              `json:"claimed"`
	DurationMS int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
}

// Check is the outcome of a single environment check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Healthy reports whether nothing in the report needs attention.
func (r *Report) Healthy() bool {
	if len(r.Errors) > 0 || len(r.Failed) > 0 {
		return false
	}
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	for _, d := range r.Detectors {
		if d.Error != "" {
			return false
		}
	}
	return true
}

func (r *Report) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func summarize(entry *catalog.Entry) EntrySummary {
	return EntrySummary{
		ID:              entry.ID,
		Name:            entry.Name,
		Origin:          entry.Origin,
		ExternalID:      entry.ExternalID,
		Category:        entry.Category,
		State:           entry.State,
		LastAttemptedAt: entry.LastAttemptedAt,
		Error:           entry.LastEnrichmentError,
	}
}
