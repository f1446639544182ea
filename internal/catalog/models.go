package catalog

import (
	"maps"
	"slices"
	"time"

	"stockpile/internal/inventory"
)

// State is the enrichment lifecycle state of an entry.
type State string

const (
	StateUnenriched State = "unenriched"
	StateEnriching  State = "enriching"
	StateEnriched   State = "enriched"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
)

// States lists every state in lifecycle order.
var States = []State{StateUnenriched, StateEnriching, StateEnriched, StateFailed, StateSkipped}

// Entry is a persisted reference catalog record.
type Entry struct {
	ID         int64
	Name       string
	Origin     inventory.Origin
	ExternalID string
	Category   inventory.Category

	Description        string
	Genres             []string
	Developers         []string
	Publisher          string
	ReleaseDate        string
	CoverImageURL      string
	AdditionalMetadata map[string]any

	State               State
	EnrichmentSource    string
	LastEnrichedAt      *time.Time
	LastAttemptedAt     *time.Time
	LastEnrichmentError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasExternalID reports whether the origin supplied a platform identifier.
func (e *Entry) HasExternalID() bool {
	return e != nil && e.ExternalID != ""
}

// IsFresh reports whether the entry was enriched or skipped within window.
func (e *Entry) IsFresh(now time.Time, window time.Duration) bool {
	if e == nil || e.LastEnrichedAt == nil {
		return false
	}
	return now.Sub(*e.LastEnrichedAt) < window
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Genres = slices.Clone(e.Genres)
	c.Developers = slices.Clone(e.Developers)
	c.AdditionalMetadata = maps.Clone(e.AdditionalMetadata)
	if e.LastEnrichedAt != nil {
		t := *e.LastEnrichedAt
		c.LastEnrichedAt = &t
	}
	if e.LastAttemptedAt != nil {
		t := *e.LastAttemptedAt
		c.LastAttemptedAt = &t
	}
	return &c
}

// Stats aggregates catalog counts for diagnostics.
type Stats struct {
	Total      int
	ByState    map[State]int
	ByOrigin   map[inventory.Origin]int
	ByCategory map[inventory.Category]int
}
