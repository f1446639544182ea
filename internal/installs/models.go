package installs

import (
	"maps"
	"strings"
	"time"

	"stockpile/internal/catalog"
	"stockpile/internal/inventory"
)

// Facts are the machine-specific details recorded for one install.
type Facts struct {
	Origin         inventory.Origin
	InstallPath    string
	ExecutablePath string
	IconPath       string
	Version        string
	InstallTime    time.Time
	Attributes     map[string]string
}

// FactsFromCandidate extracts installation facts from a merged candidate.
func FactsFromCandidate(c inventory.Candidate) Facts {
	return Facts{
		Origin:         c.Origin,
		InstallPath:    strings.TrimSpace(c.InstallPath),
		ExecutablePath: strings.TrimSpace(c.ExecutablePath),
		IconPath:       strings.TrimSpace(c.IconHint),
		Version:        strings.TrimSpace(c.Version),
		InstallTime:    c.InstallTime,
		Attributes:     maps.Clone(c.Attributes),
	}
}

// Installation is a persisted install row.
type Installation struct {
	ID             int64
	CatalogID      int64
	Origin         inventory.Origin
	InstallPath    string
	ExecutablePath string
	IconPath       string
	Version        string
	InstallTime    time.Time
	Attributes     map[string]string
	PassID         string
	LastDetectedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Joined pairs an installation with its catalog entry.
type Joined struct {
	Installation
	Entry *catalog.Entry
}
