package providers

import (
	"context"
	"errors"
	"slices"

	"stockpile/internal/inventory"
)

// ErrUnsupported marks an id lookup the provider cannot perform for the
// given origin. Callers fall back to a name lookup.
var ErrUnsupported = errors.New("lookup not supported")

// ErrUnavailable is returned by providers that are not configured or whose
// backing tool is missing.
var ErrUnavailable = errors.New("provider unavailable")

// Result is the metadata a provider found for one product.
type Result struct {
	Title         string
	Description   string
	Genres        []string
	Developers    []string
	Publisher     string
	ReleaseDate   string
	CoverImageURL string
	// Confidence is 1 for exact id matches and the name similarity otherwise.
	Confidence float64
	// RawExtras carries provider specific values. "id" holds the provider's
	// own identifier and "rating" a score normalised to 0..1.
	RawExtras map[string]any
}

// Extra keys with a shared meaning across providers.
const (
	ExtraID       = "id"
	ExtraRating   = "rating"
	ExtraHomepage = "homepage"
)

// LookupContext carries what is known about an entry when searching by name.
type LookupContext struct {
	Origin     inventory.Origin
	ExternalID string
	Category   inventory.Category
	Publisher  string
	Homepage   string
}

// Provider looks up descriptive metadata for catalog entries.
type Provider interface {
	Name() string
	Kinds() []inventory.Kind
	IsAvailable() bool
	LookupByExternalID(ctx context.Context, origin inventory.Origin, id string) (*Result, error)
	LookupByName(ctx context.Context, name string, lc LookupContext) (*Result, error)
}

// Serves reports whether p handles entries of the given kind.
func Serves(p Provider, kind inventory.Kind) bool {
	return slices.Contains(p.Kinds(), kind)
}

// Explainer is implemented by providers that can say why they are unavailable.
type Explainer interface {
	UnavailableReason() string
}

// Status describes one provider for diagnostics.
type Status struct {
	Name      string   `json:"name"`
	Kinds     []string `json:"kinds"`
	Enabled   bool     `json:"enabled"`
	Available bool     `json:"available"`
	Reason    string   `json:"reason,omitempty"`
}

// StatusOf reports the current availability of an enabled provider.
func StatusOf(p Provider) Status {
	kinds := make([]string, 0, len(p.Kinds()))
	for _, kind := range p.Kinds() {
		kinds = append(kinds, string(kind))
	}
	status := Status{Name: p.Name(), Kinds: kinds, Enabled: true, Available: p.IsAvailable()}
	if !status.Available {
		status.Reason = "not available"
		if explainer, ok := p.(Explainer); ok {
			if reason := explainer.UnavailableReason(); reason != "" {
				status.Reason = reason
			}
		}
	}
	return status
}
