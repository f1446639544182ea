package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"stockpile/internal/inventory"
)

// Limited spaces calls to the wrapped provider by at least a minimum
// interval. Availability checks are not limited.
type Limited struct {
	Provider
	limiter *rate.Limiter
}

// NewLimited wraps p. A non-positive interval disables limiting.
func NewLimited(p Provider, minInterval time.Duration) *Limited {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limited{Provider: p, limiter: rate.NewLimiter(limit, 1)}
}

// Unwrap returns the wrapped provider.
func (l *Limited) Unwrap() Provider { return l.Provider }

func (l *Limited) LookupByExternalID(ctx context.Context, origin inventory.Origin, id string) (*Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Provider.LookupByExternalID(ctx, origin, id)
}

func (l *Limited) LookupByName(ctx context.Context, name string, lc LookupContext) (*Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Provider.LookupByName(ctx, name, lc)
}

// UnavailableReason forwards to the wrapped provider when it can explain itself.
func (l *Limited) UnavailableReason() string {
	if explainer, ok := l.Provider.(Explainer); ok {
		return explainer.UnavailableReason()
	}
	return ""
}
