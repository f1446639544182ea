// Package providerset builds the ordered provider list from configuration.
package providerset

import (
	"fmt"
	"log/slog"
	"time"

	"stockpile/internal/config"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/providers"
	"stockpile/internal/providers/homepage"
	"stockpile/internal/providers/igdb"
	"stockpile/internal/providers/overrides"
	"stockpile/internal/providers/steamstore"
	"stockpile/internal/providers/wikipedia"
	"stockpile/internal/providers/winget"
)

// Set is the configured provider chain plus the status of every known
// provider, disabled ones included.
type Set struct {
	Providers []providers.Provider
	disabled  []providers.Status
}

// Statuses reports availability of every provider for diagnostics.
func (s *Set) Statuses() []providers.Status {
	out := make([]providers.Status, 0, len(s.Providers)+len(s.disabled))
	for _, p := range s.Providers {
		out = append(out, providers.StatusOf(p))
	}
	return append(out, s.disabled...)
}

// Build constructs providers in priority order: overrides, game providers,
// then software providers. Each is wrapped in a rate limiter.
func Build(cfg *config.Config, logger *slog.Logger) (*Set, error) {
	logger = logging.NewComponentLogger(logger, "providers")
	cache, err := providers.NewResponseCache(cfg.ProviderCacheDir(), cfg.CacheTTL())
	if err != nil {
		logging.WarnWithContext(logger, "provider response cache disabled", "provider_cache_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.cache_dir permissions"),
			logging.String(logging.FieldImpact, "provider responses are fetched on every lookup"),
		)
		cache = nil
	}
	client := providers.NewHTTPClient(providers.HTTPOptions{
		UserAgent: cfg.Providers.UserAgent,
		Timeout:   cfg.ProviderTimeout(),
		Cache:     cache,
		Logger:    logger,
	})

	set := &Set{}
	p := cfg.Providers
	add := func(enabled bool, name string, kinds []inventory.Kind, minIntervalMS int, build func() (providers.Provider, error)) error {
		if !enabled {
			set.disabled = append(set.disabled, disabledStatus(name, kinds))
			return nil
		}
		provider, err := build()
		if err != nil {
			return fmt.Errorf("build %s provider: %w", name, err)
		}
		set.Providers = append(set.Providers, providers.NewLimited(provider, time.Duration(minIntervalMS)*time.Millisecond))
		return nil
	}

	steps := []func() error{
		func() error {
			return add(p.Overrides.Enabled, overrides.Name, []inventory.Kind{inventory.KindGame, inventory.KindSoftware}, 0,
				func() (providers.Provider, error) { return overrides.New(p.Overrides.Path), nil })
		},
		func() error {
			return add(p.SteamStore.Enabled, steamstore.Name, []inventory.Kind{inventory.KindGame}, p.SteamStore.MinIntervalMS,
				func() (providers.Provider, error) {
					return steamstore.New(client, steamstore.Config{
						BaseURL:     p.SteamStore.BaseURL,
						Language:    p.SteamStore.Language,
						CountryCode: p.SteamStore.CountryCode,
					})
				})
		},
		func() error {
			return add(p.IGDB.Enabled, igdb.Name, []inventory.Kind{inventory.KindGame}, p.IGDB.MinIntervalMS,
				func() (providers.Provider, error) {
					return igdb.New(client, igdb.Config{
						ClientID:     p.IGDB.ClientID,
						ClientSecret: p.IGDB.ClientSecret,
						BaseURL:      p.IGDB.BaseURL,
						TokenURL:     p.IGDB.TokenURL,
					})
				})
		},
		func() error {
			return add(p.Wikipedia.Enabled, wikipedia.Name, []inventory.Kind{inventory.KindSoftware}, p.Wikipedia.MinIntervalMS,
				func() (providers.Provider, error) { return wikipedia.New(client, p.Wikipedia.BaseURL) })
		},
		func() error {
			return add(p.Homepage.Enabled, homepage.Name, []inventory.Kind{inventory.KindSoftware}, p.Homepage.MinIntervalMS,
				func() (providers.Provider, error) { return homepage.New(client) })
		},
		func() error {
			return add(p.Winget.Enabled, winget.Name, []inventory.Kind{inventory.KindSoftware}, p.Winget.MinIntervalMS,
				func() (providers.Provider, error) { return winget.New(p.Winget.Binary), nil })
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func disabledStatus(name string, kinds []inventory.Kind) providers.Status {
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}
	return providers.Status{Name: name, Kinds: names, Reason: "disabled in config"}
}
