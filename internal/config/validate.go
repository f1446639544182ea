package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDetection() error {
	for _, name := range c.Detection.Detectors {
		if !slices.Contains(KnownDetectors, name) {
			return fmt.Errorf("detection.detectors: unknown detector %q (known: %s)", name, strings.Join(KnownDetectors, ", "))
		}
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	e := c.Enrichment
	if err := ensurePositiveMap(map[string]int{
		"enrichment.background_batch_size":    e.BackgroundBatchSize,
		"enrichment.force_batch_size":         e.ForceBatchSize,
		"enrichment.freshness_days":           e.FreshnessDays,
		"enrichment.provider_timeout_seconds": e.ProviderTimeoutSeconds,
	}); err != nil {
		return err
	}
	if e.ForceBatchSize < e.BackgroundBatchSize {
		return errors.New("enrichment.force_batch_size must be >= enrichment.background_batch_size")
	}
	if e.ConfidenceThreshold <= 0 || e.ConfidenceThreshold > 1 {
		return errors.New("enrichment.confidence_threshold must be within (0, 1]")
	}
	if e.IntervalMinutes < 0 {
		return errors.New("enrichment.interval_minutes must be >= 0")
	}
	if e.CacheTTLHours < 0 {
		return errors.New("enrichment.cache_ttl_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateProviders() error {
	p := c.Providers
	for key, value := range map[string]int{
		"providers.steam_store.min_interval_ms": p.SteamStore.MinIntervalMS,
		"providers.igdb.min_interval_ms":        p.IGDB.MinIntervalMS,
		"providers.wikipedia.min_interval_ms":   p.Wikipedia.MinIntervalMS,
		"providers.homepage.min_interval_ms":    p.Homepage.MinIntervalMS,
		"providers.winget.min_interval_ms":      p.Winget.MinIntervalMS,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RefreshIntervalMinutes < 0 {
		return errors.New("workflow.refresh_interval_minutes must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// Warnings reports settings that load fine but leave a feature degraded.
func (c *Config) Warnings() []string {
	var warnings []string
	if !c.Enrichment.Enabled {
		warnings = append(warnings, "enrichment.enabled is false; catalog entries will not be enriched")
	}
	if c.Providers.IGDB.Enabled && (c.Providers.IGDB.ClientID == "" || c.Providers.IGDB.ClientSecret == "") {
		warnings = append(warnings, "providers.igdb is enabled but client_id/client_secret are missing (set IGDB_CLIENT_ID and IGDB_CLIENT_SECRET); IGDB lookups are disabled")
	}
	if len(c.Detection.Detectors) == 0 {
		warnings = append(warnings, "detection.detectors is empty; refresh will find nothing and prune every installation")
	}
	if c.Enrichment.ConfidenceThreshold < 0.5 {
		warnings = append(warnings, fmt.Sprintf("enrichment.confidence_threshold %.2f is low; fuzzy matches may attach the wrong metadata", c.Enrichment.ConfidenceThreshold))
	}
	return warnings
}
