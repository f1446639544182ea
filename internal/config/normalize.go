package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDetection(); err != nil {
		return err
	}
	if err := c.normalizeProviders(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.CacheDir, err = expandPath(strings.TrimSpace(c.Paths.CacheDir)); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("STOCKPILE_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeDetection() error {
	names := make([]string, 0, len(c.Detection.Detectors))
	seen := make(map[string]struct{}, len(c.Detection.Detectors))
	for _, name := range c.Detection.Detectors {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		names = append(names, normalized)
	}
	c.Detection.Detectors = names

	var err error
	if c.Detection.SteamRoot, err = expandPath(strings.TrimSpace(c.Detection.SteamRoot)); err != nil {
		return fmt.Errorf("detection.steam_root: %w", err)
	}
	if c.Detection.EpicManifestsDir, err = expandPath(strings.TrimSpace(c.Detection.EpicManifestsDir)); err != nil {
		return fmt.Errorf("detection.epic_manifests_dir: %w", err)
	}
	if c.Detection.GOGDatabase, err = expandPath(strings.TrimSpace(c.Detection.GOGDatabase)); err != nil {
		return fmt.Errorf("detection.gog_database: %w", err)
	}
	return nil
}

func (c *Config) normalizeProviders() error {
	p := &c.Providers
	p.UserAgent = strings.TrimSpace(p.UserAgent)
	if p.UserAgent == "" {
		p.UserAgent = defaultUserAgent
	}

	p.SteamStore.BaseURL = trimURL(p.SteamStore.BaseURL, defaultSteamStoreBaseURL)
	p.SteamStore.Language = strings.TrimSpace(p.SteamStore.Language)
	if p.SteamStore.Language == "" {
		p.SteamStore.Language = defaultSteamStoreLanguage
	}
	p.SteamStore.CountryCode = strings.ToUpper(strings.TrimSpace(p.SteamStore.CountryCode))
	if p.SteamStore.CountryCode == "" {
		p.SteamStore.CountryCode = defaultSteamStoreCountry
	}

	if p.IGDB.ClientID == "" {
		if value, ok := os.LookupEnv("IGDB_CLIENT_ID"); ok {
			p.IGDB.ClientID = value
		}
	}
	if p.IGDB.ClientSecret == "" {
		if value, ok := os.LookupEnv("IGDB_CLIENT_SECRET"); ok {
			p.IGDB.ClientSecret = value
		}
	}
	p.IGDB.ClientID = strings.TrimSpace(p.IGDB.ClientID)
	p.IGDB.ClientSecret = strings.TrimSpace(p.IGDB.ClientSecret)
	p.IGDB.BaseURL = trimURL(p.IGDB.BaseURL, defaultIGDBBaseURL)
	p.IGDB.TokenURL = trimURL(p.IGDB.TokenURL, defaultIGDBTokenURL)

	p.Wikipedia.BaseURL = trimURL(p.Wikipedia.BaseURL, defaultWikipediaBaseURL)

	p.Winget.Binary = strings.TrimSpace(p.Winget.Binary)
	if p.Winget.Binary == "" {
		p.Winget.Binary = defaultWingetBinary
	}

	if strings.TrimSpace(p.Overrides.Path) == "" {
		p.Overrides.Path = defaultOverridesPath
	}
	var err error
	if p.Overrides.Path, err = expandPath(strings.TrimSpace(p.Overrides.Path)); err != nil {
		return fmt.Errorf("providers.overrides.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}
