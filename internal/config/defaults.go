package config

import "time"

const (
	defaultConfigPath              = "~/.config/stockpile/config.toml"
	defaultDataDir                 = "~/.local/share/stockpile"
	defaultLogDir                  = "~/.local/share/stockpile/logs"
	defaultAPIBind                 = "127.0.0.1:7491"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultBackgroundBatchSize     = 25
	defaultForceBatchSize          = 250
	defaultFreshnessDays           = 30
	defaultConfidenceThreshold     = 0.85
	defaultProviderTimeoutSeconds  = 15
	defaultEnrichmentInterval      = 60
	defaultCacheTTLHours           = 24 * 7
	defaultRefreshIntervalMinutes  = 30
	defaultUserAgent               = "Stockpile/dev (+https://github.com/stockpile-app/stockpile)"
	defaultSteamStoreBaseURL       = "https://store.steampowered.com"
	defaultSteamStoreLanguage      = "english"
	defaultSteamStoreCountry       = "US"
	defaultSteamStoreMinIntervalMS = 1500
	defaultIGDBBaseURL             = "https://api.igdb.com/v4"
	defaultIGDBTokenURL            = "https://id.twitch.tv/oauth2/token"
	defaultIGDBMinIntervalMS       = 260
	defaultWikipediaBaseURL        = "https://en.wikipedia.org"
	defaultWikipediaMinIntervalMS  = 500
	defaultHomepageMinIntervalMS   = 2000
	defaultWingetBinary            = "winget"
	defaultWingetMinIntervalMS     = 250
	defaultOverridesPath           = "~/.config/stockpile/overrides.yaml"
)

// KnownDetectors lists every detector name the refresh pipeline can build.
var KnownDetectors = []string{"steam", "epic", "gog", "registry"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir(),
			APIBind:  defaultAPIBind,
		},
		Detection: Detection{
			Detectors: append([]string(nil), KnownDetectors...),
		},
		Enrichment: Enrichment{
			Enabled:                true,
			BackgroundBatchSize:    defaultBackgroundBatchSize,
			ForceBatchSize:         defaultForceBatchSize,
			FreshnessDays:          defaultFreshnessDays,
			ConfidenceThreshold:    defaultConfidenceThreshold,
			ProviderTimeoutSeconds: defaultProviderTimeoutSeconds,
			IntervalMinutes:        defaultEnrichmentInterval,
			CacheTTLHours:          defaultCacheTTLHours,
		},
		Providers: Providers{
			UserAgent: defaultUserAgent,
			SteamStore: SteamStore{
				Enabled:       true,
				BaseURL:       defaultSteamStoreBaseURL,
				Language:      defaultSteamStoreLanguage,
				CountryCode:   defaultSteamStoreCountry,
				MinIntervalMS: defaultSteamStoreMinIntervalMS,
			},
			IGDB: IGDB{
				Enabled:       true,
				BaseURL:       defaultIGDBBaseURL,
				TokenURL:      defaultIGDBTokenURL,
				MinIntervalMS: defaultIGDBMinIntervalMS,
			},
			Wikipedia: Wikipedia{
				Enabled:       true,
				BaseURL:       defaultWikipediaBaseURL,
				MinIntervalMS: defaultWikipediaMinIntervalMS,
			},
			Homepage: Homepage{
				Enabled:       true,
				MinIntervalMS: defaultHomepageMinIntervalMS,
			},
			Winget: Winget{
				Enabled:       true,
				Binary:        defaultWingetBinary,
				MinIntervalMS: defaultWingetMinIntervalMS,
			},
			Overrides: Overrides{
				Enabled: true,
				Path:    defaultOverridesPath,
			},
		},
		Workflow: Workflow{
			RefreshOnStart:         true,
			RefreshIntervalMinutes: defaultRefreshIntervalMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// FreshnessWindow returns the maximum age of a successful or skipped
// enrichment before the entry becomes eligible again.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Enrichment.FreshnessDays) * 24 * time.Hour
}

// ProviderTimeout returns the per-call provider deadline.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Enrichment.ProviderTimeoutSeconds) * time.Second
}

// CacheTTL returns how long cached provider responses stay valid.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Enrichment.CacheTTLHours) * time.Hour
}
