package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	CacheDir string `toml:"cache_dir"`
	APIBind  string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on every API call.
	APIToken string `toml:"api_token"`
}

// Detection controls which installation sources are scanned.
type Detection struct {
	// Detectors lists enabled detectors in registration order. Registration
	// order breaks ties during deduplication, so launcher detectors come first.
	Detectors        []string `toml:"detectors"`
	SteamRoot        string   `toml:"steam_root"`
	EpicManifestsDir string   `toml:"epic_manifests_dir"`
	GOGDatabase      string   `toml:"gog_database"`
}

// Enrichment contains orchestrator sizing and acceptance settings.
type Enrichment struct {
	Enabled                bool    `toml:"enabled"`
	BackgroundBatchSize    int     `toml:"background_batch_size"`
	ForceBatchSize         int     `toml:"force_batch_size"`
	FreshnessDays          int     `toml:"freshness_days"`
	ConfidenceThreshold    float64 `toml:"confidence_threshold"`
	ProviderTimeoutSeconds int     `toml:"provider_timeout_seconds"`
	IntervalMinutes        int     `toml:"interval_minutes"`
	CacheTTLHours          int     `toml:"cache_ttl_hours"`
}

// SteamStore configures the Steam storefront provider.
type SteamStore struct {
	Enabled       bool   `toml:"enabled"`
	BaseURL       string `toml:"base_url"`
	Language      string `toml:"language"`
	CountryCode   string `toml:"country_code"`
	MinIntervalMS int    `toml:"min_interval_ms"`
}

// IGDB configures the IGDB provider. Credentials come from a Twitch
// developer application.
type IGDB struct {
	Enabled       bool   `toml:"enabled"`
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	BaseURL       string `toml:"base_url"`
	TokenURL      string `toml:"token_url"`
	MinIntervalMS int    `toml:"min_interval_ms"`
}

// Wikipedia configures the Wikipedia summary provider.
type Wikipedia struct {
	Enabled       bool   `toml:"enabled"`
	BaseURL       string `toml:"base_url"`
	MinIntervalMS int    `toml:"min_interval_ms"`
}

// Homepage configures the product homepage scraping provider.
type Homepage struct {
	Enabled       bool `toml:"enabled"`
	MinIntervalMS int  `toml:"min_interval_ms"`
}

// Winget configures the local winget provider.
type Winget struct {
	Enabled       bool   `toml:"enabled"`
	Binary        string `toml:"binary"`
	MinIntervalMS int    `toml:"min_interval_ms"`
}

// Overrides configures the user curated metadata file.
type Overrides struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Providers groups every metadata provider section.
type Providers struct {
	UserAgent  string     `toml:"user_agent"`
	SteamStore SteamStore `toml:"steam_store"`
	IGDB       IGDB       `toml:"igdb"`
	Wikipedia  Wikipedia  `toml:"wikipedia"`
	Homepage   Homepage   `toml:"homepage"`
	Winget     Winget     `toml:"winget"`
	Overrides  Overrides  `toml:"overrides"`
}

// Workflow contains configuration for daemon timing.
type Workflow struct {
	RefreshOnStart         bool `toml:"refresh_on_start"`
	RefreshIntervalMinutes int  `toml:"refresh_interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Stockpile.
//
// Configuration sections by subsystem:
//   - Paths: store, log and cache directories plus the API bind address
//   - Detection: enabled detectors and launcher artifact locations
//   - Enrichment: batch sizes, freshness window, confidence threshold
//   - Providers: per-provider endpoints, credentials and rate limits
//   - Workflow: daemon refresh timing
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Detection  Detection  `toml:"detection"`
	Enrichment Enrichment `toml:"enrichment"`
	Providers  Providers  `toml:"providers"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stockpile.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories. The cache
// directory is created on a best-effort basis; providers fall back to
// uncached requests when it is unusable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.CacheDir) != "" {
		_ = os.MkdirAll(c.Paths.CacheDir, 0o755)
	}
	return nil
}

// CatalogDBPath returns the catalog-scope store location.
func (c *Config) CatalogDBPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// InstallsDBPath returns the machine-scope store location.
func (c *Config) InstallsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "installs.db")
}

// RefreshLockPath returns the lock file guarding detection passes across processes.
func (c *Config) RefreshLockPath() string {
	return filepath.Join(c.Paths.DataDir, "refresh.lock")
}

// DaemonLockPath returns the single-instance daemon lock file.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "stockpiled.lock")
}

// ProviderCacheDir returns the directory used for cached provider responses.
func (c *Config) ProviderCacheDir() string {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.CacheDir, "providers")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "stockpile")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/stockpile"
	}
	return filepath.Join(home, ".cache", "stockpile")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
