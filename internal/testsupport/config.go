package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"stockpile/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory. Every
// detector and network provider is disabled so tests never touch the host
// machine or the internet unless an option turns them back on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Detection.Detectors = nil
	cfgVal.Detection.SteamRoot = filepath.Join(base, "steam")
	cfgVal.Detection.EpicManifestsDir = filepath.Join(base, "epic")
	cfgVal.Detection.GOGDatabase = filepath.Join(base, "gog", "galaxy-2.0.db")
	cfgVal.Enrichment.IntervalMinutes = 0
	cfgVal.Providers.SteamStore.Enabled = false
	cfgVal.Providers.IGDB.Enabled = false
	cfgVal.Providers.Wikipedia.Enabled = false
	cfgVal.Providers.Homepage.Enabled = false
	cfgVal.Providers.Winget.Enabled = false
	cfgVal.Providers.Overrides.Path = filepath.Join(base, "overrides.yaml")
	cfgVal.Workflow.RefreshOnStart = false
	cfgVal.Workflow.RefreshIntervalMinutes = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithDetectors enables the named detectors in order.
func WithDetectors(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detection.Detectors = append([]string(nil), names...)
	}
}

// WithOverrides writes an overrides file with the given YAML body.
func WithOverrides(body string) ConfigOption {
	return func(b *configBuilder) {
		if err := os.WriteFile(b.cfg.Providers.Overrides.Path, []byte(body), 0o644); err != nil {
			b.t.Fatalf("write overrides: %v", err)
		}
	}
}

// WithStubbedBinary writes a shell script named name that prints output and
// prepends its directory to PATH.
func WithStubbedBinary(name, output string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\ncat <<'STUB'\n" + output + "\nSTUB\n")
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			b.t.Fatalf("write stub %s: %v", name, err)
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
