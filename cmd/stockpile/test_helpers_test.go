package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"stockpile/internal/config"
	"stockpile/internal/daemon"
	"stockpile/internal/testsupport"
)

const portalManifest = `"AppState"
{
	"appid"		"620"
	"name"		"Portal 2"
	"StateFlags"		"4"
	"installdir"		"Portal 2"
	"buildid"		"9000"
}
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("STOCKPILE_API_TOKEN", "")
	cfg := testsupport.NewConfig(t, opts...)
	env := &cliTestEnv{cfg: cfg, configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml")}
	env.writeConfig(t)
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T) {
	t.Helper()
	if e.cfg.Detection.Detectors == nil {
		e.cfg.Detection.Detectors = []string{}
	}
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func startTestDaemon(t *testing.T, rt *runtime) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(daemon.Options{
		Config:    rt.cfg,
		Catalog:   rt.catalog,
		Installs:  rt.installs,
		Refresher: rt.refresher,
		Enricher:  rt.enricher,
		Providers: rt.providers.Statuses,
		Logger:    rt.logger,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
