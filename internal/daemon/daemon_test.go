package daemon_test

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stockpile/internal/api"
	"stockpile/internal/config"
	"stockpile/internal/daemon"
	"stockpile/internal/detect"
	"stockpile/internal/enrichment"
	"stockpile/internal/logging"
	"stockpile/internal/refresh"
	"stockpile/internal/testsupport"
)

const portalManifest = `"AppState"
{
	"appid"		"620"
	"name"		"Portal 2"
	"StateFlags"		"4"
	"installdir"		"Portal 2"
	"LastUpdated"		"1700000000"
	"buildid"		"9000"
}
`

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	logger := logging.NewNop()
	stores := testsupport.MustOpenStores(t, cfg)
	detectors, err := refresh.BuildDetectors(cfg, logger)
	if err != nil {
		t.Fatalf("BuildDetectors: %v", err)
	}
	enricher := enrichment.New(stores.Catalog, nil, enrichment.OptionsFromConfig(cfg), logger)
	refresher := refresh.New(detect.NewSet(logger, detectors...), stores.Catalog, stores.Installs, enricher, cfg.RefreshLockPath(), logger)

	d, err := daemon.New(daemon.Options{
		Config:    cfg,
		Catalog:   stores.Catalog,
		Installs:  stores.Installs,
		Refresher: refresher,
		Enricher:  enricher,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func startDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *api.Client) {
	t.Helper()
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d, api.NewClient(d.APIAddress(), cfg.Paths.APIToken)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() || d.APIAddress() == "" {
		t.Fatal("daemon should be running with a bound api")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}

	other := newDaemon(t, cfg)
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second instance should be locked out, got %v", err)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon still running after Stop")
	}
	if err := other.Start(ctx); err != nil {
		t.Fatalf("lock should be free after Stop: %v", err)
	}
	other.Stop()
}

func TestRefreshThroughAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDetectors("steam"))
	testsupport.WriteFile(t, filepath.Join(cfg.Detection.SteamRoot, "steamapps", "appmanifest_620.acf"), portalManifest)
	_, client := startDaemon(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Refresh(ctx, true)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if resp.Summary == nil || resp.Summary.Upserted != 1 || resp.Summary.Created != 1 {
		t.Fatalf("summary = %+v", resp.Summary)
	}

	items, err := client.Inventory(ctx)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Portal 2" || items[0].ExternalID != "620" || items[0].Origin != "steam" {
		t.Fatalf("inventory = %+v", items)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.LastRefresh == nil || status.LastRefresh.PassID != resp.Summary.PassID {
		t.Fatalf("status = %+v", status)
	}
	if !status.Enrichment.Enabled || !status.Enrichment.Running {
		t.Fatalf("enrichment status = %+v", status.Enrichment)
	}

	report, err := client.Diagnostics(ctx)
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	if report.Entries != 1 || report.Installations != 1 || len(report.Detectors) != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestAsyncRefreshIsQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startDaemon(t, cfg)
	resp, err := client.Refresh(context.Background(), false)
	if err != nil || !resp.Queued {
		t.Fatalf("Refresh = %+v, %v", resp, err)
	}
}

func TestEnrichRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startDaemon(t, cfg)
	ctx := context.Background()

	resp, err := client.Enrich(ctx, true)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !resp.Queued || resp.Trigger != "force" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestEnrichDisabledIsUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.Enabled = false
	d, client := startDaemon(t, cfg)

	_, err := client.Enrich(context.Background(), false)
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Fatalf("expected 503, got %v", err)
	}
	if d.Status().Enrichment.Running {
		t.Fatal("orchestrator must not start when enrichment is disabled")
	}
}

func TestAPITokenRequired(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "s3cret"
	d, client := startDaemon(t, cfg)
	ctx := context.Background()

	if _, err := client.Status(ctx); err != nil {
		t.Fatalf("authorized Status: %v", err)
	}
	anonymous := api.NewClient(d.APIAddress(), "")
	if _, err := anonymous.Status(ctx); err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected 401, got %v", err)
	}
	wrong := api.NewClient(d.APIAddress(), "guess")
	if _, err := wrong.Status(ctx); err == nil {
		t.Fatal("wrong token accepted")
	}
}

func TestAPIRejectsWrongMethod(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := startDaemon(t, cfg)

	resp, err := http.Get("http://" + d.APIAddress() + "/api/refresh")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := daemon.New(daemon.Options{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
