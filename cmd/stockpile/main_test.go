package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"stockpile/internal/api"
	"stockpile/internal/diagnostics"
	"stockpile/internal/logging"
	"stockpile/internal/testsupport"
)

func TestConfigInitValidateShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "stockpile", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("config init should refuse to overwrite without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "detection.detectors is empty")

	env.cfg.Paths.APIToken = "hunter2"
	env.writeConfig(t)
	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[paths]")
	requireContains(t, out, "<redacted>")
}

func TestLocalRefreshListAndDiagnostics(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithDetectors("steam"))
	testsupport.WriteFile(t, filepath.Join(env.cfg.Detection.SteamRoot, "steamapps", "appmanifest_620.acf"), portalManifest)

	out, _, err := runCLI(t, []string{"refresh", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	var refreshed refreshOutput
	if err := json.Unmarshal([]byte(out), &refreshed); err != nil {
		t.Fatalf("decode refresh output: %v\n%s", err, out)
	}
	if refreshed.Source != "local" || refreshed.Refresh == nil || refreshed.Refresh.Upserted != 1 || refreshed.Refresh.Created != 1 {
		t.Fatalf("refresh output = %+v", refreshed)
	}

	out, _, err = runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "Portal 2")
	requireContains(t, out, "1 installations")

	out, _, err = runCLI(t, []string{"list", "--json", "--origin", "epic"}, env.configPath)
	if err != nil {
		t.Fatalf("list --origin: %v", err)
	}
	var listed api.InventoryResponse
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(listed.Items) != 0 {
		t.Fatalf("origin filter returned %+v", listed.Items)
	}

	out, _, err = runCLI(t, []string{"enrich", "--local", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	var batch api.BatchSummary
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("decode enrich output: %v", err)
	}
	if batch.Trigger != "background" || batch.Selected != 1 || batch.Enriched != 0 {
		t.Fatalf("batch = %+v", batch)
	}

	out, _, err = runCLI(t, []string{"diagnostics", "--json", "--local"}, env.configPath)
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	var report diagnostics.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if report.Entries != 1 || report.Installations != 1 || len(report.Failed) != 1 {
		t.Fatalf("report = %+v", report)
	}

	out, _, err = runCLI(t, []string{"diagnostics"}, env.configPath)
	if err != nil {
		t.Fatalf("diagnostics table: %v", err)
	}
	requireContains(t, out, "Catalog entries: 1")
	requireContains(t, out, "Failed entries (1)")
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestCommandsUseRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	rt, err := buildRuntime(env.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	t.Cleanup(rt.Close)
	d := startTestDaemon(t, rt)

	env.cfg.Paths.APIBind = d.APIAddress()
	env.writeConfig(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon:      running")
	requireContains(t, out, "Enrichment:  running")

	out, _, err = runCLI(t, []string{"enrich", "--force"}, env.configPath)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	requireContains(t, out, "Queued force enrichment batch on the daemon")

	out, _, err = runCLI(t, []string{"refresh", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	var refreshed refreshOutput
	if err := json.Unmarshal([]byte(out), &refreshed); err != nil {
		t.Fatalf("decode refresh output: %v", err)
	}
	if refreshed.Source != "daemon" || refreshed.Refresh == nil {
		t.Fatalf("refresh output = %+v", refreshed)
	}
	if _, ran := rt.refresher.LastSummary(); !ran {
		t.Fatal("refresh should have run inside the daemon")
	}
}

func TestFilterItems(t *testing.T) {
	items := []api.InventoryItem{
		{Name: "Portal 2", Origin: "steam", EnrichmentState: "enriched"},
		{Name: "Alan Wake", Origin: "epic", EnrichmentState: "failed"},
		{Name: "7-Zip", Origin: "registry", EnrichmentState: "enriched"},
	}
	if got := filterItems(items, "", ""); len(got) != 3 {
		t.Fatalf("no filter = %d items", len(got))
	}
	if got := filterItems(items, " Steam ", ""); len(got) != 1 || got[0].Name != "Portal 2" {
		t.Fatalf("origin filter = %+v", got)
	}
	if got := filterItems(items, "", "enriched"); len(got) != 2 {
		t.Fatalf("state filter = %+v", got)
	}
}
