package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stockpile/internal/catalog"
	"stockpile/internal/detect"
	"stockpile/internal/installs"
	"stockpile/internal/inventory"
	"stockpile/internal/providers"
	"stockpile/internal/testsupport"
)

func TestBuildReportsStoreAndProviderState(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	cfg.Providers.IGDB.Enabled = true
	stores := testsupport.MustOpenStores(t, cfg)

	failed := testsupport.NewEntry(t, stores.Catalog, "Obscure Tool", inventory.OriginRegistry, "", inventory.CategorySoftware)
	if err := stores.Catalog.SetState(ctx, failed.ID, catalog.StateFailed); err != nil {
		t.Fatal(err)
	}
	failed, _ = stores.Catalog.GetByID(ctx, failed.ID)
	failed.LastEnrichmentError = "no provider returned an accepted match"
	if err := stores.Catalog.Update(ctx, failed); err != nil {
		t.Fatal(err)
	}
	fresh := testsupport.NewEntry(t, stores.Catalog, "Portal 2", inventory.OriginSteam, "620", inventory.CategoryGame)
	if _, err := stores.Installs.Upsert(ctx, fresh.ID, installs.Facts{InstallPath: "/lib/Portal 2"}, "pass"); err != nil {
		t.Fatal(err)
	}

	report, err := Build(ctx, Inputs{
		Catalog:  stores.Catalog,
		Installs: stores.Installs,
		Config:   cfg,
		Providers: []providers.Status{
			{Name: "steam_store", Enabled: true, Available: true},
			{Name: "igdb", Enabled: true, Reason: "missing client credentials"},
			{Name: "winget", Enabled: true, Reason: "winget not found on PATH"},
			{Name: "wikipedia", Enabled: false, Reason: "disabled in config"},
		},
		Detectors: []detect.Report{
			{Detector: "steam", Origin: inventory.OriginSteam, Available: true, Candidates: 1, Duration: 1500 * time.Millisecond},
			{Detector: "gog", Origin: inventory.OriginGOG, Available: true, Err: errors.New("database locked")},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Entries != 2 || report.Installations != 1 {
		t.Fatalf("totals = %d entries, %d installs", report.Entries, report.Installations)
	}
	if report.ByState[catalog.StateFailed] != 1 || report.ByState[catalog.StateUnenriched] != 1 {
		t.Fatalf("by state = %v", report.ByState)
	}
	if report.ByOrigin[inventory.OriginSteam] != 1 || report.ByCategory[inventory.CategorySoftware] != 1 {
		t.Fatalf("breakdowns = %v / %v", report.ByOrigin, report.ByCategory)
	}
	if len(report.Failed) != 1 || report.Failed[0].Error == "" {
		t.Fatalf("failed = %+v", report.Failed)
	}
	if len(report.NeverAttempted) != 1 || report.NeverAttempted[0].ExternalID != "620" {
		t.Fatalf("never attempted = %+v", report.NeverAttempted)
	}
	if len(report.Detectors) != 2 || report.Detectors[0].DurationMS != 1500 || report.Detectors[1].Error != "database locked" {
		t.Fatalf("detectors = %+v", report.Detectors)
	}

	var igdbWarnings, wingetWarnings int
	for _, w := range report.Warnings {
		if strings.Contains(w, "igdb") {
			igdbWarnings++
		}
		if strings.Contains(w, "provider winget is unavailable") {
			wingetWarnings++
		}
		if strings.Contains(w, "wikipedia") {
			t.Fatalf("disabled provider should not warn: %q", w)
		}
	}
	if igdbWarnings != 1 || wingetWarnings != 1 {
		t.Fatalf("warnings = %q", report.Warnings)
	}
	if report.Healthy() {
		t.Fatal("report with failures should not be healthy")
	}
}

func TestBuildRequiresCatalog(t *testing.T) {
	if _, err := Build(context.Background(), Inputs{}); err == nil {
		t.Fatal("expected error without catalog")
	}
}

func TestBuildEmptyStoreIsHealthy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg)
	report, err := Build(context.Background(), Inputs{Catalog: stores.Catalog, Installs: stores.Installs, Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	if report.Entries != 0 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if !report.Healthy() {
		t.Fatalf("empty report should be healthy: %+v", report.Checks)
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if c := CheckDirectoryAccess("dir", dir); !c.Passed {
		t.Fatalf("writable dir failed: %+v", c)
	}
	if c := CheckDirectoryAccess("missing", filepath.Join(dir, "nope")); c.Passed || !strings.Contains(c.Detail, "does not exist") {
		t.Fatalf("missing dir = %+v", c)
	}
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if c := CheckDirectoryAccess("file", file); c.Passed {
		t.Fatalf("regular file passed as directory: %+v", c)
	}
}

func TestCheckOptionalFile(t *testing.T) {
	dir := t.TempDir()
	if c := CheckOptionalFile("overrides", filepath.Join(dir, "overrides.yaml")); !c.Passed {
		t.Fatalf("absent optional file should pass: %+v", c)
	}
	if c := CheckOptionalFile("overrides", dir); c.Passed {
		t.Fatalf("directory should fail: %+v", c)
	}
	path := filepath.Join(dir, "present.yaml")
	if err := os.WriteFile(path, []byte("overrides: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if c := CheckOptionalFile("overrides", path); !c.Passed {
		t.Fatalf("readable file failed: %+v", c)
	}
}
