package epic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stockpile/internal/detect"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
)

func writeItem(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetectParsesItems(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "A.item", `{
		"DisplayName": "Alan Wake 2",
		"AppName": "Pan",
		"MainGameAppName": "Pan",
		"CatalogNamespace": "dc9d2e595d0e4650b35d659f90d41059",
		"CatalogItemId": "4d07d7e6d7f34a1fbd4c5e5d2e0c6f11",
		"InstallLocation": "D:/Epic Games/AlanWake2",
		"LaunchExecutable": "AlanWake2.exe",
		"AppVersionString": "1.0.16",
		"InstallSize": 96000000000,
		"AppCategories": ["public", "games", "applications"]
	}`)
	writeItem(t, dir, "B.item", `{"DisplayName": "Half", "AppName": "Half", "bIsIncompleteInstall": true}`)
	writeItem(t, dir, "C.item", `{"DisplayName": "Alan Wake 2 DLC", "AppName": "PanDLC", "MainGameAppName": "Pan"}`)
	writeItem(t, dir, "D.item", `{not json`)
	writeItem(t, dir, "E.item", `{"DisplayName": "Unreal Engine", "AppName": "UE_5.3", "AppCategories": ["engines"]}`)
	writeItem(t, dir, "ignored.txt", `{}`)

	d := New(dir, logging.NewNop())
	if !d.IsAvailable(context.Background()) {
		t.Fatal("expected available")
	}
	candidates, err := d.Detect(context.Background())
	var skipped detect.RecordErrors
	if !errors.As(err, &skipped) || len(skipped) != 1 {
		t.Fatalf("expected one malformed manifest, got %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %+v", candidates)
	}

	game := candidates[0]
	if game.Name != "Alan Wake 2" || game.ExternalID != "4d07d7e6d7f34a1fbd4c5e5d2e0c6f11" || game.Category != inventory.CategoryGame {
		t.Fatalf("game = %+v", game)
	}
	if game.ExecutablePath != filepath.Join("D:/Epic Games/AlanWake2", "AlanWake2.exe") {
		t.Fatalf("executable = %q", game.ExecutablePath)
	}
	if game.Attributes["app_name"] != "Pan" || game.Attributes["install_size"] != "96000000000" {
		t.Fatalf("attributes = %v", game.Attributes)
	}

	engine := candidates[1]
	if engine.ExternalID != "UE_5.3" || engine.Category != inventory.CategorySoftware {
		t.Fatalf("engine = %+v", engine)
	}
}

func TestClaimFromPath(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "A.item", `{"DisplayName": "Fortnite", "AppName": "Fortnite", "CatalogItemId": "4fe75bbc", "InstallLocation": "C:\\Epic\\Fortnite"}`)
	d := New(dir, logging.NewNop())

	claimed, ok := d.ClaimFromPath(context.Background(), `c:/epic/fortnite/FortniteGame`)
	if !ok || claimed.ExternalID != "4fe75bbc" {
		t.Fatalf("ClaimFromPath = %+v, %v", claimed, ok)
	}
	if _, ok := d.ClaimFromPath(context.Background(), `C:\Epic\Other`); ok {
		t.Fatal("unrelated path claimed")
	}
}

func TestUnavailableWithoutDirectory(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "missing"), logging.NewNop())
	if d.IsAvailable(context.Background()) {
		t.Fatal("missing directory should be unavailable")
	}
}
