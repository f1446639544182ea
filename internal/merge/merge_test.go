package merge

import (
	"reflect"
	"testing"
	"time"

	"stockpile/internal/inventory"
)

func steam(name, id string) inventory.Detection {
	return inventory.Detection{
		Candidate: inventory.Candidate{Name: name, Origin: inventory.OriginSteam, ExternalID: id, Category: inventory.CategoryGame},
		Detector:  "steam",
	}
}

func registry(name string) inventory.Detection {
	return inventory.Detection{
		Candidate: inventory.Candidate{Name: name, Origin: inventory.OriginRegistry},
		Detector:  "registry",
		Generic:   true,
	}
}

func TestMergeSpecializedWinsRegardlessOfOrder(t *testing.T) {
	a := steam("Portal 2", "620")
	b := registry("PORTAL 2")
	b.InstallPath = `C:\Program Files (x86)\Steam\steamapps\common\Portal 2`
	b.Version = "1.0"

	for _, input := range [][]inventory.Detection{{a, b}, {b, a}} {
		out, stats := Merge(input)
		if len(out) != 1 {
			t.Fatalf("expected one canonical candidate, got %d", len(out))
		}
		got := out[0]
		if got.Origin != inventory.OriginSteam || got.ExternalID != "620" || got.Generic {
			t.Fatalf("specialized candidate lost: %+v", got)
		}
		if got.InstallPath == "" || got.Version != "1.0" {
			t.Fatalf("generic fields not backfilled: %+v", got)
		}
		if stats.Collapsed != 1 {
			t.Fatalf("collapsed = %d", stats.Collapsed)
		}
	}
}

func TestMergeCategoryBreaksTies(t *testing.T) {
	plain := registry("Visual Studio Code")
	categorized := registry("visual studio code")
	categorized.Category = inventory.CategorySoftware

	out, _ := Merge([]inventory.Detection{plain, categorized})
	if len(out) != 1 || out[0].Category != inventory.CategorySoftware || out[0].Name != "visual studio code" {
		t.Fatalf("categorized candidate should win: %+v", out)
	}
}

func TestMergeFirstSeenWinsOnFullTie(t *testing.T) {
	first := registry("Git")
	first.Version = "2.44"
	second := registry("git")
	second.Version = "2.45"

	out, _ := Merge([]inventory.Detection{first, second})
	if len(out) != 1 || out[0].Version != "2.44" || out[0].Name != "Git" {
		t.Fatalf("first seen should win: %+v", out)
	}
}

func TestMergeScenarioSpecializedAndRegistryPortal(t *testing.T) {
	out, _ := Merge([]inventory.Detection{registry("Portal 2"), steam("Portal 2", "620")})
	if len(out) != 1 {
		t.Fatalf("got %d candidates", len(out))
	}
	if out[0].ExternalID != "620" || out[0].Origin != inventory.OriginSteam {
		t.Fatalf("unexpected canonical candidate %+v", out[0].Candidate)
	}
}

func TestMergeDoesNotBorrowForeignExternalIDs(t *testing.T) {
	epic := inventory.Detection{
		Candidate: inventory.Candidate{Name: "Alan Wake", Origin: inventory.OriginEpic, Category: inventory.CategoryGame},
		Detector:  "epic",
	}
	out, _ := Merge([]inventory.Detection{epic, steam("Alan Wake", "108710")})
	if out[0].Origin != inventory.OriginEpic || out[0].ExternalID != "" {
		t.Fatalf("external id must stay with its origin: %+v", out[0].Candidate)
	}
}

func TestMergeKeepsLoserAttributes(t *testing.T) {
	a := steam("Hades", "1145360")
	a.SetAttr("library", "D:/SteamLibrary")
	b := registry("Hades")
	b.SetAttr("library", "ignored")
	b.SetAttr(inventory.AttrPublisher, "Supergiant Games")
	b.InstallTime = time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)

	out, _ := Merge([]inventory.Detection{a, b})
	attrs := out[0].Attributes
	if attrs["library"] != "D:/SteamLibrary" || attrs[inventory.AttrPublisher] != "Supergiant Games" {
		t.Fatalf("attributes = %v", attrs)
	}
	if out[0].InstallTime.IsZero() {
		t.Fatal("install time should be backfilled")
	}
	if _, ok := a.Attributes[inventory.AttrPublisher]; ok {
		t.Fatal("merge must not mutate its input")
	}
}

func TestMergeIdempotent(t *testing.T) {
	input := []inventory.Detection{
		registry("7-Zip"),
		steam("Portal 2", "620"),
		registry("Portal 2"),
		registry("Firefox"),
		registry("7-ZIP"),
		registry("™"),
	}
	once, stats := Merge(input)
	again, _ := Merge(input)
	if !reflect.DeepEqual(once, again) {
		t.Fatal("merge is not deterministic")
	}
	twice, _ := Merge(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent:\n%+v\n%+v", once, twice)
	}
	if stats.Output != 3 || stats.Unnamed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	names := []string{once[0].Name, once[1].Name, once[2].Name}
	if !reflect.DeepEqual(names, []string{"7-Zip", "Portal 2", "Firefox"}) {
		t.Fatalf("first-seen group order not preserved: %v", names)
	}
}
