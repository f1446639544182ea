package catalog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stockpile/internal/inventory"
	"stockpile/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"), logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIdentityRoundTripKeepsExternalID(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entry, created, err := store.FindOrCreate(ctx, "Team Fortress 2", inventory.OriginSteam, "440", inventory.CategoryGame)
	if err != nil || !created {
		t.Fatalf("FindOrCreate = %v, %v", created, err)
	}
	if entry.ID == 0 {
		t.Fatal("expected surrogate id")
	}
	_ = store.Close()

	reopened, err := Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.FindByExternalID(ctx, inventory.OriginSteam, "440")
	if err != nil || loaded == nil {
		t.Fatalf("FindByExternalID = %v, %v", loaded, err)
	}
	if loaded.Origin != inventory.OriginSteam || loaded.ExternalID != "440" {
		t.Fatalf("identity lost: origin=%q external_id=%q", loaded.Origin, loaded.ExternalID)
	}
	byID, err := reopened.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.ExternalID != "440" {
		t.Fatalf("external id replaced: %q", byID.ExternalID)
	}
}

func TestFindOrCreateConcurrentSingleRow(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			entry, _, err := store.FindOrCreate(ctx, "Game X", inventory.OriginSteam, "440", inventory.CategoryGame)
			errs[i] = err
			if entry != nil {
				ids[i] = entry.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("workers resolved different rows: %v", ids)
		}
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(entries))
	}
}

func TestFindOrCreateByNameWithoutExternalID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, created, err := store.FindOrCreate(ctx, "7-Zip 23.01", inventory.OriginRegistry, "", "")
	if err != nil || !created {
		t.Fatalf("first FindOrCreate = %v, %v", created, err)
	}
	second, created, err := store.FindOrCreate(ctx, "7-ZIP  23.01", inventory.OriginRegistry, "", inventory.CategorySoftware)
	if err != nil || created {
		t.Fatalf("second FindOrCreate = %v, %v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same row, got %d and %d", first.ID, second.ID)
	}
	if second.Category != inventory.CategorySoftware {
		t.Fatalf("empty category should be filled by re-detection, got %q", second.Category)
	}
	if second.ExternalID != "" {
		t.Fatalf("unexpected external id %q", second.ExternalID)
	}
}

func TestFindOrCreateAdoptsExternalIDForNameKeyedRow(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	named, _, err := store.FindOrCreate(ctx, "Portal 2", inventory.OriginRegistry, "", "")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	withID, created, err := store.FindOrCreate(ctx, "Portal 2", inventory.OriginSteam, "620", inventory.CategoryGame)
	if err != nil || created {
		t.Fatalf("FindOrCreate with id = %v, %v", created, err)
	}
	if withID.ID != named.ID {
		t.Fatalf("expected id adoption on row %d, got %d", named.ID, withID.ID)
	}
	if withID.Origin != inventory.OriginSteam || withID.ExternalID != "620" || withID.Category != inventory.CategoryGame {
		t.Fatalf("unexpected identity %+v", withID)
	}

	// A second product with the same name on another platform is a distinct row.
	other, created, err := store.FindOrCreate(ctx, "Portal 2", inventory.OriginEpic, "abc", inventory.CategoryGame)
	if err != nil || !created {
		t.Fatalf("other origin FindOrCreate = %v, %v", created, err)
	}
	if other.ID == withID.ID {
		t.Fatal("different origin ids must not share a row")
	}
}

func TestFindOrCreateRejectsEmptyName(t *testing.T) {
	store := openTestStore(t)
	if _, _, err := store.FindOrCreate(context.Background(), " ™ ", inventory.OriginRegistry, "", ""); err == nil {
		t.Fatal("expected error for unusable name")
	}
}

func TestGetUnenrichedSelectsStaleOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	mk := func(name string) *Entry {
		entry, _, err := store.FindOrCreate(ctx, name, inventory.OriginRegistry, "", inventory.CategorySoftware)
		if err != nil {
			t.Fatalf("FindOrCreate %s: %v", name, err)
		}
		return entry
	}
	fresh := mk("Fresh")
	stale := mk("Stale")
	staler := mk("Staler")
	never := mk("Never")
	failed := mk("Failed")

	setEnriched := func(entry *Entry, at time.Time) {
		entry.State = StateEnriched
		entry.LastEnrichedAt = &at
		if err := store.Update(ctx, entry); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	setEnriched(fresh, now.Add(-24*time.Hour))
	setEnriched(stale, now.Add(-40*24*time.Hour))
	setEnriched(staler, now.Add(-90*24*time.Hour))

	attempted := now.Add(-time.Hour)
	failed.State = StateFailed
	failed.LastAttemptedAt = &attempted
	failed.LastEnrichmentError = "no provider matched"
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetUnenriched(ctx, 30*24*time.Hour, 10)
	if err != nil {
		t.Fatalf("GetUnenriched: %v", err)
	}
	want := []int64{never.ID, failed.ID, staler.ID, stale.ID}
	if len(got) != len(want) {
		t.Fatalf("GetUnenriched returned %d entries, want %d", len(got), len(want))
	}
	for i, entry := range got {
		if entry.ID != want[i] {
			t.Fatalf("position %d: got %q, want id %d", i, entry.Name, want[i])
		}
	}

	limited, err := store.GetUnenriched(ctx, 30*24*time.Hour, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limited GetUnenriched = %d, %v", len(limited), err)
	}
}

func TestUpdatePersistsMetadata(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	entry, _, err := store.FindOrCreate(ctx, "Hades", inventory.OriginSteam, "1145360", inventory.CategoryGame)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	at := time.Now().UTC().Truncate(time.Second)
	entry.Description = "Defy the god of the dead"
	entry.Genres = []string{"Action", "Roguelike"}
	entry.Developers = []string{"Supergiant Games"}
	entry.Publisher = "Supergiant Games"
	entry.ReleaseDate = "2020-09-17"
	entry.CoverImageURL = "https://example.test/hades.jpg"
	entry.AdditionalMetadata = map[string]any{"rating": 0.93}
	entry.EnrichmentSource = "steamstore"
	entry.State = StateEnriched
	entry.LastEnrichedAt = &at
	if err := store.Update(ctx, entry); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := store.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Description != entry.Description || loaded.Publisher != entry.Publisher || loaded.ReleaseDate != entry.ReleaseDate {
		t.Fatalf("scalar fields not persisted: %+v", loaded)
	}
	if len(loaded.Genres) != 2 || loaded.Genres[1] != "Roguelike" || len(loaded.Developers) != 1 {
		t.Fatalf("list fields not persisted: %+v", loaded)
	}
	if rating, ok := loaded.AdditionalMetadata["rating"].(float64); !ok || rating != 0.93 {
		t.Fatalf("rating not persisted: %v", loaded.AdditionalMetadata)
	}
	if loaded.LastEnrichedAt == nil || !loaded.LastEnrichedAt.Equal(at) {
		t.Fatalf("LastEnrichedAt = %v, want %v", loaded.LastEnrichedAt, at)
	}
	if loaded.State != StateEnriched || loaded.EnrichmentSource != "steamstore" {
		t.Fatalf("state not persisted: %q %q", loaded.State, loaded.EnrichmentSource)
	}
	if loaded.ExternalID != "1145360" {
		t.Fatalf("external id changed by update: %q", loaded.ExternalID)
	}
}

func TestUpdateUnknownEntry(t *testing.T) {
	store := openTestStore(t)
	if err := store.Update(context.Background(), &Entry{ID: 999, Name: "ghost"}); err == nil {
		t.Fatal("expected error for unknown id")
	}
	if err := store.Update(context.Background(), &Entry{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestStatsAndListByState(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	game, _, _ := store.FindOrCreate(ctx, "Celeste", inventory.OriginSteam, "504230", inventory.CategoryGame)
	_, _, _ = store.FindOrCreate(ctx, "Notepad++", inventory.OriginRegistry, "", "")
	if err := store.SetState(ctx, game.ID, StateFailed); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.ByState[StateFailed] != 1 || stats.ByState[StateUnenriched] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.ByOrigin[inventory.OriginSteam] != 1 || stats.ByCategory[inventory.CategoryGame] != 1 {
		t.Fatalf("unexpected breakdown %+v", stats)
	}

	failed, err := store.ListByState(ctx, 10, StateFailed)
	if err != nil || len(failed) != 1 || failed[0].ID != game.ID {
		t.Fatalf("ListByState = %v, %v", failed, err)
	}
	if failed[0].LastAttemptedAt == nil {
		t.Fatal("SetState should stamp last attempt")
	}
}

func TestReadsDegradeWhenTableMissing(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	if _, err := store.db.ExecContext(ctx, "DROP TABLE catalog_entries"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	entries, err := store.GetUnenriched(ctx, time.Hour, 10)
	if err != nil || len(entries) != 0 {
		t.Fatalf("GetUnenriched = %v, %v", entries, err)
	}
	entry, err := store.FindByExternalID(ctx, inventory.OriginSteam, "1")
	if err != nil || entry != nil {
		t.Fatalf("FindByExternalID = %v, %v", entry, err)
	}
	if list, err := store.List(ctx); err != nil || list != nil {
		t.Fatalf("List = %v, %v", list, err)
	}
	stats, err := store.Stats(ctx)
	if err != nil || stats.Total != 0 {
		t.Fatalf("Stats = %+v, %v", stats, err)
	}
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	if err := os.WriteFile(path, bytes.Repeat([]byte("garbage "), 1024), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if list, err := store.List(ctx); err != nil || len(list) != 0 {
		t.Fatalf("List = %v, %v", list, err)
	}
	if matches, _ := filepath.Glob(path + ".corrupt-*"); len(matches) == 0 {
		t.Fatal("damaged catalog was not kept aside")
	}
	if _, _, err := store.FindOrCreate(ctx, "Portal 2", inventory.OriginSteam, "620", inventory.CategoryGame); err != nil {
		t.Fatalf("FindOrCreate after recovery: %v", err)
	}
}

func TestUpdateEnrichmentKeepsConcurrentHints(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	created, _, err := store.FindOrCreate(ctx, "Notepad++", inventory.OriginRegistry, "", inventory.CategorySoftware)
	if err != nil {
		t.Fatal(err)
	}
	snapshot, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}

	// A refresh seeds hints after the snapshot was loaded.
	if changed, err := store.SeedHints(ctx, created.ID, "Don Ho", "https://notepad-plus-plus.org"); err != nil || !changed {
		t.Fatalf("SeedHints = %v, %v", changed, err)
	}

	now := time.Now().UTC()
	snapshot.Name = "stale name"
	snapshot.Description = "A source code editor."
	snapshot.AdditionalMetadata = map[string]any{"title": "Notepad++ 8"}
	snapshot.State = StateEnriched
	snapshot.EnrichmentSource = "wikipedia"
	snapshot.LastEnrichedAt = &now
	if err := store.UpdateEnrichment(ctx, snapshot); err != nil {
		t.Fatalf("UpdateEnrichment: %v", err)
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Notepad++" {
		t.Fatalf("identity rewritten: %q", got.Name)
	}
	if got.Publisher != "Don Ho" || got.AdditionalMetadata["homepage"] != "https://notepad-plus-plus.org" {
		t.Fatalf("seeded hints lost: publisher=%q meta=%v", got.Publisher, got.AdditionalMetadata)
	}
	if got.Description != "A source code editor." || got.AdditionalMetadata["title"] != "Notepad++ 8" {
		t.Fatalf("enrichment not applied: %+v", got)
	}
	if got.State != StateEnriched || got.EnrichmentSource != "wikipedia" {
		t.Fatalf("state = %s from %q", got.State, got.EnrichmentSource)
	}

	missing := &Entry{ID: 9999}
	if err := store.UpdateEnrichment(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateEnrichment unknown = %v", err)
	}
}

func TestSeedHintsFillsOnlyMissingValues(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	entry, _, err := store.FindOrCreate(ctx, "7-Zip", inventory.OriginRegistry, "", inventory.CategorySoftware)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	changed, err := store.SeedHints(ctx, entry.ID, "Igor Pavlov", "https://www.7-zip.org/")
	if err != nil || !changed {
		t.Fatalf("SeedHints = %v, %v", changed, err)
	}
	loaded, err := store.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Publisher != "Igor Pavlov" || loaded.AdditionalMetadata["homepage"] != "https://www.7-zip.org/" {
		t.Fatalf("hints not stored: %+v", loaded)
	}

	loaded.Publisher = "Enriched Publisher"
	if err := store.Update(ctx, loaded); err != nil {
		t.Fatal(err)
	}
	changed, err = store.SeedHints(ctx, entry.ID, "Someone Else", "https://elsewhere.test/")
	if err != nil || changed {
		t.Fatalf("second SeedHints = %v, %v", changed, err)
	}
	again, err := store.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Publisher != "Enriched Publisher" || again.AdditionalMetadata["homepage"] != "https://www.7-zip.org/" {
		t.Fatalf("existing values overwritten: %+v", again)
	}

	if changed, err := store.SeedHints(ctx, entry.ID, "", ""); err != nil || changed {
		t.Fatalf("empty SeedHints = %v, %v", changed, err)
	}
}
