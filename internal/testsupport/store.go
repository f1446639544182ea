package testsupport

import (
	"context"
	"testing"

	"stockpile/internal/catalog"
	"stockpile/internal/config"
	"stockpile/internal/installs"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
)

// Stores bundles both persisted stores for tests.
type Stores struct {
	Catalog  *catalog.Store
	Installs *installs.Store
}

// MustOpenStores opens the catalog and installation stores under cfg's data
// directory and registers cleanup.
func MustOpenStores(t testing.TB, cfg *config.Config) Stores {
	t.Helper()

	cat, err := catalog.Open(cfg.CatalogDBPath(), logging.NewNop())
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	inst, err := installs.Open(cfg.InstallsDBPath(), cfg.CatalogDBPath(), logging.NewNop())
	if err != nil {
		_ = cat.Close()
		t.Fatalf("installs.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Close()
		_ = cat.Close()
	})
	return Stores{Catalog: cat, Installs: inst}
}

// NewEntry creates a catalog entry for tests.
func NewEntry(t testing.TB, store *catalog.Store, name string, origin inventory.Origin, externalID string, category inventory.Category) *catalog.Entry {
	t.Helper()

	entry, _, err := store.FindOrCreate(context.Background(), name, origin, externalID, category)
	if err != nil {
		t.Fatalf("FindOrCreate %s: %v", name, err)
	}
	return entry
}
