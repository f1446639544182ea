package sqlitedb

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSchema = `
CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE);
`

func TestOpenCreatesSchemaAndChecksVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(ctx, Options{Path: path, Schema: testSchema, SchemaVersion: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO things (name) VALUES ('a')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.ExecContext(ctx, "INSERT INTO things (name) VALUES ('a')")
	if !IsUniqueConstraint(err) {
		t.Fatalf("expected unique constraint error, got %v", err)
	}
	if _, err := db.QueryContext(ctx, "SELECT * FROM missing"); !IsMissingSchema(err) || !IsDegraded(err) {
		t.Fatalf("expected missing schema error, got %v", err)
	}
	_ = db.Close()

	reopened, err := Open(ctx, Options{Path: path, Schema: testSchema, SchemaVersion: 1})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.Close()

	if _, err := Open(ctx, Options{Path: path, Schema: testSchema, SchemaVersion: 2}); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestOpenReadOnlyRequiresFile(t *testing.T) {
	if _, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "absent.db"), ReadOnly: true}); err == nil {
		t.Fatal("expected error for missing read-only db")
	}
}

func TestOpenReadOnlyCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(path, []byte("this is definitely not an sqlite database, just some text padding it out"), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := Open(context.Background(), Options{Path: path, ReadOnly: true})
	if err != nil {
		return
	}
	defer db.Close()
	_, err = db.Query("SELECT 1 FROM sqlite_master")
	if !IsCorrupt(err) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
}

func TestRetryOnBusy(t *testing.T) {
	attempts := 0
	err := RetryOnBusy(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("RetryOnBusy = %v after %d attempts", err, attempts)
	}

	attempts = 0
	plain := errors.New("other")
	if err := RetryOnBusy(context.Background(), func() error { attempts++; return plain }); !errors.Is(err, plain) || attempts != 1 {
		t.Fatalf("non-busy errors must not retry: %v, %d", err, attempts)
	}
}

func TestTimeHelpers(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 5, time.UTC)
	if NullableTime(nil) != nil || NullableTimeValue(time.Time{}) != nil {
		t.Fatal("zero times should be stored as NULL")
	}
	parsed, err := ParseTime(FormatTime(now))
	if err != nil || !parsed.Equal(now) {
		t.Fatalf("ParseTime = %v, %v", parsed, err)
	}
	if Placeholders(3) != "?,?,?" || Placeholders(0) != "" {
		t.Fatalf("unexpected placeholders %q", Placeholders(3))
	}
	if NullableString("  ") != nil {
		t.Fatal("blank strings should be NULL")
	}
}

func TestOpenRecoveringMovesCorruptFileAside(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "broken.db")
	garbage := bytes.Repeat([]byte("not a database at all "), 400)
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(ctx, Options{Path: path, Schema: testSchema, SchemaVersion: 1}); !IsCorrupt(err) {
		t.Fatalf("Open on garbage = %v, want corrupt error", err)
	}

	db, recovered, err := OpenRecovering(ctx, Options{Path: path, Schema: testSchema, SchemaVersion: 1})
	if err != nil {
		t.Fatalf("OpenRecovering: %v", err)
	}
	defer db.Close()
	if recovered == nil || !IsCorrupt(recovered.Cause) {
		t.Fatalf("recovered = %+v", recovered)
	}
	kept, err := os.ReadFile(recovered.MovedTo)
	if err != nil || !bytes.Equal(kept, garbage) {
		t.Fatalf("quarantined file not preserved: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO things (name) VALUES ('a')"); err != nil {
		t.Fatalf("fresh schema unusable: %v", err)
	}
}

func TestOpenRecoveringHealthyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.db")
	db, recovered, err := OpenRecovering(context.Background(), Options{Path: path, Schema: testSchema, SchemaVersion: 1})
	if err != nil || recovered != nil {
		t.Fatalf("OpenRecovering = %+v, %v", recovered, err)
	}
	_ = db.Close()
	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 0 {
		t.Fatalf("unexpected quarantine files: %v", matches)
	}
}
