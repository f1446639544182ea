package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Options controls how a database is opened.
type Options struct {
	Path string
	// Schema is executed once on a fresh database. Empty skips schema management.
	Schema        string
	SchemaVersion int
	ReadOnly      bool
	// MaxOpenConns caps the pool. Zero keeps the driver default.
	MaxOpenConns int
}

// Open connects to the database at opts.Path and prepares it for use.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("stat sqlite db: %w", err)
		}
	} else if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", DSN(path, opts.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if !opts.ReadOnly {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma journal_mode: %w", err)
		}
	}

	if opts.Schema != "" && !opts.ReadOnly {
		if err := initSchema(ctx, db, opts.Schema, opts.SchemaVersion); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Recovered describes a damaged database that OpenRecovering moved aside.
type Recovered struct {
	MovedTo string
	Cause   error
}

// OpenRecovering opens like Open, but when the file is damaged or not a
// SQLite database it is renamed to <path>.corrupt-<timestamp> and a fresh
// database is created in its place. Recovered is nil when no recovery was
// needed.
func OpenRecovering(ctx context.Context, opts Options) (*sql.DB, *Recovered, error) {
	db, err := Open(ctx, opts)
	if err == nil || opts.ReadOnly || !IsCorrupt(err) {
		return db, nil, err
	}
	moved, qerr := Quarantine(opts.Path, time.Now())
	if qerr != nil {
		return nil, nil, errors.Join(err, qerr)
	}
	db, reopenErr := Open(ctx, opts)
	if reopenErr != nil {
		return nil, nil, fmt.Errorf("reopen after quarantine: %w", reopenErr)
	}
	return db, &Recovered{MovedTo: moved, Cause: err}, nil
}

// Quarantine renames the database at path, with its WAL and shared-memory
// files, to <path>.corrupt-<timestamp>. It returns the new database path.
func Quarantine(path string, now time.Time) (string, error) {
	target := fmt.Sprintf("%s.corrupt-%s", path, now.UTC().Format("20060102T150405.000000000Z"))
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("quarantine sqlite db: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, target+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return target, fmt.Errorf("quarantine sqlite db%s: %w", suffix, err)
		}
	}
	return target, nil
}

// DSN builds a modernc connection string. Pragmas are passed per connection
// so every pooled connection gets them.
func DSN(path string, readOnly bool) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if readOnly {
		return "file:" + filepath.ToSlash(path) + "?mode=ro&" + params
	}
	return path + "?" + params
}

func initSchema(ctx context.Context, db *sql.DB, schema string, version int) error {
	var tableExists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return createSchema(ctx, db, schema, version)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current != version {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the database to rebuild it)",
			ErrSchemaMismatch, current, version)
	}
	return nil
}

func createSchema(ctx context.Context, db *sql.DB, schema string, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
