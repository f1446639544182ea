package installs

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stockpile/internal/catalog"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// pruneChunk bounds the number of ids bound per INSERT while staging the seen set.
const pruneChunk = 500

// ErrUnknownCatalogEntry is returned by Upsert when the catalog id does not exist.
var ErrUnknownCatalogEntry = errors.New("unknown catalog entry")

const installColumns = `id, catalog_id, origin, install_path, executable_path, icon_path, version,
	install_time, attributes, pass_id, last_detected_at, created_at, updated_at`

// Store manages installation persistence backed by SQLite.
type Store struct {
	db          *sql.DB
	path        string
	catalogPath string
	logger      *slog.Logger
	now         func() time.Time
}

// Open initializes or connects to the installation database. catalogPath is
// attached on demand for joins and catalog id checks.
func Open(path, catalogPath string, logger *slog.Logger) (*Store, error) {
	db, recovered, err := sqlitedb.OpenRecovering(context.Background(), sqlitedb.Options{
		Path:          path,
		Schema:        schemaSQL,
		SchemaVersion: schemaVersion,
		// ATTACH and temp tables are per connection.
		MaxOpenConns: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open installs: %w", err)
	}
	s := &Store{
		db:          db,
		path:        path,
		catalogPath: catalogPath,
		logger:      logging.NewComponentLogger(logger, "installs"),
		now:         time.Now,
	}
	if recovered != nil {
		logging.WarnWithContext(s.logger, "installation store unreadable; started empty", "installs_store_degraded",
			logging.String("path", path),
			logging.String("moved_to", recovered.MovedTo),
			logging.Error(recovered.Cause),
			logging.String(logging.FieldErrorHint, "inspect or delete the moved file"),
			logging.String(logging.FieldImpact, "installations reappear on the next refresh"),
		)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// conn returns the single pooled connection with the catalog attached.
func (s *Store) conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire installs connection: %w", err)
	}
	if strings.TrimSpace(s.catalogPath) == "" {
		return conn, nil
	}
	var attached int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pragma_database_list WHERE name = 'catalog'`).Scan(&attached); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("inspect attached databases: %w", err)
	}
	if attached == 0 {
		if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS catalog`, s.catalogPath); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("attach catalog: %w", err)
		}
	}
	return conn, nil
}

// Upsert records facts for the install of catalogID at facts.InstallPath,
// stamping it as seen by passID.
func (s *Store) Upsert(ctx context.Context, catalogID int64, facts Facts, passID string) (*Installation, error) {
	if catalogID <= 0 {
		return nil, fmt.Errorf("upsert installation: %w: %d", ErrUnknownCatalogEntry, catalogID)
	}
	attrs, err := encodeAttributes(facts.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if s.catalogPath != "" {
		var exists int
		err := conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM catalog.catalog_entries WHERE id = ?`, catalogID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check catalog entry %d: %w", catalogID, err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("upsert installation: %w: %d", ErrUnknownCatalogEntry, catalogID)
		}
	}

	now := sqlitedb.FormatTime(s.now())
	var id int64
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		return conn.QueryRowContext(ctx,
			`INSERT INTO installations (catalog_id, origin, install_path, executable_path, icon_path, version,
				install_time, attributes, pass_id, last_detected_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (catalog_id, install_path) DO UPDATE SET
				origin = excluded.origin,
				executable_path = excluded.executable_path,
				icon_path = excluded.icon_path,
				version = excluded.version,
				install_time = COALESCE(excluded.install_time, installations.install_time),
				attributes = excluded.attributes,
				pass_id = excluded.pass_id,
				last_detected_at = excluded.last_detected_at,
				updated_at = excluded.updated_at
			RETURNING id`,
			catalogID, string(facts.Origin), strings.TrimSpace(facts.InstallPath),
			sqlitedb.NullableString(facts.ExecutablePath), sqlitedb.NullableString(facts.IconPath),
			sqlitedb.NullableString(facts.Version), sqlitedb.NullableTimeValue(facts.InstallTime),
			attrs, sqlitedb.NullableString(passID), now, now, now,
		).Scan(&id)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert installation for catalog %d: %w", catalogID, err)
	}

	row := conn.QueryRowContext(ctx, `SELECT `+installColumns+` FROM installations WHERE id = ?`, id)
	inst, err := scanInstallation(row)
	if err != nil {
		return nil, fmt.Errorf("reload installation %d: %w", id, err)
	}
	return inst, nil
}

// PruneStale deletes every installation whose id is not in seenIDs and
// returns the number of rows removed.
func (s *Store) PruneStale(ctx context.Context, seenIDs []int64) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS seen_installations (id INTEGER PRIMARY KEY)`); err != nil {
		return 0, fmt.Errorf("create seen table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM temp.seen_installations`); err != nil {
		return 0, fmt.Errorf("reset seen table: %w", err)
	}
	for start := 0; start < len(seenIDs); start += pruneChunk {
		end := min(start+pruneChunk, len(seenIDs))
		chunk := seenIDs[start:end]
		args := make([]any, len(chunk))
		values := make([]string, len(chunk))
		for i, id := range chunk {
			args[i] = id
			values[i] = "(?)"
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO temp.seen_installations (id) VALUES `+strings.Join(values, ","), args...); err != nil {
			return 0, fmt.Errorf("stage seen ids: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM installations WHERE id NOT IN (SELECT id FROM temp.seen_installations)`)
	if err != nil {
		return 0, fmt.Errorf("delete stale installations: %w", err)
	}
	removed, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	if removed > 0 {
		s.logger.Info("pruned stale installations", logging.Int64("removed", removed), logging.Int("seen", len(seenIDs)))
	}
	return removed, nil
}

// GetAll returns every installation ordered by id.
func (s *Store) GetAll(ctx context.Context) ([]*Installation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+installColumns+` FROM installations ORDER BY id`)
	if err != nil {
		return s.degraded("get all", err)
	}
	defer rows.Close()

	var out []*Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return s.degraded("get all", err)
	}
	return out, nil
}

// GetJoinedWithCatalog returns every installation with its catalog entry in
// one query, ordered by catalog name.
func (s *Store) GetJoinedWithCatalog(ctx context.Context) ([]Joined, error) {
	if s.catalogPath == "" {
		return nil, errors.New("joined query requires a catalog path")
	}
	conn, err := s.conn(ctx)
	if err != nil {
		if sqlitedb.IsDegraded(err) {
			s.warnDegraded("get joined", err)
			return nil, nil
		}
		return nil, err
	}
	defer conn.Close()

	cols := make([]string, 0, 13)
	for _, col := range strings.Split(installColumns, ",") {
		cols = append(cols, "i."+strings.TrimSpace(col))
	}
	query := `SELECT ` + catalog.ColumnList("c") + `, ` + strings.Join(cols, ", ") + `
		FROM installations i
		JOIN catalog.catalog_entries c ON c.id = i.catalog_id
		ORDER BY c.name_key, i.id`

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		if sqlitedb.IsDegraded(err) {
			s.warnDegraded("get joined", err)
			return nil, nil
		}
		return nil, fmt.Errorf("installs get joined: %w", err)
	}
	defer rows.Close()

	var out []Joined
	for rows.Next() {
		var raw installRow
		entry, err := catalog.ScanRow(rows, raw.dest()...)
		if err != nil {
			return nil, fmt.Errorf("scan joined row: %w", err)
		}
		out = append(out, Joined{Installation: *raw.installation(), Entry: entry})
	}
	if err := rows.Err(); err != nil {
		if sqlitedb.IsDegraded(err) {
			s.warnDegraded("get joined", err)
			return nil, nil
		}
		return nil, fmt.Errorf("installs get joined: %w", err)
	}
	return out, nil
}

// Count returns the number of installation rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM installations`).Scan(&count); err != nil {
		if sqlitedb.IsDegraded(err) {
			s.warnDegraded("count", err)
			return 0, nil
		}
		return 0, fmt.Errorf("count installations: %w", err)
	}
	return count, nil
}

func (s *Store) degraded(op string, err error) ([]*Installation, error) {
	if sqlitedb.IsDegraded(err) {
		s.warnDegraded(op, err)
		return nil, nil
	}
	return nil, fmt.Errorf("installs %s: %w", op, err)
}

func (s *Store) warnDegraded(op string, err error) {
	logging.WarnWithContext(s.logger, "installation store unreadable; returning no data", "installs_store_degraded",
		logging.String("operation", op),
		logging.String("path", s.path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run a refresh; delete the installs database if the error persists"),
		logging.String(logging.FieldImpact, "inventory appears empty until the store is readable"),
	)
}

type installRow struct {
	inst                           Installation
	origin                         string
	executable, icon, version      sql.NullString
	installTime, attrs, passID     sql.NullString
	lastDetected, created, updated string
}

func (r *installRow) dest() []any {
	return []any{
		&r.inst.ID, &r.inst.CatalogID, &r.origin, &r.inst.InstallPath, &r.executable, &r.icon, &r.version,
		&r.installTime, &r.attrs, &r.passID, &r.lastDetected, &r.created, &r.updated,
	}
}

func (r *installRow) installation() *Installation {
	inst := r.inst
	inst.Origin = inventory.Origin(r.origin)
	inst.ExecutablePath = r.executable.String
	inst.IconPath = r.icon.String
	inst.Version = r.version.String
	inst.InstallTime = sqlitedb.TimeValue(r.installTime)
	inst.Attributes = decodeAttributes(r.attrs)
	inst.PassID = r.passID.String
	if t, err := sqlitedb.ParseTime(r.lastDetected); err == nil {
		inst.LastDetectedAt = t
	}
	if t, err := sqlitedb.ParseTime(r.created); err == nil {
		inst.CreatedAt = t
	}
	if t, err := sqlitedb.ParseTime(r.updated); err == nil {
		inst.UpdatedAt = t
	}
	return &inst
}

func scanInstallation(scanner interface{ Scan(dest ...any) error }) (*Installation, error) {
	var raw installRow
	if err := scanner.Scan(raw.dest()...); err != nil {
		return nil, err
	}
	return raw.installation(), nil
}

func encodeAttributes(values map[string]string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeAttributes(value sql.NullString) map[string]string {
	if !value.Valid || value.String == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	return out
}
