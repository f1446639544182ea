package catalog

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

	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/sqlitedb"
	"stockpile/internal/textutil"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrNotFound is returned by GetByID when no entry exists.
var ErrNotFound = errors.New("catalog entry not found")

const entryColumns = `id, name, origin, external_id, category, description, genres, developers,
	publisher, release_date, cover_image_url, additional_metadata, enrichment_state,
	enrichment_source, last_enriched_at, last_attempted_at, last_enrichment_error,
	created_at, updated_at`

// Store manages reference catalog persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Open initializes or connects to the catalog database.
// A damaged file is moved aside and replaced by an empty catalog.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, recovered, err := sqlitedb.OpenRecovering(context.Background(), sqlitedb.Options{
		Path:          path,
		Schema:        schemaSQL,
		SchemaVersion: schemaVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	s := &Store{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "catalog"),
		now:    time.Now,
	}
	if recovered != nil {
		logging.WarnWithContext(s.logger, "catalog store unreadable; started empty", "catalog_store_degraded",
			logging.String("path", path),
			logging.String("moved_to", recovered.MovedTo),
			logging.Error(recovered.Cause),
			logging.String(logging.FieldErrorHint, "inspect or delete the moved file; entries return on the next refresh"),
			logging.String(logging.FieldImpact, "enriched metadata is refetched"),
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

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// FindByExternalID returns the entry for an origin identifier, or nil.
func (s *Store) FindByExternalID(ctx context.Context, origin inventory.Origin, externalID string) (*Entry, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries WHERE origin = ? AND external_id = ?`,
		string(origin), externalID)
	return s.scanOne(row, "find by external id")
}

// FindByName returns the entry whose normalized name matches, or nil.
// Rows without an external id are preferred since name is their identity.
func (s *Store) FindByName(ctx context.Context, name string) (*Entry, error) {
	key := textutil.NormalizeName(name)
	if key == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries WHERE name_key = ?
		ORDER BY external_id IS NOT NULL, id LIMIT 1`, key)
	return s.scanOne(row, "find by name")
}

func (s *Store) findNameKeyed(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries WHERE name_key = ? AND external_id IS NULL`, key)
	return s.scanOne(row, "find name-keyed")
}

// FindOrCreate returns the entry identified by (origin, externalID), falling
// back to the normalized name when externalID is empty. It reports whether a
// new row was inserted. Concurrent callers converge on a single row.
func (s *Store) FindOrCreate(ctx context.Context, name string, origin inventory.Origin, externalID string, category inventory.Category) (*Entry, bool, error) {
	name = strings.TrimSpace(name)
	externalID = strings.TrimSpace(externalID)
	key := textutil.NormalizeName(name)
	if key == "" {
		return nil, false, fmt.Errorf("find or create: name %q has no usable characters", name)
	}

	if externalID != "" {
		entry, err := s.FindByExternalID(ctx, origin, externalID)
		if err != nil {
			return nil, false, err
		}
		if entry != nil {
			return s.refreshIdentity(ctx, entry, name, category)
		}
		// A row created earlier without an id adopts it now.
		named, err := s.findNameKeyed(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if named != nil {
			attached, err := s.attachExternalID(ctx, named, origin, externalID, category)
			if err != nil {
				return nil, false, err
			}
			if attached != nil {
				return attached, false, nil
			}
		}
	} else {
		entry, err := s.FindByName(ctx, name)
		if err != nil {
			return nil, false, err
		}
		if entry != nil {
			return s.refreshIdentity(ctx, entry, name, category)
		}
	}

	now := sqlitedb.FormatTime(s.now())
	var id int64
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO catalog_entries (name, name_key, origin, external_id, category, enrichment_state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
			RETURNING id`,
			name, key, string(origin), sqlitedb.NullableString(externalID), string(category),
			string(StateUnenriched), now, now,
		).Scan(&id)
	})
	switch {
	case err == nil:
		entry, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		s.logger.Debug("catalog entry created",
			logging.Int64(logging.FieldEntryID, id),
			logging.String("name", name),
			logging.String("origin", string(origin)),
			logging.String("external_id", externalID),
		)
		return entry, true, nil
	case errors.Is(err, sql.ErrNoRows), sqlitedb.IsUniqueConstraint(err):
		// Another writer won the insert; resolve to its row.
		entry, rerr := s.reread(ctx, name, origin, externalID)
		if rerr != nil {
			return nil, false, rerr
		}
		if entry == nil {
			return nil, false, fmt.Errorf("find or create %q: conflicting row vanished", name)
		}
		return entry, false, nil
	default:
		return nil, false, fmt.Errorf("insert catalog entry: %w", err)
	}
}

func (s *Store) reread(ctx context.Context, name string, origin inventory.Origin, externalID string) (*Entry, error) {
	if externalID != "" {
		return s.FindByExternalID(ctx, origin, externalID)
	}
	return s.FindByName(ctx, name)
}

// attachExternalID stamps an origin id onto a name-keyed row. It returns nil
// when another writer changed the row first.
func (s *Store) attachExternalID(ctx context.Context, entry *Entry, origin inventory.Origin, externalID string, category inventory.Category) (*Entry, error) {
	if category.IsEmpty() {
		category = entry.Category
	}
	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`UPDATE catalog_entries SET origin = ?, external_id = ?, category = ?, updated_at = ?
			WHERE id = ? AND external_id IS NULL`,
			string(origin), externalID, string(category), sqlitedb.FormatTime(s.now()), entry.ID)
		return execErr
	})
	if err != nil {
		if sqlitedb.IsUniqueConstraint(err) {
			return s.FindByExternalID(ctx, origin, externalID)
		}
		return nil, fmt.Errorf("attach external id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.FindByExternalID(ctx, origin, externalID)
	}
	s.logger.Info("catalog entry adopted external id",
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String("origin", string(origin)),
		logging.String("external_id", externalID),
	)
	return s.GetByID(ctx, entry.ID)
}

// refreshIdentity applies re-detected identity fields. Only an empty category
// is filled in; names are left as first recorded.
func (s *Store) refreshIdentity(ctx context.Context, entry *Entry, name string, category inventory.Category) (*Entry, bool, error) {
	if !entry.Category.IsEmpty() || category.IsEmpty() {
		return entry, false, nil
	}
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`UPDATE catalog_entries SET category = ?, updated_at = ? WHERE id = ? AND category = ''`,
			string(category), sqlitedb.FormatTime(s.now()), entry.ID)
		return execErr
	})
	if err != nil {
		return nil, false, fmt.Errorf("update category for %q: %w", name, err)
	}
	entry.Category = category
	return entry, false, nil
}

// GetByID fetches a single entry.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM catalog_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog entry %d: %w", id, err)
	}
	return entry, nil
}

// GetByIDs fetches the entries for ids, skipping unknown ids.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) ([]*Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.query(ctx, "get by ids",
		`SELECT `+entryColumns+` FROM catalog_entries WHERE id IN (`+sqlitedb.Placeholders(len(ids))+`) ORDER BY id`,
		args...)
}

// GetUnenriched returns entries never enriched or enriched longer than maxAge
// ago, oldest first, at most limit rows. Never-attempted entries precede
// entries that failed before.
func (s *Store) GetUnenriched(ctx context.Context, maxAge time.Duration, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	cutoff := sqlitedb.FormatTime(s.now().Add(-maxAge))
	return s.query(ctx, "get unenriched",
		`SELECT `+entryColumns+` FROM catalog_entries
		WHERE last_enriched_at IS NULL OR last_enriched_at < ?
		ORDER BY last_enriched_at IS NOT NULL, last_enriched_at,
			last_attempted_at IS NOT NULL, last_attempted_at, id
		LIMIT ?`,
		cutoff, limit)
}

// List returns every entry ordered by name.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	return s.query(ctx, "list", `SELECT `+entryColumns+` FROM catalog_entries ORDER BY name_key, id`)
}

// ListByState returns up to limit entries in the given states, oldest update first.
func (s *Store) ListByState(ctx context.Context, limit int, states ...State) ([]*Entry, error) {
	if len(states) == 0 || limit <= 0 {
		return nil, nil
	}
	args := make([]any, 0, len(states)+1)
	for _, state := range states {
		args = append(args, string(state))
	}
	args = append(args, limit)
	return s.query(ctx, "list by state",
		`SELECT `+entryColumns+` FROM catalog_entries WHERE enrichment_state IN (`+sqlitedb.Placeholders(len(states))+`)
		ORDER BY updated_at, id LIMIT ?`, args...)
}

// Update persists every mutable field of entry and bumps UpdatedAt.
func (s *Store) Update(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.ID == 0 {
		return errors.New("update catalog entry: missing id")
	}
	genres, err := encodeList(entry.Genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}
	developers, err := encodeList(entry.Developers)
	if err != nil {
		return fmt.Errorf("encode developers: %w", err)
	}
	extras, err := encodeMetadata(entry.AdditionalMetadata)
	if err != nil {
		return fmt.Errorf("encode additional metadata: %w", err)
	}
	state := entry.State
	if state == "" {
		state = StateUnenriched
	}
	entry.UpdatedAt = s.now().UTC()

	var res sql.Result
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`UPDATE catalog_entries SET
				name = ?, name_key = ?, category = ?, description = ?, genres = ?, developers = ?,
				publisher = ?, release_date = ?, cover_image_url = ?, additional_metadata = ?,
				enrichment_state = ?, enrichment_source = ?, last_enriched_at = ?, last_attempted_at = ?,
				last_enrichment_error = ?, updated_at = ?
			WHERE id = ?`,
			entry.Name, textutil.NormalizeName(entry.Name), string(entry.Category),
			sqlitedb.NullableString(entry.Description), genres, developers,
			sqlitedb.NullableString(entry.Publisher), sqlitedb.NullableString(entry.ReleaseDate),
			sqlitedb.NullableString(entry.CoverImageURL), extras,
			string(state), sqlitedb.NullableString(entry.EnrichmentSource),
			sqlitedb.NullableTime(entry.LastEnrichedAt), sqlitedb.NullableTime(entry.LastAttemptedAt),
			sqlitedb.NullableString(entry.LastEnrichmentError), sqlitedb.FormatTime(entry.UpdatedAt),
			entry.ID,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update catalog entry %d: %w", entry.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update catalog entry %d: %w", entry.ID, ErrNotFound)
	}
	return nil
}

// UpdateEnrichment persists the enrichment outcome of entry. Identity
// columns are left alone, an empty publisher keeps the stored one, and
// AdditionalMetadata is merged into the stored object key by key, so hints
// written by a concurrent refresh survive.
func (s *Store) UpdateEnrichment(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.ID == 0 {
		return errors.New("update catalog enrichment: missing id")
	}
	genres, err := encodeList(entry.Genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}
	developers, err := encodeList(entry.Developers)
	if err != nil {
		return fmt.Errorf("encode developers: %w", err)
	}
	extras, err := encodeMetadata(entry.AdditionalMetadata)
	if err != nil {
		return fmt.Errorf("encode additional metadata: %w", err)
	}
	state := entry.State
	if state == "" {
		state = StateUnenriched
	}
	entry.UpdatedAt = s.now().UTC()

	var res sql.Result
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`UPDATE catalog_entries SET
				description = ?1, genres = ?2, developers = ?3,
				publisher = COALESCE(NULLIF(?4, ''), publisher),
				release_date = ?5, cover_image_url = ?6,
				additional_metadata = CASE WHEN ?7 IS NULL THEN additional_metadata
					ELSE json_patch(COALESCE(NULLIF(additional_metadata, ''), '{}'), ?7) END,
				enrichment_state = ?8, enrichment_source = ?9, last_enriched_at = ?10,
				last_attempted_at = ?11, last_enrichment_error = ?12, updated_at = ?13
			WHERE id = ?14`,
			sqlitedb.NullableString(entry.Description), genres, developers,
			entry.Publisher, sqlitedb.NullableString(entry.ReleaseDate),
			sqlitedb.NullableString(entry.CoverImageURL), extras,
			string(state), sqlitedb.NullableString(entry.EnrichmentSource),
			sqlitedb.NullableTime(entry.LastEnrichedAt), sqlitedb.NullableTime(entry.LastAttemptedAt),
			sqlitedb.NullableString(entry.LastEnrichmentError), sqlitedb.FormatTime(entry.UpdatedAt),
			entry.ID,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update catalog enrichment %d: %w", entry.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update catalog enrichment %d: %w", entry.ID, ErrNotFound)
	}
	return nil
}

// SeedHints fills an empty publisher and a missing homepage hint from
// detection data. Enriched values are never overwritten. It reports whether
// the row changed.
func (s *Store) SeedHints(ctx context.Context, id int64, publisher, homepage string) (bool, error) {
	publisher = strings.TrimSpace(publisher)
	homepage = strings.TrimSpace(homepage)
	if publisher == "" && homepage == "" {
		return false, nil
	}
	now := sqlitedb.FormatTime(s.now())
	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`UPDATE catalog_entries SET
				publisher = CASE WHEN COALESCE(publisher, '') = '' AND ?1 <> '' THEN ?1 ELSE publisher END,
				additional_metadata = CASE
					WHEN ?2 <> '' AND json_extract(COALESCE(NULLIF(additional_metadata, ''), '{}'), '$.homepage') IS NULL
					THEN json_set(COALESCE(NULLIF(additional_metadata, ''), '{}'), '$.homepage', ?2)
					ELSE additional_metadata END,
				updated_at = ?3
			WHERE id = ?4 AND (
				(COALESCE(publisher, '') = '' AND ?1 <> '') OR
				(?2 <> '' AND json_extract(COALESCE(NULLIF(additional_metadata, ''), '{}'), '$.homepage') IS NULL)
			)`,
			publisher, homepage, now, id)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("seed catalog hints %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetState records a state transition without touching metadata.
func (s *Store) SetState(ctx context.Context, id int64, state State) error {
	now := sqlitedb.FormatTime(s.now())
	return sqlitedb.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE catalog_entries SET enrichment_state = ?, last_attempted_at = ?, updated_at = ? WHERE id = ?`,
			string(state), now, now, id)
		return err
	})
}

// Stats returns entry counts grouped by state, origin and category.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByState:    make(map[State]int),
		ByOrigin:   make(map[inventory.Origin]int),
		ByCategory: make(map[inventory.Category]int),
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT enrichment_state, origin, category, COUNT(1) FROM catalog_entries GROUP BY 1, 2, 3`)
	if err != nil {
		if sqlitedb.IsDegraded(err) {
			s.warnDegraded("stats", err)
			return stats, nil
		}
		return stats, fmt.Errorf("catalog stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state, origin, category string
		var count int
		if err := rows.Scan(&state, &origin, &category, &count); err != nil {
			return stats, fmt.Errorf("scan catalog stats: %w", err)
		}
		stats.Total += count
		stats.ByState[State(state)] += count
		stats.ByOrigin[inventory.Origin(origin)] += count
		stats.ByCategory[inventory.Category(category)] += count
	}
	return stats, rows.Err()
}

func (s *Store) scanOne(row *sql.Row, op string) (*Entry, error) {
	entry, err := scanEntry(row)
	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case sqlitedb.IsDegraded(err):
		s.warnDegraded(op, err)
		return nil, nil
	default:
		return nil, fmt.Errorf("catalog %s: %w", op, err)
	}
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if sqlitedb.IsDegraded(err) {
			s.warnDegraded(op, err)
			return nil, nil
		}
		return nil, fmt.Errorf("catalog %s: %w", op, err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", op, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		if sqlitedb.IsDegraded(err) {
			s.warnDegraded(op, err)
			return nil, nil
		}
		return nil, fmt.Errorf("catalog %s: %w", op, err)
	}
	return entries, nil
}

func (s *Store) warnDegraded(op string, err error) {
	logging.WarnWithContext(s.logger, "catalog store unreadable; returning no data", "catalog_store_degraded",
		logging.String("operation", op),
		logging.String("path", s.path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "delete the catalog database to rebuild it on the next refresh"),
		logging.String(logging.FieldImpact, "inventory shows no catalog data until the store is readable"),
	)
}

// ColumnList returns the entry columns in scan order, qualified by alias when set.
func ColumnList(alias string) string {
	if alias == "" {
		return entryColumns
	}
	fields := strings.Split(entryColumns, ",")
	for i, field := range fields {
		fields[i] = alias + "." + strings.TrimSpace(field)
	}
	return strings.Join(fields, ", ")
}

// ScanRow scans the columns of ColumnList followed by extra destinations.
func ScanRow(scanner interface{ Scan(dest ...any) error }, extra ...any) (*Entry, error) {
	return scanEntry(scanner, extra...)
}

func scanEntry(scanner interface{ Scan(dest ...any) error }, extra ...any) (*Entry, error) {
	var (
		entry                   Entry
		origin, category, state string
		createdAt, updatedAt    string
		externalID, description sql.NullString
		genres, developers      sql.NullString
		publisher, releaseDate  sql.NullString
		coverURL, extras        sql.NullString
		source, lastError       sql.NullString
		lastEnriched, attempted sql.NullString
	)
	dest := []any{
		&entry.ID, &entry.Name, &origin, &externalID, &category, &description, &genres, &developers,
		&publisher, &releaseDate, &coverURL, &extras, &state,
		&source, &lastEnriched, &attempted, &lastError,
		&createdAt, &updatedAt,
	}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	entry.Origin = inventory.Origin(origin)
	entry.ExternalID = externalID.String
	entry.Category = inventory.Category(category)
	entry.Description = description.String
	entry.Genres = decodeList(genres)
	entry.Developers = decodeList(developers)
	entry.Publisher = publisher.String
	entry.ReleaseDate = releaseDate.String
	entry.CoverImageURL = coverURL.String
	entry.AdditionalMetadata = decodeMetadata(extras)
	entry.State = State(state)
	entry.EnrichmentSource = source.String
	entry.LastEnrichedAt = sqlitedb.TimePtr(lastEnriched)
	entry.LastAttemptedAt = sqlitedb.TimePtr(attempted)
	entry.LastEnrichmentError = lastError.String
	if t, err := sqlitedb.ParseTime(createdAt); err == nil {
		entry.CreatedAt = t
	}
	if t, err := sqlitedb.ParseTime(updatedAt); err == nil {
		entry.UpdatedAt = t
	}
	return &entry, nil
}

func encodeList(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeList(value sql.NullString) []string {
	if !value.Valid || value.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	return out
}

func encodeMetadata(values map[string]any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeMetadata(value sql.NullString) map[string]any {
	if !value.Valid || value.String == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	return out
}
