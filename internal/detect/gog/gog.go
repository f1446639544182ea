package gog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"stockpile/internal/detect"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/sqlitedb"
)

// Name is the detector name used in config and reports.
const Name = "gog"

const installedQuery = `
SELECT
	p.productId,
	p.installationPath,
	p.installationDate,
	(SELECT d.title FROM LimitedDetails d WHERE d.productId = p.productId AND d.title IS NOT NULL ORDER BY d.id LIMIT 1)
FROM InstalledBaseProducts p
ORDER BY p.productId`

// Detector reads the GOG Galaxy database.
type Detector struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	known []inventory.Candidate
}

// New builds a GOG detector. An empty path uses DefaultDatabasePath.
func New(path string, logger *slog.Logger) *Detector {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultDatabasePath()
	}
	return &Detector{path: path, logger: logging.NewComponentLogger(logger, "detect.gog")}
}

// DefaultDatabasePath returns where Galaxy stores its database on this
// platform, or "" where Galaxy does not run.
func DefaultDatabasePath() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("ProgramData")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "GOG.com", "Galaxy", "storage", "galaxy-2.0.db")
	case "darwin":
		return "/Users/Shared/GOG.com/Galaxy/Storage/galaxy-2.0.db"
	default:
		return ""
	}
}

func (d *Detector) Name() string { return Name }

func (d *Detector) Origin() inventory.Origin { return inventory.OriginGOG }

func (d *Detector) Generic() bool { return false }

func (d *Detector) IsAvailable(context.Context) bool {
	if d.path == "" {
		return false
	}
	info, err := os.Stat(d.path)
	return err == nil && !info.IsDir()
}

// Detect lists installed base products. A database that cannot be opened or
// lacks the expected tables is reported as a SourceReadError.
func (d *Detector) Detect(ctx context.Context) ([]inventory.Candidate, error) {
	db, err := sqlitedb.Open(ctx, sqlitedb.Options{Path: d.path, ReadOnly: true, MaxOpenConns: 1})
	if err != nil {
		return nil, &detect.SourceReadError{Detector: Name, Path: d.path, Err: err}
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, installedQuery)
	if err != nil {
		return nil, &detect.SourceReadError{Detector: Name, Path: d.path, Err: fmt.Errorf("query installed products: %w", err)}
	}
	defer rows.Close()

	var (
		candidates []inventory.Candidate
		skipped    detect.RecordErrors
	)
	for rows.Next() {
		var (
			productID int64
			path      sql.NullString
			date      sql.NullString
			title     sql.NullString
		)
		if err := rows.Scan(&productID, &path, &date, &title); err != nil {
			skipped.Add(Name, d.path, fmt.Errorf("scan installed product: %w", err))
			continue
		}
		id := strconv.FormatInt(productID, 10)
		name := strings.TrimSpace(title.String)
		if name == "" {
			skipped.Add(Name, d.path, fmt.Errorf("product %s has no title", id))
			continue
		}
		candidates = append(candidates, inventory.Candidate{
			Name:        name,
			Origin:      inventory.OriginGOG,
			ExternalID:  id,
			InstallPath: strings.TrimSpace(path.String),
			InstallTime: sqlitedb.TimeValue(date),
			Category:    inventory.CategoryGame,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &detect.SourceReadError{Detector: Name, Path: d.path, Err: err}
	}

	d.mu.Lock()
	d.known = candidates
	d.mu.Unlock()
	return candidates, skipped.Err()
}

// ClaimFromPath returns the GOG product whose installation path contains path.
func (d *Detector) ClaimFromPath(ctx context.Context, path string) (*inventory.Candidate, bool) {
	d.mu.Lock()
	known := d.known
	d.mu.Unlock()
	if known == nil {
		if !d.IsAvailable(ctx) {
			return nil, false
		}
		var err error
		if known, err = d.Detect(ctx); err != nil && known == nil {
			d.logger.Debug("claim scan failed", logging.Error(err))
			return nil, false
		}
	}
	for _, candidate := range known {
		if detect.UnderPath(path, candidate.InstallPath) {
			c := candidate.Clone()
			return &c, true
		}
	}
	return nil, false
}
