// Package refresh runs detection passes: detect, merge, persist catalog
// entries and installations, prune stale installs, then hand new entries to
// enrichment.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"stockpile/internal/catalog"
	"stockpile/internal/detect"
	"stockpile/internal/installs"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/merge"
)

var (
	// ErrRefreshInProgress is returned when a pass is already running in
	// this process. One re-run is queued behind it.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrLocked is returned when another process holds the refresh lock.
	ErrLocked = errors.New("refresh lock held by another process")
)

// Catalog is the catalog store surface a pass writes to.
type Catalog interface {
	FindOrCreate(ctx context.Context, name string, origin inventory.Origin, externalID string, category inventory.Category) (*catalog.Entry, bool, error)
	SeedHints(ctx context.Context, id int64, publisher, homepage string) (bool, error)
}

// Installs is the installation store surface a pass writes to.
type Installs interface {
	Upsert(ctx context.Context, catalogID int64, facts installs.Facts, passID string) (*installs.Installation, error)
	PruneStale(ctx context.Context, seenIDs []int64) (int64, error)
}

// Enqueuer receives catalog ids that need enrichment.
type Enqueuer interface {
	Enqueue(ids ...int64) bool
}

// Summary describes one completed pass.
type Summary struct {
	PassID       string          `json:"pass_id"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     time.Duration   `json:"duration"`
	Detected     int             `json:"detected"`
	Merged       int             `json:"merged"`
	Collapsed    int             `json:"collapsed"`
	Upserted     int             `json:"upserted"`
	Created      []int64         `json:"created,omitempty"`
	Enqueued     int             `json:"enqueued"`
	Pruned       int64           `json:"pruned"`
	PruneSkipped bool            `json:"prune_skipped,omitempty"`
	Errors       int             `json:"errors"`
	Reports      []detect.Report `json:"-"`
}

// Refresher runs detection passes. Passes in one process never overlap; the
// lock file keeps passes in different processes apart.
type Refresher struct {
	set      *detect.Set
	catalog  Catalog
	installs Installs
	enqueuer Enqueuer
	lockPath string
	logger   *slog.Logger

	// state guards running and pending together so a request made while a
	// pass winds down is either seen by the runner or starts its own pass.
	state   sync.Mutex
	running bool
	pending bool

	mu   sync.Mutex
	last *Summary
}

// New builds a refresher. enqueuer may be nil when nothing consumes new
// entries, and an empty lockPath disables the cross-process lock.
func New(set *detect.Set, cat Catalog, inst Installs, enqueuer Enqueuer, lockPath string, logger *slog.Logger) *Refresher {
	return &Refresher{
		set:      set,
		catalog:  cat,
		installs: inst,
		enqueuer: enqueuer,
		lockPath: lockPath,
		logger:   logging.NewComponentLogger(logger, "refresh"),
	}
}

// Refresh runs a pass. Callers arriving while a pass is underway get
// ErrRefreshInProgress and collapse into a single queued re-run, which the
// active caller performs before returning.
func (r *Refresher) Refresh(ctx context.Context) (Summary, error) {
	r.state.Lock()
	if r.running {
		r.pending = true
		r.state.Unlock()
		return Summary{}, ErrRefreshInProgress
	}
	r.running = true
	r.state.Unlock()

	idle := false
	defer func() {
		if !idle {
			r.finish(false)
		}
	}()

	summary, err := r.pass(ctx)
	for r.finish(err == nil && ctx.Err() == nil) {
		r.logger.Debug("running queued refresh")
		summary, err = r.pass(ctx)
	}
	idle = true
	return summary, err
}

// finish consumes a queued re-run when allowed and reports whether one is
// due. Otherwise it clears the running flag.
func (r *Refresher) finish(allowRerun bool) bool {
	r.state.Lock()
	defer r.state.Unlock()
	if r.pending && allowRerun {
		r.pending = false
		return true
	}
	r.pending = false
	r.running = false
	return false
}

// Running reports whether a pass is underway.
func (r *Refresher) Running() bool {
	r.state.Lock()
	defer r.state.Unlock()
	return r.running
}

// LastSummary returns the most recent completed pass, if any.
func (r *Refresher) LastSummary() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Summary{}, false
	}
	return *r.last, true
}

func (r *Refresher) pass(ctx context.Context) (Summary, error) {
	if r.lockPath != "" {
		lock := flock.New(r.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return Summary{}, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !ok {
			return Summary{}, ErrLocked
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				r.logger.Warn("failed to release refresh lock", logging.Error(err))
			}
		}()
	}

	summary := Summary{PassID: uuid.NewString(), StartedAt: time.Now().UTC()}
	ctx = logging.WithCorrelationID(ctx, summary.PassID)
	logger := logging.WithContext(ctx, r.logger)
	start := time.Now()

	result := r.set.Run(ctx)
	summary.Reports = result.Reports
	summary.Detected = len(result.Detections)
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	merged, stats := merge.Merge(result.Detections)
	summary.Merged = stats.Output
	summary.Collapsed = stats.Collapsed

	var (
		seen     []int64
		pending  []int64
		complete = true
	)
	for _, detection := range merged {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		c := detection.Candidate
		c.SetAttr(inventory.AttrSource, detection.Detector)
		entry, created, err := r.catalog.FindOrCreate(ctx, c.Name, c.Origin, c.ExternalID, c.Category)
		if err != nil {
			complete = false
			summary.Errors++
			logging.WarnWithContext(logger, "catalog upsert failed", "catalog_upsert_failed",
				logging.String("name", c.Name),
				logging.String("origin", string(c.Origin)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale install pruning skipped for this pass"),
			)
			continue
		}
		if created {
			summary.Created = append(summary.Created, entry.ID)
		}
		if _, err := r.catalog.SeedHints(ctx, entry.ID, c.Attributes[inventory.AttrPublisher], c.Attributes[inventory.AttrHomepage]); err != nil {
			logger.Debug("seeding lookup hints failed", logging.Int64(logging.FieldEntryID, entry.ID), logging.Error(err))
		}

		row, err := r.installs.Upsert(ctx, entry.ID, installs.FactsFromCandidate(c), summary.PassID)
		if err != nil {
			complete = false
			summary.Errors++
			logging.WarnWithContext(logger, "installation upsert failed", "install_upsert_failed",
				logging.Int64(logging.FieldEntryID, entry.ID),
				logging.String("install_path", c.InstallPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale install pruning skipped for this pass"),
			)
			continue
		}
		seen = append(seen, row.ID)
		summary.Upserted++
		if created || entry.LastEnrichedAt == nil {
			pending = append(pending, entry.ID)
		}
	}

	switch {
	case !result.AllSucceeded():
		summary.PruneSkipped = true
		logger.Info("stale install pruning skipped; a detector failed")
	case !complete:
		summary.PruneSkipped = true
	default:
		pruned, err := r.installs.PruneStale(ctx, seen)
		if err != nil {
			return summary, fmt.Errorf("prune stale installs: %w", err)
		}
		summary.Pruned = pruned
	}

	if len(pending) > 0 && r.enqueuer != nil {
		if r.enqueuer.Enqueue(pending...) {
			summary.Enqueued = len(pending)
		} else {
			logger.Debug("enrichment not accepting work; entries wait for the next batch", logging.Int("count", len(pending)))
		}
	}

	summary.Duration = time.Since(start)
	r.mu.Lock()
	last := summary
	r.last = &last
	r.mu.Unlock()

	logger.Info("refresh finished",
		logging.Int("detected", summary.Detected),
		logging.Int("merged", summary.Merged),
		logging.Int("created", len(summary.Created)),
		logging.Int64("pruned", summary.Pruned),
		logging.Int("errors", summary.Errors),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}
