package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"stockpile/internal/api"
	"stockpile/internal/catalog"
	"stockpile/internal/config"
	"stockpile/internal/diagnostics"
	"stockpile/internal/enrichment"
	"stockpile/internal/installs"
	"stockpile/internal/logging"
	"stockpile/internal/providers"
	"stockpile/internal/refresh"
)

// ErrEnrichmentDisabled is returned for enrichment requests when
// enrichment.enabled is false.
var ErrEnrichmentDisabled = errors.New("enrichment is disabled in config")

// Options carries the daemon's collaborators.
type Options struct {
	Config    *config.Config
	Catalog   *catalog.Store
	Installs  *installs.Store
	Refresher *refresh.Refresher
	Enricher  *enrichment.Orchestrator
	// Providers reports provider availability for diagnostics.
	Providers func() []providers.Status
	Logger    *slog.Logger
}

// Daemon runs refresh and enrichment in the background and serves the API.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *catalog.Store
	installs  *installs.Store
	refresher *refresh.Refresher
	enricher  *enrichment.Orchestrator
	providers func() []providers.Status

	lockPath   string
	lock       *flock.Flock
	refreshNow chan struct{}

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	api     *apiServer
	started time.Time
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Catalog == nil || opts.Installs == nil || opts.Refresher == nil || opts.Enricher == nil {
		return nil, errors.New("daemon requires config, stores, refresher, and enrichment orchestrator")
	}
	statuses := opts.Providers
	if statuses == nil {
		statuses = func() []providers.Status { return nil }
	}
	lockPath := opts.Config.DaemonLockPath()
	return &Daemon{
		cfg:        opts.Config,
		logger:     logging.NewComponentLogger(opts.Logger, "daemon"),
		catalog:    opts.Catalog,
		installs:   opts.Installs,
		refresher:  opts.Refresher,
		enricher:   opts.Enricher,
		providers:  statuses,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		refreshNow: make(chan struct{}, 1),
	}, nil
}

// Start acquires the instance lock, starts enrichment, binds the API and
// launches the refresh loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stockpile daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.cfg.Enrichment.Enabled {
		if err := d.enricher.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start enrichment: %w", err)
		}
	}

	server, err := newAPIServer(d.cfg.Paths.APIBind, d.cfg.Paths.APIToken, d, d.logger)
	if err == nil && server != nil {
		err = server.listen()
	}
	if err != nil {
		cancel()
		d.enricher.Stop()
		_ = d.lock.Unlock()
		return err
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	if server != nil {
		group.Go(func() error { return server.serve(groupCtx) })
	}
	group.Go(func() error { return d.refreshLoop(groupCtx) })

	d.mu.Lock()
	d.cancel = cancel
	d.group = group
	d.api = server
	d.started = time.Now().UTC()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("stockpile daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

// Wait blocks until the run group exits and returns its first error.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	group := d.group
	d.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}

	d.mu.Lock()
	cancel, group := d.cancel, d.group
	d.cancel, d.group, d.api = nil, nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		if err := group.Wait(); err != nil {
			d.logger.Warn("daemon task exited with error", logging.Error(err))
		}
	}
	d.enricher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("stockpile daemon stopped")
}

// Running reports whether the daemon is started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound API address, or "" when the API is off.
func (d *Daemon) APIAddress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

// TriggerRefresh schedules a detection pass on the refresh loop. It reports
// false when one is already scheduled.
func (d *Daemon) TriggerRefresh() bool {
	select {
	case d.refreshNow <- struct{}{}:
		return true
	default:
		return false
	}
}

// Enrich posts an enrichment batch to the orchestrator.
func (d *Daemon) Enrich(ctx context.Context, force bool) (enrichment.Trigger, error) {
	trigger := enrichment.TriggerBackground
	if force {
		trigger = enrichment.TriggerForce
	}
	if !d.cfg.Enrichment.Enabled {
		return trigger, ErrEnrichmentDisabled
	}
	return trigger, d.enricher.RequestBatch(ctx, trigger)
}

// Status returns daemon runtime information.
func (d *Daemon) Status() api.DaemonStatus {
	status := api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		CatalogDBPath:  d.cfg.CatalogDBPath(),
		InstallsDBPath: d.cfg.InstallsDBPath(),
		LockFilePath:   d.lockPath,
		Refreshing:     d.refresher.Running(),
		Enrichment:     api.FromEnrichmentStatus(d.enricher.Status(), d.cfg.Enrichment.Enabled),
	}
	d.mu.Lock()
	if !d.started.IsZero() && status.Running {
		status.StartedAt = d.started.Format(time.RFC3339)
	}
	d.mu.Unlock()
	if last, ok := d.refresher.LastSummary(); ok {
		summary := api.FromRefreshSummary(last)
		status.LastRefresh = &summary
	}
	return status
}

// Inventory lists installations joined with their catalog entries.
func (d *Daemon) Inventory(ctx context.Context) ([]api.InventoryItem, error) {
	rows, err := d.installs.GetJoinedWithCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return api.FromJoinedList(rows), nil
}

// Diagnostics builds the diagnostics report.
func (d *Daemon) Diagnostics(ctx context.Context) (*diagnostics.Report, error) {
	in := diagnostics.Inputs{
		Catalog:   d.catalog,
		Installs:  d.installs,
		Config:    d.cfg,
		Providers: d.providers(),
	}
	if last, ok := d.refresher.LastSummary(); ok {
		in.Detectors = last.Reports
	}
	return diagnostics.Build(ctx, in)
}

func (d *Daemon) refreshLoop(ctx context.Context) error {
	if d.cfg.Workflow.RefreshOnStart {
		d.runRefresh(ctx)
	}
	var tick <-chan time.Time
	if minutes := d.cfg.Workflow.RefreshIntervalMinutes; minutes > 0 {
		ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.refreshNow:
			d.runRefresh(ctx)
		case <-tick:
			d.runRefresh(ctx)
		}
	}
}

func (d *Daemon) runRefresh(ctx context.Context) {
	_, err := d.refresher.Refresh(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, refresh.ErrRefreshInProgress):
		d.logger.Debug("refresh already running; re-run queued")
	default:
		logging.WarnWithContext(d.logger, "refresh failed", "refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `stockpile refresh` to see detector output"),
			logging.String(logging.FieldImpact, "inventory stays as of the last successful pass"),
		)
	}
}
