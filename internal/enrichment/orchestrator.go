package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"stockpile/internal/catalog"
	"stockpile/internal/config"
	"stockpile/internal/logging"
	"stockpile/internal/providers"
)

const workQueueSize = 64

// ErrNotRunning is returned when work is posted to a stopped orchestrator.
var ErrNotRunning = errors.New("enrichment orchestrator not running")

// Catalog is the part of the catalog store the orchestrator needs.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []int64) ([]*catalog.Entry, error)
	GetUnenriched(ctx context.Context, maxAge time.Duration, limit int) ([]*catalog.Entry, error)
	UpdateEnrichment(ctx context.Context, entry *catalog.Entry) error
	SetState(ctx context.Context, id int64, state catalog.State) error
}

// Options sizes batches and sets acceptance rules.
type Options struct {
	BackgroundBatchSize int
	ForceBatchSize      int
	FreshnessWindow     time.Duration
	ConfidenceThreshold float64
	ProviderTimeout     time.Duration
	// Interval schedules background batches while running. Zero disables.
	Interval time.Duration
}

// OptionsFromConfig maps the [enrichment] section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BackgroundBatchSize: cfg.Enrichment.BackgroundBatchSize,
		ForceBatchSize:      cfg.Enrichment.ForceBatchSize,
		FreshnessWindow:     cfg.FreshnessWindow(),
		ConfidenceThreshold: cfg.Enrichment.ConfidenceThreshold,
		ProviderTimeout:     cfg.ProviderTimeout(),
		Interval:            time.Duration(cfg.Enrichment.IntervalMinutes) * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	if o.BackgroundBatchSize <= 0 {
		o.BackgroundBatchSize = 25
	}
	if o.ForceBatchSize < o.BackgroundBatchSize {
		o.ForceBatchSize = o.BackgroundBatchSize
	}
	if o.FreshnessWindow <= 0 {
		o.FreshnessWindow = 30 * 24 * time.Hour
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.85
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = 15 * time.Second
	}
	return o
}

type work struct {
	trigger Trigger
	ids     []int64
	done    chan BatchResult
}

// Status is a snapshot of the orchestrator for the API and diagnostics.
type Status struct {
	Running   bool         `json:"running"`
	Pending   int          `json:"pending"`
	InFlight  int          `json:"in_flight"`
	LastBatch *BatchResult `json:"last_batch,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// Orchestrator runs enrichment batches against the catalog.
type Orchestrator struct {
	catalog   Catalog
	providers []providers.Provider
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	queue chan work

	mu       sync.Mutex
	inFlight map[int64]struct{}
	running  bool
	cancel   context.CancelFunc
	last     *BatchResult
	lastErr  error
	wg       sync.WaitGroup
}

// New builds an orchestrator. Providers are tried in the order given.
func New(store Catalog, chain []providers.Provider, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:   store,
		providers: chain,
		opts:      opts.withDefaults(),
		logger:    logging.NewComponentLogger(logger, "enrichment"),
		now:       time.Now,
		queue:     make(chan work, workQueueSize),
		inFlight:  make(map[int64]struct{}),
	}
}

// Start launches the loop goroutine.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("enrichment already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	go o.loop(runCtx)
	return nil
}

// Stop cancels the loop and waits for the current batch to wind down.
// Queued work is dropped; the entries stay unenriched in the catalog.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

// Enqueue seeds a background batch with ids. It never blocks; ids dropped
// because the loop is stopped or saturated are picked up by a later batch.
func (o *Orchestrator) Enqueue(ids ...int64) bool {
	if len(ids) == 0 {
		return true
	}
	if !o.isRunning() {
		return false
	}
	select {
	case o.queue <- work{trigger: TriggerEnqueue, ids: append([]int64(nil), ids...)}:
		return true
	default:
		o.logger.Debug("enrichment queue full; ids left for a later batch", logging.Int("count", len(ids)))
		return false
	}
}

// RequestBatch posts a background or force batch without waiting for it.
func (o *Orchestrator) RequestBatch(ctx context.Context, trigger Trigger) error {
	return o.post(ctx, work{trigger: trigger})
}

// RequestBatchAndWait posts a batch and waits for its result.
func (o *Orchestrator) RequestBatchAndWait(ctx context.Context, trigger Trigger) (BatchResult, error) {
	done := make(chan BatchResult, 1)
	if err := o.post(ctx, work{trigger: trigger, done: done}); err != nil {
		return BatchResult{}, err
	}
	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		return BatchResult{}, ctx.Err()
	}
}

func (o *Orchestrator) post(ctx context.Context, item work) error {
	if item.trigger != TriggerBackground && item.trigger != TriggerForce {
		return errors.New("batch trigger must be background or force")
	}
	if !o.isRunning() {
		return ErrNotRunning
	}
	select {
	case o.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the orchestrator.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := Status{Running: o.running, Pending: len(o.queue), InFlight: len(o.inFlight)}
	if o.last != nil {
		last := *o.last
		status.LastBatch = &last
	}
	if o.lastErr != nil {
		status.LastError = o.lastErr.Error()
	}
	return status
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()
	var tick <-chan time.Time
	if o.opts.Interval > 0 {
		ticker := time.NewTicker(o.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-o.queue:
			result, err := o.handle(ctx, item)
			if item.done != nil {
				item.done <- result
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(o.logger, "enrichment batch failed", "enrichment_batch_failed",
					logging.String("trigger", string(item.trigger)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check catalog database access"),
					logging.String(logging.FieldImpact, "entries stay unenriched until the next batch"),
				)
			}
		case <-tick:
			if _, err := o.RunBatch(ctx, TriggerBackground); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Debug("periodic batch failed", logging.Error(err))
			}
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, item work) (BatchResult, error) {
	if item.trigger == TriggerEnqueue {
		return o.RunIDs(ctx, item.ids)
	}
	return o.RunBatch(ctx, item.trigger)
}

func (o *Orchestrator) claim(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id int64) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) record(result BatchResult, err error) {
	o.mu.Lock()
	o.last = &result
	o.lastErr = err
	o.mu.Unlock()
}
