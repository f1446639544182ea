package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stockpile/internal/catalog"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/providers"
)

const errNoMatch = "no provider returned an accepted match"

// RunBatch selects never-enriched and stale entries, oldest first, up to the
// trigger's batch size, and enriches them on the calling goroutine.
func (o *Orchestrator) RunBatch(ctx context.Context, trigger Trigger) (BatchResult, error) {
	limit := o.opts.BackgroundBatchSize
	if trigger == TriggerForce {
		limit = o.opts.ForceBatchSize
	}
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, trigger, "select entries", err)
	}
	entries, err := o.catalog.GetUnenriched(ctx, o.opts.FreshnessWindow, limit)
	if err != nil {
		return o.abort(ctx, trigger, "select entries", err)
	}
	return o.run(ctx, trigger, entries)
}

// RunIDs enriches the given entries, skipping any still fresh, up to the
// background batch size.
func (o *Orchestrator) RunIDs(ctx context.Context, ids []int64) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, TriggerEnqueue, "load entries", err)
	}
	entries, err := o.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return o.abort(ctx, TriggerEnqueue, "load entries", err)
	}
	now := o.now()
	selected := entries[:0]
	for _, entry := range entries {
		if entry.IsFresh(now, o.opts.FreshnessWindow) {
			continue
		}
		selected = append(selected, entry)
		if len(selected) == o.opts.BackgroundBatchSize {
			break
		}
	}
	return o.run(ctx, TriggerEnqueue, selected)
}

// abort records a batch that ended before any entry was selected. A
// cancelled context marks the batch cancelled rather than failed.
func (o *Orchestrator) abort(ctx context.Context, trigger Trigger, op string, err error) (BatchResult, error) {
	result := o.newResult(trigger)
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) {
		if ctxErr == nil {
			ctxErr = err
		}
		result.Cancelled = true
		o.record(result, ctxErr)
		return result, ctxErr
	}
	o.record(result, err)
	return result, fmt.Errorf("%s: %w", op, err)
}

func (o *Orchestrator) newResult(trigger Trigger) BatchResult {
	return BatchResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: o.now().UTC(),
		Providers: make(map[string]ProviderTally),
	}
}

func (o *Orchestrator) run(ctx context.Context, trigger Trigger, entries []*catalog.Entry) (BatchResult, error) {
	result := o.newResult(trigger)
	result.Selected = len(entries)
	start := time.Now()
	logger := o.logger.With(logging.String("batch_id", result.ID), logging.String("trigger", string(trigger)))

	var err error
	for _, entry := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Cancelled = true
			err = ctxErr
			break
		}
		if !o.claim(entry.ID) {
			result.Busy++
			continue
		}
		outcome := o.enrichEntry(ctx, logger, entry, &result)
		o.release(entry.ID)
		if outcome.State == "" {
			// Interrupted mid-entry; the entry was restored.
			result.Cancelled = true
			err = ctx.Err()
			break
		}
		result.Entries = append(result.Entries, outcome)
	}
	result.Duration = time.Since(start)
	o.record(result, err)

	if result.Selected > 0 {
		logger.Info("enrichment batch finished",
			logging.Int("selected", result.Selected),
			logging.Int("enriched", result.Enriched),
			logging.Int("not_found", result.NotFound),
			logging.Int("failed", result.Failed),
			logging.Int("skipped", result.Skipped),
			logging.Duration("duration", result.Duration),
		)
	}
	return result, err
}

// enrichEntry runs the provider chain for one entry and persists the outcome.
// A zero EntryResult.State means the batch context was cancelled and the
// entry was put back as it was.
func (o *Orchestrator) enrichEntry(ctx context.Context, batchLogger *slog.Logger, entry *catalog.Entry, result *BatchResult) (out EntryResult) {
	logger := batchLogger.With(logging.Int64(logging.FieldEntryID, entry.ID), logging.String("name", entry.Name))
	out = EntryResult{ID: entry.ID, Name: entry.Name}
	original := entry.Clone()

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "enrichment panicked", "enrichment_panic",
				logging.String("panic", fmt.Sprint(r)),
			)
			failed := original.Clone()
			o.markFailed(ctx, logger, failed, fmt.Sprintf("panic: %v", r))
			result.Failed++
			out = EntryResult{ID: entry.ID, Name: entry.Name, State: catalog.StateFailed, Error: failed.LastEnrichmentError}
		}
	}()

	kind := entry.Category.Kind()
	chain := o.chainFor(kind)
	if kind == inventory.KindNone || len(chain) == 0 {
		o.markSkipped(ctx, logger, entry)
		result.Skipped++
		out.State = catalog.StateSkipped
		return out
	}

	if err := o.catalog.SetState(context.WithoutCancel(ctx), entry.ID, catalog.StateEnriching); err != nil {
		o.markFailed(ctx, logger, entry, fmt.Sprintf("mark enriching: %v", err))
		result.Failed++
		out.State, out.Error = catalog.StateFailed, entry.LastEnrichmentError
		return out
	}

	var callErrs []error
	for _, provider := range chain {
		if ctx.Err() != nil {
			o.restore(ctx, logger, original)
			return EntryResult{}
		}
		found, outcome, err := o.lookup(ctx, provider, entry)
		result.tally(provider.Name(), outcome)
		switch outcome {
		case OutcomeError:
			callErrs = append(callErrs, fmt.Errorf("%s: %w", provider.Name(), err))
			logging.WarnWithContext(logger, "provider call failed", "provider_call_failed",
				logging.String(logging.FieldProvider, provider.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check network access and provider configuration"),
				logging.String(logging.FieldImpact, "next provider is tried"),
			)
		case OutcomeRejected:
			logger.Debug("provider match below threshold",
				logging.String(logging.FieldProvider, provider.Name()),
				logging.Float64("confidence", found.Confidence),
				logging.Float64("threshold", o.opts.ConfidenceThreshold),
			)
		case OutcomeAccepted:
			apply(entry, provider.Name(), found, o.now())
			if err := o.catalog.UpdateEnrichment(context.WithoutCancel(ctx), entry); err != nil {
				o.markFailed(ctx, logger, original.Clone(), fmt.Sprintf("persist metadata: %v", err))
				result.Failed++
				out.State, out.Error = catalog.StateFailed, err.Error()
				return out
			}
			logger.Info("entry enriched",
				logging.String(logging.FieldProvider, provider.Name()),
				logging.Float64("confidence", found.Confidence),
			)
			result.Enriched++
			out.State, out.Source = catalog.StateEnriched, provider.Name()
			return out
		}
	}

	message := errNoMatch
	if len(callErrs) > 0 {
		message = errors.Join(callErrs...).Error()
		result.Failed++
	} else {
		result.NotFound++
	}
	o.markFailed(ctx, logger, entry, message)
	out.State, out.Error = catalog.StateFailed, message
	return out
}

// chainFor returns the providers serving kind, in configured order.
func (o *Orchestrator) chainFor(kind inventory.Kind) []providers.Provider {
	if kind == inventory.KindNone {
		return nil
	}
	var chain []providers.Provider
	for _, p := range o.providers {
		if providers.Serves(p, kind) {
			chain = append(chain, p)
		}
	}
	return chain
}

// lookup asks one provider about entry: by external id when the entry has
// one, falling back to a name search when the provider cannot resolve ids
// for that origin or found nothing by id.
func (o *Orchestrator) lookup(ctx context.Context, p providers.Provider, entry *catalog.Entry) (*providers.Result, Outcome, error) {
	if !p.IsAvailable() {
		return nil, OutcomeUnavailable, nil
	}
	// Calls in flight finish or time out on their own; cancellation is
	// observed between providers.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.ProviderTimeout)
	defer cancel()

	var (
		found *providers.Result
		err   error
	)
	if entry.HasExternalID() {
		found, err = p.LookupByExternalID(callCtx, entry.Origin, entry.ExternalID)
		if errors.Is(err, providers.ErrUnsupported) {
			found, err = nil, nil
		}
	}
	if err == nil && found == nil {
		found, err = p.LookupByName(callCtx, entry.Name, lookupContext(entry))
	}
	switch {
	case errors.Is(err, providers.ErrUnavailable):
		return nil, OutcomeUnavailable, nil
	case err != nil:
		return nil, OutcomeError, err
	case found == nil:
		return nil, OutcomeNoMatch, nil
	case found.Confidence < o.opts.ConfidenceThreshold:
		return found, OutcomeRejected, nil
	default:
		return found, OutcomeAccepted, nil
	}
}

func lookupContext(entry *catalog.Entry) providers.LookupContext {
	lc := providers.LookupContext{
		Origin:     entry.Origin,
		ExternalID: entry.ExternalID,
		Category:   entry.Category,
		Publisher:  entry.Publisher,
	}
	if homepage, ok := entry.AdditionalMetadata[providers.ExtraHomepage].(string); ok {
		lc.Homepage = homepage
	}
	return lc
}

func (o *Orchestrator) markSkipped(ctx context.Context, logger *slog.Logger, entry *catalog.Entry) {
	now := o.now().UTC()
	entry.State = catalog.StateSkipped
	entry.EnrichmentSource = ""
	entry.LastEnrichedAt = &now
	entry.LastAttemptedAt = &now
	entry.LastEnrichmentError = ""
	if err := o.catalog.UpdateEnrichment(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("failed to record skipped entry", logging.Error(err))
		return
	}
	logger.Debug("entry skipped", logging.String("category", string(entry.Category)))
}

func (o *Orchestrator) markFailed(ctx context.Context, logger *slog.Logger, entry *catalog.Entry, message string) {
	now := o.now().UTC()
	entry.State = catalog.StateFailed
	entry.LastAttemptedAt = &now
	entry.LastEnrichmentError = message
	if err := o.catalog.UpdateEnrichment(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("failed to record enrichment failure", logging.Error(err))
		return
	}
	logger.Debug("entry not enriched", logging.String("reason", message))
}

// restore puts an interrupted entry back in its previous state.
func (o *Orchestrator) restore(ctx context.Context, logger *slog.Logger, original *catalog.Entry) {
	if err := o.catalog.UpdateEnrichment(context.WithoutCancel(ctx), original); err != nil {
		logger.Warn("failed to restore interrupted entry", logging.Error(err))
	}
}
