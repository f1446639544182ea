package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockpile/internal/catalog"
	"stockpile/internal/config"
	"stockpile/internal/detect"
	"stockpile/internal/providers"
)

const defaultLimit = 50

// Catalog is the read side of the catalog store.
type Catalog interface {
	Stats(ctx context.Context) (catalog.Stats, error)
	ListByState(ctx context.Context, limit int, states ...catalog.State) ([]*catalog.Entry, error)
}

// Installs counts installation rows.
type Installs interface {
	Count(ctx context.Context) (int, error)
}

// Inputs are the sources Build reads. Only Catalog is required.
type Inputs struct {
	Catalog   Catalog
	Installs  Installs
	Config    *config.Config
	Providers []providers.Status
	// Detectors are the reports of the last refresh, if one ran.
	Detectors []detect.Report
	// Limit bounds the failed and never-attempted lists.
	Limit int
}

// Build assembles a diagnostics report. Source failures are recorded in
// Report.Errors rather than aborting the report.
func Build(ctx context.Context, in Inputs) (*Report, error) {
	if in.Catalog == nil {
		return nil, errors.New("diagnostics requires a catalog")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	r := &Report{GeneratedAt: time.Now().UTC(), Providers: in.Providers}

	stats, err := in.Catalog.Stats(ctx)
	if err != nil {
		r.addError("catalog stats: %v", err)
	}
	r.Entries = stats.Total
	r.ByState = stats.ByState
	r.ByOrigin = stats.ByOrigin
	r.ByCategory = stats.ByCategory

	if in.Installs != nil {
		if r.Installations, err = in.Installs.Count(ctx); err != nil {
			r.addError("count installations: %v", err)
		}
	}

	failed, err := in.Catalog.ListByState(ctx, limit, catalog.StateFailed)
	if err != nil {
		r.addError("list failed entries: %v", err)
	}
	for _, entry := range failed {
		r.Failed = append(r.Failed, summarize(entry))
	}

	// Entries interrupted mid-batch are restored to unenriched with their
	// previous attempt time, so only a nil attempt means never tried.
	pending, err := in.Catalog.ListByState(ctx, stats.ByState[catalog.StateUnenriched]+limit, catalog.StateUnenriched)
	if err != nil {
		r.addError("list unenriched entries: %v", err)
	}
	for _, entry := range pending {
		if entry.LastAttemptedAt != nil {
			continue
		}
		r.NeverAttempted = append(r.NeverAttempted, summarize(entry))
		if len(r.NeverAttempted) == limit {
			break
		}
	}

	for _, report := range in.Detectors {
		d := DetectorReport{
			Name:       report.Detector,
			Origin:     report.Origin,
			Available:  report.Available,
			Candidates: report.Candidates,
			Skipped:    report.Skipped,
			Claimed:    report.Claimed,
			DurationMS: report.Duration.Milliseconds(),
		}
		if report.Err != nil {
			d.Error = report.Err.Error()
		}
		r.Detectors = append(r.Detectors, d)
	}

	if in.Config != nil {
		r.Checks = RunChecks(in.Config)
		r.Warnings = append(r.Warnings, in.Config.Warnings()...)
	}
	for _, status := range in.Providers {
		if !status.Enabled || status.Available || mentioned(r.Warnings, status.Name) {
			continue
		}
		r.Warnings = append(r.Warnings, fmt.Sprintf("provider %s is unavailable: %s", status.Name, status.Reason))
	}
	return r, nil
}

// mentioned reports whether a config warning already covers provider.
func mentioned(warnings []string, provider string) bool {
	key := "providers." + provider
	for _, w := range warnings {
		if strings.Contains(w, key) {
			return true
		}
	}
	return false
}
