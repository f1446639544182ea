package detect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stockpile/internal/inventory"
	"stockpile/internal/logging"
)

// Report summarises one detector's contribution to a pass.
type Report struct {
	Detector   string
	Origin     inventory.Origin
	Available  bool
	Candidates int
	Skipped    int
	Claimed    int
	Err        error
	Duration   time.Duration
}

// Succeeded reports whether the detector either was unavailable or completed.
// Skipped records do not count as failure.
func (r Report) Succeeded() bool {
	return !r.Available || r.Err == nil
}

// Result is the outcome of Set.Run.
type Result struct {
	Detections []inventory.Detection
	Reports    []Report
}

// AllSucceeded reports whether every available detector completed.
func (r Result) AllSucceeded() bool {
	for _, report := range r.Reports {
		if !report.Succeeded() {
			return false
		}
	}
	return true
}

// Set is an ordered list of detectors. Registration order decides ties in the
// merge step.
type Set struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewSet returns a set running detectors in the given order.
func NewSet(logger *slog.Logger, detectors ...Detector) *Set {
	return &Set{
		detectors: detectors,
		logger:    logging.NewComponentLogger(logger, "detect"),
	}
}

// Detectors returns the registered detectors.
func (s *Set) Detectors() []Detector {
	return append([]Detector(nil), s.detectors...)
}

// Run executes every available detector, then offers generic candidates to
// path claimers. It never fails; problems are carried in the reports.
func (s *Set) Run(ctx context.Context) Result {
	logger := logging.WithContext(ctx, s.logger)
	var (
		result   Result
		claimers []claimer
	)
	for _, detector := range s.detectors {
		if ctx.Err() != nil {
			break
		}
		report := Report{Detector: detector.Name(), Origin: detector.Origin()}
		if !detector.IsAvailable(ctx) {
			logger.Debug("detector unavailable", logging.String(logging.FieldDetector, detector.Name()))
			result.Reports = append(result.Reports, report)
			continue
		}
		report.Available = true
		if c, ok := detector.(PathClaimer); ok && !detector.Generic() {
			claimers = append(claimers, claimer{name: detector.Name(), PathClaimer: c})
		}

		started := time.Now()
		candidates, err := s.detect(ctx, detector)
		report.Duration = time.Since(started)
		skipped, failure := splitErr(err)
		report.Skipped = len(skipped)
		report.Err = failure
		for _, rec := range skipped {
			logger.Debug("skipped unreadable record",
				logging.String(logging.FieldDetector, detector.Name()),
				logging.String("path", rec.Path),
				logging.Error(rec.Err),
			)
		}
		if failure != nil {
			logging.WarnWithContext(logger, "detector failed; continuing with remaining detectors", "detector_failed",
				logging.String(logging.FieldDetector, detector.Name()),
				logging.Error(failure),
				logging.String(logging.FieldErrorHint, "check the launcher install and configured paths"),
				logging.String(logging.FieldImpact, "installs from this source are not refreshed and stale rows are kept"),
			)
		}

		for _, candidate := range candidates {
			if candidate.Origin == "" {
				candidate.Origin = detector.Origin()
			}
			result.Detections = append(result.Detections, inventory.Detection{
				Candidate: candidate,
				Detector:  detector.Name(),
				Generic:   detector.Generic(),
			})
		}
		report.Candidates = len(candidates)
		logger.Info("detector finished",
			logging.String(logging.FieldDetector, detector.Name()),
			logging.Int("candidates", len(candidates)),
			logging.Int("skipped", len(skipped)),
			logging.Duration("duration", report.Duration),
		)
		result.Reports = append(result.Reports, report)
	}

	if len(claimers) > 0 {
		s.claim(ctx, &result, claimers)
	}
	return result
}

// detect calls the detector, converting a panic into a failure.
func (s *Set) detect(ctx context.Context, detector Detector) (candidates []inventory.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidates = nil
			err = &SourceReadError{Detector: detector.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return detector.Detect(ctx)
}

type claimer struct {
	name string
	PathClaimer
}

func (s *Set) claim(ctx context.Context, result *Result, claimers []claimer) {
	claimedBy := make(map[string]int)
	for i, detection := range result.Detections {
		if !detection.Generic || detection.InstallPath == "" {
			continue
		}
		for _, c := range claimers {
			claimed, ok := c.ClaimFromPath(ctx, detection.InstallPath)
			if !ok || claimed == nil {
				continue
			}
			replacement := claimed.Clone()
			if replacement.InstallPath == "" {
				replacement.InstallPath = detection.InstallPath
			}
			if replacement.IconHint == "" {
				replacement.IconHint = detection.IconHint
			}
			replacement.AbsorbAttributes(detection.Attributes)
			replacement.SetAttr("claimed_from", detection.Detector)
			result.Detections[i] = inventory.Detection{
				Candidate: replacement,
				Detector:  c.name,
				Generic:   false,
			}
			claimedBy[c.name]++
			break
		}
	}
	for i := range result.Reports {
		result.Reports[i].Claimed = claimedBy[result.Reports[i].Detector]
	}
}
