package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockpile/internal/inventory"
)

// Detector produces raw candidates from one origin.
type Detector interface {
	Name() string
	Origin() inventory.Origin
	// Generic is true only for the OS registry scan.
	Generic() bool
	IsAvailable(ctx context.Context) bool
	Detect(ctx context.Context) ([]inventory.Candidate, error)
}

// PathClaimer is implemented by detectors that recognise their own install
// layout and can describe a generic candidate found at path.
type PathClaimer interface {
	ClaimFromPath(ctx context.Context, path string) (*inventory.Candidate, bool)
}

// SourceReadError reports an artifact a detector could not read or parse.
type SourceReadError struct {
	Detector string
	Path     string
	Err      error
}

func (e *SourceReadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Detector, e.Err)
	}
	return fmt.Sprintf("%s: read %s: %v", e.Detector, e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// RecordErrors collects per-record read failures. A detector returns it next
// to the candidates it could read; it does not fail the detector.
type RecordErrors []*SourceReadError

// Add records a skipped artifact.
func (r *RecordErrors) Add(detector, path string, err error) {
	*r = append(*r, &SourceReadError{Detector: detector, Path: path, Err: err})
}

// Err returns nil when nothing was skipped.
func (r RecordErrors) Err() error {
	if len(r) == 0 {
		return nil
	}
	return r
}

func (r RecordErrors) Error() string {
	if len(r) == 1 {
		return r[0].Error()
	}
	parts := make([]string, 0, min(len(r), 3))
	for _, e := range r[:min(len(r), 3)] {
		parts = append(parts, e.Error())
	}
	msg := fmt.Sprintf("%d records skipped: %s", len(r), strings.Join(parts, "; "))
	if len(r) > 3 {
		msg += "; ..."
	}
	return msg
}

// Unwrap exposes the individual errors to errors.Is / errors.As.
func (r RecordErrors) Unwrap() []error {
	out := make([]error, len(r))
	for i, e := range r {
		out[i] = e
	}
	return out
}

// splitErr separates skipped records from a detector failure.
func splitErr(err error) (RecordErrors, error) {
	if err == nil {
		return nil, nil
	}
	var records RecordErrors
	if errors.As(err, &records) {
		return records, nil
	}
	return nil, err
}

// UnderPath reports whether path equals root or lies inside it. Comparison is
// case-insensitive and separator-agnostic since launcher records mix styles.
func UnderPath(path, root string) bool {
	p := cleanPath(path)
	r := cleanPath(root)
	if p == "" || r == "" {
		return false
	}
	return p == r || strings.HasPrefix(p, r+"/")
}

func cleanPath(path string) string {
	path = strings.TrimSpace(strings.Trim(strings.TrimSpace(path), `"`))
	path = strings.ReplaceAll(path, `\`, "/")
	path = strings.TrimRight(path, "/")
	return strings.ToLower(path)
}
