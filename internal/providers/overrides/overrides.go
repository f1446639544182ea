// Package overrides serves user curated metadata from a YAML file. Records
// are keyed by origin and external id, by name, or both; a hit is exact and
// carries confidence 1, so overrides always win over network providers.
package overrides

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"stockpile/internal/inventory"
	"stockpile/internal/providers"
	"stockpile/internal/textutil"
)

// Name identifies the provider in catalog entries and diagnostics.
const Name = "overrides"

// Record is one curated entry in the overrides file.
type Record struct {
	Name          string         `yaml:"name"`
	Origin        string         `yaml:"origin"`
	ExternalID    string         `yaml:"external_id"`
	Title         string         `yaml:"title"`
	Description   string         `yaml:"description"`
	Genres        []string       `yaml:"genres"`
	Developers    []string       `yaml:"developers"`
	Publisher     string         `yaml:"publisher"`
	ReleaseDate   string         `yaml:"release_date"`
	CoverImageURL string         `yaml:"cover_image_url"`
	Extras        map[string]any `yaml:"extras"`
}

type file struct {
	Overrides []Record `yaml:"overrides"`
}

// Provider implements providers.Provider over the overrides file. The file
// is re-read whenever its modification time changes.
type Provider struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	byID    map[string]Record
	byName  map[string]Record
	loadErr error
}

var _ providers.Provider = (*Provider)(nil)

// New builds the provider for path. The file need not exist yet.
func New(path string) *Provider {
	return &Provider{path: strings.TrimSpace(path)}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Kinds() []inventory.Kind {
	return []inventory.Kind{inventory.KindGame, inventory.KindSoftware}
}

// IsAvailable reports whether the file exists and parses.
func (p *Provider) IsAvailable() bool {
	return p.load() == nil
}

func (p *Provider) UnavailableReason() string {
	if err := p.load(); err != nil {
		return err.Error()
	}
	return ""
}

// LookupByExternalID returns the record keyed by origin and id.
func (p *Provider) LookupByExternalID(_ context.Context, origin inventory.Origin, id string) (*providers.Result, error) {
	if err := p.load(); err != nil {
		return nil, providers.ErrUnavailable
	}
	p.mu.Lock()
	record, ok := p.byID[idKey(string(origin), id)]
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return record.result(), nil
}

// LookupByName returns the record whose name normalizes to the same key.
func (p *Provider) LookupByName(_ context.Context, name string, lc providers.LookupContext) (*providers.Result, error) {
	if err := p.load(); err != nil {
		return nil, providers.ErrUnavailable
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if lc.ExternalID != "" {
		if record, ok := p.byID[idKey(string(lc.Origin), lc.ExternalID)]; ok {
			return record.result(), nil
		}
	}
	record, ok := p.byName[textutil.NormalizeName(name)]
	if !ok {
		return nil, nil
	}
	return record.result(), nil
}

func (p *Provider) load() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return errors.New("overrides path not configured")
	}
	info, err := os.Stat(p.path)
	if err != nil {
		p.byID, p.byName, p.modTime = nil, nil, time.Time{}
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("overrides file %s not found", p.path)
		}
		return fmt.Errorf("stat overrides file: %w", err)
	}
	if info.ModTime().Equal(p.modTime) && (p.byID != nil || p.loadErr != nil) {
		return p.loadErr
	}

	p.modTime = info.ModTime()
	p.byID, p.byName, p.loadErr = parseFile(p.path)
	return p.loadErr
}

func parseFile(path string) (map[string]Record, map[string]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read overrides file: %w", err)
	}
	var parsed file
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, nil, fmt.Errorf("parse overrides file: %w", err)
	}
	byID := make(map[string]Record)
	byName := make(map[string]Record)
	for i, record := range parsed.Overrides {
		hasID := strings.TrimSpace(record.Origin) != "" && strings.TrimSpace(record.ExternalID) != ""
		nameKey := textutil.NormalizeName(record.Name)
		if !hasID && nameKey == "" {
			return nil, nil, fmt.Errorf("overrides[%d]: needs a name or an origin and external_id", i)
		}
		if hasID {
			byID[idKey(record.Origin, record.ExternalID)] = record
		}
		if nameKey != "" {
			byName[nameKey] = record
		}
	}
	return byID, byName, nil
}

func idKey(origin, id string) string {
	return strings.ToLower(strings.TrimSpace(origin)) + "\x00" + strings.TrimSpace(id)
}

func (r Record) result() *providers.Result {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = strings.TrimSpace(r.Name)
	}
	extras := make(map[string]any, len(r.Extras))
	for key, value := range r.Extras {
		extras[key] = value
	}
	return &providers.Result{
		Title:         title,
		Description:   strings.TrimSpace(r.Description),
		Genres:        r.Genres,
		Developers:    r.Developers,
		Publisher:     strings.TrimSpace(r.Publisher),
		ReleaseDate:   strings.TrimSpace(r.ReleaseDate),
		CoverImageURL: strings.TrimSpace(r.CoverImageURL),
		Confidence:    1,
		RawExtras:     extras,
	}
}
