package winget

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"stockpile/internal/inventory"
	"stockpile/internal/providers"
	"stockpile/internal/textutil"
)

// Name identifies the provider in catalog entries and diagnostics.
const Name = "winget"

// Runner executes the winget binary and returns its standard output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// ExecRunner runs the real binary.
func ExecRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		// winget reports "no package found" on stdout with a non-zero exit.
		if len(out) > 0 {
			return out, err
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

var (
	foundLine   = regexp.MustCompile(`^Found (.+) \[([^\]]+)\]\s*$`)
	fieldLine   = regexp.MustCompile(`^([A-Z][A-Za-z ]+):\s*(.*)$`)
	noMatchText = []string{"no package found", "no installed package found"}
)

// Option customises the provider.
type Option func(*Provider)

// WithRunner replaces the command runner, used by tests.
func WithRunner(run Runner) Option {
	return func(p *Provider) {
		if run != nil {
			p.run = run
		}
	}
}

// WithLookPath replaces PATH resolution, used by tests.
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(p *Provider) {
		if lookPath != nil {
			p.lookPath = lookPath
		}
	}
}

// Provider implements providers.Provider with the winget CLI.
type Provider struct {
	binary   string
	run      Runner
	lookPath func(string) (string, error)
}

var _ providers.Provider = (*Provider)(nil)

// New builds the provider for binary, "winget" when empty.
func New(binary string, opts ...Option) *Provider {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "winget"
	}
	p := &Provider{binary: binary, run: ExecRunner, lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Kinds() []inventory.Kind { return []inventory.Kind{inventory.KindSoftware} }

// IsAvailable reports whether the binary resolves on PATH.
func (p *Provider) IsAvailable() bool {
	_, err := p.lookPath(p.binary)
	return err == nil
}

func (p *Provider) UnavailableReason() string {
	if p.IsAvailable() {
		return ""
	}
	return fmt.Sprintf("%s not found on PATH", p.binary)
}

func (p *Provider) LookupByExternalID(context.Context, inventory.Origin, string) (*providers.Result, error) {
	return nil, providers.ErrUnsupported
}

// LookupByName shows the package whose name matches exactly.
func (p *Provider) LookupByName(ctx context.Context, name string, _ providers.LookupContext) (*providers.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	binary, err := p.lookPath(p.binary)
	if err != nil {
		return nil, providers.ErrUnavailable
	}
	out, runErr := p.run(ctx, binary, "show", "--name", name, "--exact",
		"--accept-source-agreements", "--disable-interactivity")
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	manifest := parseShow(out)
	if manifest.name == "" {
		if runErr != nil && !isNoMatch(out) {
			return nil, fmt.Errorf("winget: show %q: %w", name, runErr)
		}
		return nil, nil
	}

	result := &providers.Result{
		Title:       manifest.name,
		Description: manifest.fields["Description"],
		Publisher:   manifest.fields["Publisher"],
		Confidence:  textutil.Similarity(name, manifest.name),
		RawExtras:   map[string]any{providers.ExtraID: manifest.id},
	}
	if author := manifest.fields["Author"]; author != "" {
		result.Developers = []string{author}
	}
	if date := manifest.fields["Release Date"]; date != "" {
		result.ReleaseDate = date
	}
	if len(manifest.tags) > 0 {
		result.Genres = manifest.tags
	}
	for key, extra := range map[string]string{
		"Homepage": providers.ExtraHomepage,
		"License":  "license",
		"Version":  "winget_version",
		"Moniker":  "moniker",
	} {
		if value := manifest.fields[key]; value != "" {
			result.RawExtras[extra] = value
		}
	}
	return result, nil
}

type manifest struct {
	name   string
	id     string
	fields map[string]string
	tags   []string
}

func parseShow(out []byte) manifest {
	m := manifest{fields: map[string]string{}}
	var (
		listKey string
		lastKey string
	)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if match := foundLine.FindStringSubmatch(line); match != nil {
			m.name, m.id = strings.TrimSpace(match[1]), strings.TrimSpace(match[2])
			continue
		}
		indented := strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")
		if indented && listKey != "" {
			if listKey == "Tags" {
				m.tags = append(m.tags, line)
			}
			continue
		}
		if indented && lastKey != "" {
			// Continuation of a wrapped value.
			m.fields[lastKey] = strings.TrimSpace(m.fields[lastKey] + " " + line)
			continue
		}
		match := fieldLine.FindStringSubmatch(line)
		if match == nil {
			listKey, lastKey = "", ""
			continue
		}
		key, value := strings.TrimSpace(match[1]), strings.TrimSpace(match[2])
		if value == "" {
			listKey, lastKey = key, ""
			continue
		}
		listKey, lastKey = "", key
		m.fields[key] = value
	}
	return m
}

func isNoMatch(out []byte) bool {
	text := strings.ToLower(string(out))
	for _, marker := range noMatchText {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
