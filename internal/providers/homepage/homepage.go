// Package homepage describes software from its own product page, using the
// homepage URL the OS registry records for the installed program.
package homepage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"stockpile/internal/inventory"
	"stockpile/internal/providers"
	"stockpile/internal/textutil"
)

// Name identifies the provider in catalog entries and diagnostics.
const Name = "homepage"

// containedConfidence is used when the page title or site name contains the
// product name verbatim, the usual shape of "Product - tagline" titles.
const containedConfidence = 0.9

const maxDescription = 600

// Provider implements providers.Provider by scraping homepages.
type Provider struct {
	client *providers.HTTPClient
}

var _ providers.Provider = (*Provider)(nil)

// New builds the provider on the shared HTTP client.
func New(client *providers.HTTPClient) (*Provider, error) {
	if client == nil {
		return nil, errors.New("homepage: http client required")
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Kinds() []inventory.Kind { return []inventory.Kind{inventory.KindSoftware} }

func (p *Provider) IsAvailable() bool { return true }

func (p *Provider) LookupByExternalID(context.Context, inventory.Origin, string) (*providers.Result, error) {
	return nil, providers.ErrUnsupported
}

// LookupByName fetches lc.Homepage and extracts its title, excerpt and lead
// image. Entries without a homepage never match.
func (p *Provider) LookupByName(ctx context.Context, name string, lc providers.LookupContext) (*providers.Result, error) {
	target := strings.TrimSpace(lc.Homepage)
	if target == "" || strings.TrimSpace(name) == "" {
		return nil, nil
	}
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, nil
	}

	header := http.Header{}
	header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	body, err := p.client.Do(ctx, providers.Request{URL: parsed.String(), Header: header, Cacheable: true})
	if errors.Is(err, providers.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("homepage: fetch %s: %w", parsed.Host, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("homepage: extract %s: %w", parsed.Host, err)
	}
	description := strings.TrimSpace(article.Excerpt)
	if description == "" {
		description = strings.TrimSpace(article.TextContent)
	}
	if description == "" {
		return nil, nil
	}

	result := &providers.Result{
		Title:         name,
		Description:   truncate(description, maxDescription),
		Publisher:     strings.TrimSpace(lc.Publisher),
		CoverImageURL: absolute(parsed, article.Image),
		Confidence:    score(name, article.Title, article.SiteName),
		RawExtras: map[string]any{
			providers.ExtraID:       parsed.String(),
			providers.ExtraHomepage: parsed.String(),
		},
	}
	if article.SiteName != "" {
		result.RawExtras["site_name"] = article.SiteName
	}
	return result, nil
}

func score(name string, labels ...string) float64 {
	key := textutil.NormalizeName(name)
	best := 0.0
	for _, label := range labels {
		if label == "" {
			continue
		}
		if key != "" && strings.Contains(" "+textutil.NormalizeName(label)+" ", " "+key+" ") {
			best = max(best, containedConfidence)
		}
		best = max(best, textutil.Similarity(name, label))
	}
	return best
}

func absolute(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

func truncate(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
