// Package wikipedia looks up general software on Wikipedia through the
// MediaWiki REST title search and page summary endpoints.
package wikipedia

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"stockpile/internal/inventory"
	"stockpile/internal/providers"
	"stockpile/internal/textutil"
)

// Name identifies the provider in catalog entries and diagnostics.
const Name = "wikipedia"

const searchLimit = 5

// qualifier matches a trailing disambiguation such as " (software)".
var qualifier = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// Provider implements providers.Provider for Wikipedia.
type Provider struct {
	client  *providers.HTTPClient
	baseURL string
}

var _ providers.Provider = (*Provider)(nil)

// New builds the provider. baseURL is the wiki host, e.g. https://en.wikipedia.org.
func New(client *providers.HTTPClient, baseURL string) (*Provider, error) {
	if client == nil {
		return nil, errors.New("wikipedia: http client required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("wikipedia: base url required")
	}
	return &Provider{client: client, baseURL: baseURL}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Kinds() []inventory.Kind { return []inventory.Kind{inventory.KindSoftware} }

func (p *Provider) IsAvailable() bool { return true }

func (p *Provider) LookupByExternalID(context.Context, inventory.Origin, string) (*providers.Result, error) {
	return nil, providers.ErrUnsupported
}

type searchResponse struct {
	Pages []struct {
		Key         string `json:"key"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"pages"`
}

type summary struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	Thumbnail   *image `json:"thumbnail"`
	Original    *image `json:"originalimage"`
	URLs        struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

type image struct {
	Source string `json:"source"`
}

// LookupByName searches page titles, scores them against name with any
// trailing qualifier removed, and returns the best page's summary.
func (p *Provider) LookupByName(ctx context.Context, name string, _ providers.LookupContext) (*providers.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", name)
	params.Set("limit", fmt.Sprint(searchLimit))

	var search searchResponse
	found, err := p.client.GetJSON(ctx, p.baseURL+"/w/rest.php/v1/search/title?"+params.Encode(), nil, &search)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: search: %w", err)
	}
	if !found || len(search.Pages) == 0 {
		return nil, nil
	}
	titles := make([]string, len(search.Pages))
	for i, page := range search.Pages {
		titles[i] = qualifier.ReplaceAllString(page.Title, "")
	}
	best, score := textutil.BestMatch(name, titles)
	if best < 0 || score == 0 {
		return nil, nil
	}
	key := search.Pages[best].Key
	if key == "" {
		key = strings.ReplaceAll(search.Pages[best].Title, " ", "_")
	}

	var page summary
	found, err = p.client.GetJSON(ctx, p.baseURL+"/api/rest_v1/page/summary/"+url.PathEscape(key), nil, &page)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: summary %s: %w", key, err)
	}
	if !found || page.Type == "disambiguation" || strings.TrimSpace(page.Extract) == "" {
		return nil, nil
	}

	result := &providers.Result{
		Title:       qualifier.ReplaceAllString(page.Title, ""),
		Description: strings.TrimSpace(page.Extract),
		Confidence:  score,
		RawExtras:   map[string]any{providers.ExtraID: key},
	}
	switch {
	case page.Original != nil && page.Original.Source != "":
		result.CoverImageURL = page.Original.Source
	case page.Thumbnail != nil:
		result.CoverImageURL = page.Thumbnail.Source
	}
	if page.Description != "" {
		result.RawExtras["short_description"] = page.Description
	}
	if page.URLs.Desktop.Page != "" {
		result.RawExtras["wikipedia_url"] = page.URLs.Desktop.Page
	}
	return result, nil
}
