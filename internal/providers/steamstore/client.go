// Package steamstore looks up game metadata on the public Steam storefront.
package steamstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"stockpile/internal/inventory"
	"stockpile/internal/providers"
	"stockpile/internal/textutil"
)

// Name identifies the provider in catalog entries and diagnostics.
const Name = "steam_store"

// Config configures the provider.
type Config struct {
	BaseURL     string
	Language    string
	CountryCode string
}

// Provider queries appdetails by id and storesearch by name.
type Provider struct {
	client   *providers.HTTPClient
	baseURL  string
	language string
	country  string
}

var _ providers.Provider = (*Provider)(nil)

// New builds the provider on the shared HTTP client.
func New(client *providers.HTTPClient, cfg Config) (*Provider, error) {
	if client == nil {
		return nil, errors.New("steamstore: http client required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("steamstore: base url required")
	}
	return &Provider{
		client:   client,
		baseURL:  base,
		language: strings.TrimSpace(cfg.Language),
		country:  strings.TrimSpace(cfg.CountryCode),
	}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Kinds() []inventory.Kind { return []inventory.Kind{inventory.KindGame} }

func (p *Provider) IsAvailable() bool { return true }

type appDetails struct {
	Success bool `json:"success"`
	Data    struct {
		Type             string   `json:"type"`
		Name             string   `json:"name"`
		SteamAppID       int64    `json:"steam_appid"`
		ShortDescription string   `json:"short_description"`
		Developers       []string `json:"developers"`
		Publishers       []string `json:"publishers"`
		HeaderImage      string   `json:"header_image"`
		Website          string   `json:"website"`
		Genres           []struct {
			Description string `json:"description"`
		} `json:"genres"`
		ReleaseDate struct {
			ComingSoon bool   `json:"coming_soon"`
			Date       string `json:"date"`
		} `json:"release_date"`
		Metacritic *struct {
			Score int `json:"score"`
		} `json:"metacritic"`
	} `json:"data"`
}

type searchResponse struct {
	Total int `json:"total"`
	Items []struct {
		Type string `json:"type"`
		Name string `json:"name"`
		ID   int64  `json:"id"`
	} `json:"items"`
}

// LookupByExternalID fetches appdetails for a Steam app id.
func (p *Provider) LookupByExternalID(ctx context.Context, origin inventory.Origin, id string) (*providers.Result, error) {
	if origin != inventory.OriginSteam {
		return nil, providers.ErrUnsupported
	}
	id = strings.TrimSpace(id)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, fmt.Errorf("steamstore: invalid app id %q", id)
	}
	return p.details(ctx, id, 1)
}

// LookupByName searches the store and resolves the closest app.
func (p *Provider) LookupByName(ctx context.Context, name string, _ providers.LookupContext) (*providers.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("term", name)
	p.localize(params)

	var payload searchResponse
	found, err := p.client.GetJSON(ctx, p.baseURL+"/api/storesearch/?"+params.Encode(), nil, &payload)
	if err != nil {
		return nil, fmt.Errorf("steamstore: search: %w", err)
	}
	if !found || len(payload.Items) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(payload.Items))
	ids := make([]int64, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.Type != "" && item.Type != "app" {
			continue
		}
		names = append(names, item.Name)
		ids = append(ids, item.ID)
	}
	best, score := textutil.BestMatch(name, names)
	if best < 0 || score == 0 {
		return nil, nil
	}
	return p.details(ctx, strconv.FormatInt(ids[best], 10), score)
}

func (p *Provider) details(ctx context.Context, id string, confidence float64) (*providers.Result, error) {
	params := url.Values{}
	params.Set("appids", id)
	p.localize(params)

	var payload map[string]json.RawMessage
	found, err := p.client.GetJSON(ctx, p.baseURL+"/api/appdetails?"+params.Encode(), nil, &payload)
	if err != nil {
		return nil, fmt.Errorf("steamstore: appdetails %s: %w", id, err)
	}
	raw, ok := payload[id]
	if !found || !ok {
		return nil, nil
	}
	var details appDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("steamstore: decode appdetails %s: %w", id, err)
	}
	if !details.Success || details.Data.Name == "" {
		return nil, nil
	}

	data := details.Data
	result := &providers.Result{
		Title:         data.Name,
		Description:   strings.TrimSpace(data.ShortDescription),
		Developers:    data.Developers,
		CoverImageURL: data.HeaderImage,
		Confidence:    confidence,
		RawExtras:     map[string]any{providers.ExtraID: id},
	}
	if len(data.Publishers) > 0 {
		result.Publisher = data.Publishers[0]
	}
	for _, genre := range data.Genres {
		if genre.Description != "" {
			result.Genres = append(result.Genres, genre.Description)
		}
	}
	if !data.ReleaseDate.ComingSoon {
		result.ReleaseDate = strings.TrimSpace(data.ReleaseDate.Date)
	}
	if data.Metacritic != nil && data.Metacritic.Score > 0 {
		result.RawExtras[providers.ExtraRating] = float64(data.Metacritic.Score) / 100
	}
	if data.Website != "" {
		result.RawExtras[providers.ExtraHomepage] = data.Website
	}
	if data.Type != "" {
		result.RawExtras["steam_type"] = data.Type
	}
	return result, nil
}

func (p *Provider) localize(params url.Values) {
	if p.language != "" {
		params.Set("l", p.language)
	}
	if p.country != "" {
		params.Set("cc", p.country)
	}
}
