package igdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"stockpile/internal/inventory"
	"stockpile/internal/providers"
	"stockpile/internal/textutil"
)

// Name identifies the provider in catalog entries and diagnostics.
const Name = "igdb"

const (
	coverURLFormat = "https://images.igdb.com/igdb/image/upload/t_cover_big/%s.jpg"
	tokenLeeway    = time.Minute
	gameFields     = "fields name,summary,first_release_date,total_rating,cover.image_id,genres.name," +
		"involved_companies.company.name,involved_companies.developer,involved_companies.publisher,url;"
)

// externalCategories maps origins onto IGDB external_games categories.
var externalCategories = map[inventory.Origin]int{
	inventory.OriginSteam: 1,
	inventory.OriginGOG:   5,
	inventory.OriginEpic:  26,
}

// Config carries the Twitch application credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

// Provider implements providers.Provider against the IGDB v4 API.
type Provider struct {
	client       *providers.HTTPClient
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ providers.Provider = (*Provider)(nil)

// New builds the provider. Missing credentials leave it unavailable rather
// than failing construction.
func New(client *providers.HTTPClient, cfg Config) (*Provider, error) {
	if client == nil {
		return nil, errors.New("igdb: http client required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if base == "" || tokenURL == "" {
		return nil, errors.New("igdb: base url and token url required")
	}
	return &Provider{
		client:       client,
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		baseURL:      base,
		tokenURL:     tokenURL,
		now:          time.Now,
	}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Kinds() []inventory.Kind { return []inventory.Kind{inventory.KindGame} }

func (p *Provider) IsAvailable() bool { return p.clientID != "" && p.clientSecret != "" }

func (p *Provider) UnavailableReason() string {
	if p.IsAvailable() {
		return ""
	}
	return "client_id/client_secret not configured"
}

type game struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Summary          string  `json:"summary"`
	FirstReleaseDate int64   `json:"first_release_date"`
	TotalRating      float64 `json:"total_rating"`
	URL              string  `json:"url"`
	Cover            *struct {
		ImageID string `json:"image_id"`
	} `json:"cover"`
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
	InvolvedCompanies []struct {
		Developer bool `json:"developer"`
		Publisher bool `json:"publisher"`
		Company   struct {
			Name string `json:"name"`
		} `json:"company"`
	} `json:"involved_companies"`
}

// LookupByExternalID resolves a launcher id through IGDB external games.
func (p *Provider) LookupByExternalID(ctx context.Context, origin inventory.Origin, id string) (*providers.Result, error) {
	category, ok := externalCategories[origin]
	if !ok {
		return nil, providers.ErrUnsupported
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, providers.ErrUnsupported
	}
	query := fmt.Sprintf(`%s where external_games.uid = "%s" & external_games.category = %d; limit 1;`,
		gameFields, escape(id), category)
	games, err := p.query(ctx, query)
	if err != nil || len(games) == 0 {
		return nil, err
	}
	return toResult(games[0], 1), nil
}

// LookupByName searches IGDB and keeps the most similar title.
func (p *Provider) LookupByName(ctx context.Context, name string, _ providers.LookupContext) (*providers.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	games, err := p.query(ctx, fmt.Sprintf(`search "%s"; %s limit 10;`, escape(name), gameFields))
	if err != nil || len(games) == 0 {
		return nil, err
	}
	titles := make([]string, len(games))
	for i, g := range games {
		titles[i] = g.Name
	}
	best, score := textutil.BestMatch(name, titles)
	if best < 0 || score == 0 {
		return nil, nil
	}
	return toResult(games[best], score), nil
}

func (p *Provider) query(ctx context.Context, body string) ([]game, error) {
	if !p.IsAvailable() {
		return nil, providers.ErrUnavailable
	}
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Client-ID", p.clientID)
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")
	header.Set("Content-Type", "text/plain")

	var games []game
	_, err = p.client.DoJSON(ctx, providers.Request{
		Method:    http.MethodPost,
		URL:       p.baseURL + "/games",
		Header:    header,
		Body:      []byte(body),
		Cacheable: true,
	}, &games)
	if err != nil {
		var statusErr *providers.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			p.dropToken()
		}
		return nil, fmt.Errorf("igdb: query games: %w", err)
	}
	return games, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *Provider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.expires) {
		return p.token, nil
	}

	params := url.Values{}
	params.Set("client_id", p.clientID)
	params.Set("client_secret", p.clientSecret)
	params.Set("grant_type", "client_credentials")
	target := p.tokenURL
	if strings.Contains(target, "?") {
		target += "&" + params.Encode()
	} else {
		target += "?" + params.Encode()
	}

	var payload tokenResponse
	found, err := p.client.DoJSON(ctx, providers.Request{Method: http.MethodPost, URL: target}, &payload)
	if err != nil {
		return "", fmt.Errorf("igdb: fetch token: %w", err)
	}
	if !found || payload.AccessToken == "" {
		return "", errors.New("igdb: token endpoint returned no access token")
	}
	p.token = payload.AccessToken
	p.expires = p.now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenLeeway)
	return p.token, nil
}

func (p *Provider) dropToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

func toResult(g game, confidence float64) *providers.Result {
	result := &providers.Result{
		Title:       g.Name,
		Description: strings.TrimSpace(g.Summary),
		Confidence:  confidence,
		RawExtras:   map[string]any{providers.ExtraID: strconv.FormatInt(g.ID, 10)},
	}
	for _, genre := range g.Genres {
		if genre.Name != "" {
			result.Genres = append(result.Genres, genre.Name)
		}
	}
	for _, involved := range g.InvolvedCompanies {
		name := involved.Company.Name
		if name == "" {
			continue
		}
		if involved.Developer {
			result.Developers = append(result.Developers, name)
		}
		if involved.Publisher && result.Publisher == "" {
			result.Publisher = name
		}
	}
	if g.FirstReleaseDate > 0 {
		result.ReleaseDate = time.Unix(g.FirstReleaseDate, 0).UTC().Format("2006-01-02")
	}
	if g.Cover != nil && g.Cover.ImageID != "" {
		result.CoverImageURL = fmt.Sprintf(coverURLFormat, g.Cover.ImageID)
	}
	if g.TotalRating > 0 {
		result.RawExtras[providers.ExtraRating] = g.TotalRating / 100
	}
	if g.URL != "" {
		result.RawExtras["igdb_url"] = g.URL
	}
	return result
}

// escape quotes a value for an Apicalypse string literal.
func escape(value string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
}
