package igdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/providers"
)

type fakeIGDB struct {
	tokens atomic.Int32
	games  string

	mu      sync.Mutex
	queries []string
}

func (f *fakeIGDB) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeIGDB) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			if r.URL.Query().Get("grant_type") != "client_credentials" || r.URL.Query().Get("client_id") != "id" {
				t.Errorf("token query = %q", r.URL.RawQuery)
			}
			f.tokens.Add(1)
			_, _ = w.Write([]byte(`{"access_token": "tok", "expires_in": 3600, "token_type": "bearer"}`))
		case "/v4/games":
			if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("Client-ID") != "id" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.queries = append(f.queries, string(body))
			f.mu.Unlock()
			_, _ = w.Write([]byte(f.games))
		default:
			http.NotFound(w, r)
		}
	}
}

const witcherGames = `[{
	"id": 1942,
	"name": "The Witcher 3: Wild Hunt",
	"summary": "RPG.",
	"first_release_date": 1431993600,
	"total_rating": 92.5,
	"cover": {"image_id": "co1wyy"},
	"genres": [{"name": "Role-playing (RPG)"}],
	"involved_companies": [
		{"developer": true, "publisher": false, "company": {"name": "CD Projekt RED"}},
		{"developer": false, "publisher": true, "company": {"name": "CD Projekt"}}
	]
}]`

func newIGDB(t *testing.T, fake *fakeIGDB, id, secret string) *Provider {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	client := providers.NewHTTPClient(providers.HTTPOptions{InitialBackoff: time.Millisecond, Logger: logging.NewNop()})
	p, err := New(client, Config{
		ClientID:     id,
		ClientSecret: secret,
		BaseURL:      server.URL + "/v4",
		TokenURL:     server.URL + "/oauth2/token",
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUnavailableWithoutCredentials(t *testing.T) {
	p := newIGDB(t, &fakeIGDB{}, "", "")
	if p.IsAvailable() || p.UnavailableReason() == "" {
		t.Fatal("expected unavailable with a reason")
	}
	if _, err := p.LookupByName(context.Background(), "x", providers.LookupContext{}); !errors.Is(err, providers.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLookupByExternalIDUsesExternalGames(t *testing.T) {
	fake := &fakeIGDB{games: witcherGames}
	p := newIGDB(t, fake, "id", "secret")

	result, err := p.LookupByExternalID(context.Background(), inventory.OriginGOG, "1207658924")
	if err != nil || result == nil {
		t.Fatalf("lookup = %v, %v", result, err)
	}
	queries := fake.recorded()
	if len(queries) != 1 || !strings.Contains(queries[0], `external_games.uid = "1207658924" & external_games.category = 5`) {
		t.Fatalf("queries = %v", queries)
	}
	if result.Confidence != 1 || result.Publisher != "CD Projekt" || result.ReleaseDate != "2015-05-19" {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Developers) != 1 || result.Developers[0] != "CD Projekt RED" {
		t.Fatalf("developers = %v", result.Developers)
	}
	if result.CoverImageURL != "https://images.igdb.com/igdb/image/upload/t_cover_big/co1wyy.jpg" {
		t.Fatalf("cover = %q", result.CoverImageURL)
	}
	if result.RawExtras[providers.ExtraRating] != 0.925 {
		t.Fatalf("rating = %v", result.RawExtras[providers.ExtraRating])
	}

	if _, err := p.LookupByExternalID(context.Background(), inventory.OriginRegistry, "x"); !errors.Is(err, providers.ErrUnsupported) {
		t.Fatalf("registry ids are unsupported, got %v", err)
	}
}

func TestLookupByNameReusesToken(t *testing.T) {
	fake := &fakeIGDB{games: witcherGames}
	p := newIGDB(t, fake, "id", "secret")
	ctx := context.Background()

	result, err := p.LookupByName(ctx, "The Witcher 3 Wild Hunt", providers.LookupContext{})
	if err != nil || result == nil {
		t.Fatalf("lookup = %v, %v", result, err)
	}
	if result.Confidence != 1 {
		t.Fatalf("punctuation-only differences should score 1, got %v", result.Confidence)
	}
	if q := fake.recorded()[0]; !strings.HasPrefix(q, `search "The Witcher 3 Wild Hunt";`) {
		t.Fatalf("query = %q", q)
	}
	if _, err := p.LookupByName(ctx, "Witcher", providers.LookupContext{}); err != nil {
		t.Fatal(err)
	}
	if fake.tokens.Load() != 1 {
		t.Fatalf("token fetched %d times", fake.tokens.Load())
	}
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	fake := &fakeIGDB{games: `[]`}
	p := newIGDB(t, fake, "id", "secret")
	now := time.Now()
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := p.LookupByName(ctx, "a", providers.LookupContext{}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := p.LookupByName(ctx, "b", providers.LookupContext{}); err != nil {
		t.Fatal(err)
	}
	if fake.tokens.Load() != 2 {
		t.Fatalf("token fetched %d times, want 2", fake.tokens.Load())
	}
}

func TestEscape(t *testing.T) {
	if got := escape(`Say "Hi" \o/`); got != `Say \"Hi\" \\o/` {
		t.Fatalf("escape = %q", got)
	}
}
