package steamstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockpile/internal/inventory"
	"stockpile/internal/logging"
	"stockpile/internal/providers"
)

const portalDetails = `{"620": {"success": true, "data": {
	"type": "game",
	"name": "Portal 2",
	"steam_appid": 620,
	"short_description": "The sequel to Portal.",
	"developers": ["Valve"],
	"publishers": ["Valve"],
	"header_image": "https://cdn.example/620/header.jpg",
	"genres": [{"id": "1", "description": "Action"}, {"id": "25", "description": "Adventure"}],
	"release_date": {"coming_soon": false, "date": "18 Apr, 2011"},
	"metacritic": {"score": 95}
}}}`

func newStore(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := providers.NewHTTPClient(providers.HTTPOptions{InitialBackoff: time.Millisecond, Logger: logging.NewNop()})
	p, err := New(client, Config{BaseURL: server.URL, Language: "english", CountryCode: "US"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLookupByExternalID(t *testing.T) {
	p := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appdetails" || r.URL.Query().Get("appids") != "620" || r.URL.Query().Get("cc") != "US" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(portalDetails))
	})

	result, err := p.LookupByExternalID(context.Background(), inventory.OriginSteam, "620")
	if err != nil || result == nil {
		t.Fatalf("lookup = %v, %v", result, err)
	}
	if result.Title != "Portal 2" || result.Confidence != 1 || result.Publisher != "Valve" {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Genres) != 2 || result.ReleaseDate != "18 Apr, 2011" {
		t.Fatalf("genres/date = %v %q", result.Genres, result.ReleaseDate)
	}
	if result.RawExtras[providers.ExtraRating] != 0.95 || result.RawExtras[providers.ExtraID] != "620" {
		t.Fatalf("extras = %v", result.RawExtras)
	}
}

func TestLookupByExternalIDOtherOriginUnsupported(t *testing.T) {
	p := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := p.LookupByExternalID(context.Background(), inventory.OriginGOG, "1"); !errors.Is(err, providers.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestLookupByExternalIDUnknownApp(t *testing.T) {
	p := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"999": {"success": false}}`))
	})
	result, err := p.LookupByExternalID(context.Background(), inventory.OriginSteam, "999")
	if err != nil || result != nil {
		t.Fatalf("expected no match, got %+v, %v", result, err)
	}
}

func TestLookupByNameScoresBestItem(t *testing.T) {
	p := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/storesearch/":
			if r.URL.Query().Get("term") != "Portal 2" {
				t.Errorf("term = %q", r.URL.Query().Get("term"))
			}
			_, _ = w.Write([]byte(`{"total": 2, "items": [
				{"type": "app", "name": "Portal", "id": 400},
				{"type": "app", "name": "Portal 2", "id": 620}
			]}`))
		case "/api/appdetails":
			if r.URL.Query().Get("appids") != "620" {
				t.Errorf("resolved wrong app %q", r.URL.Query().Get("appids"))
			}
			_, _ = w.Write([]byte(portalDetails))
		default:
			http.NotFound(w, r)
		}
	})

	result, err := p.LookupByName(context.Background(), "Portal 2", providers.LookupContext{})
	if err != nil || result == nil {
		t.Fatalf("lookup = %v, %v", result, err)
	}
	if result.Confidence != 1 || result.Title != "Portal 2" {
		t.Fatalf("result = %+v", result)
	}
}

func TestLookupByNameNoItems(t *testing.T) {
	p := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 0, "items": []}`))
	})
	result, err := p.LookupByName(context.Background(), "Nothing Like This", providers.LookupContext{})
	if err != nil || result != nil {
		t.Fatalf("expected no match, got %+v, %v", result, err)
	}
}
