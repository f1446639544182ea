package homepage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockpile/internal/logging"
	"stockpile/internal/providers"
)

const page = `<!DOCTYPE html>
<html><head>
<title>Notepad++ - a free source code editor</title>
<meta name="description" content="Notepad++ is a free source code editor and Notepad replacement that supports several languages.">
<meta property="og:image" content="/images/logo.png">
<meta property="og:site_name" content="Notepad++">
</head>
<body><article>
<h1>Notepad++</h1>
<p>Notepad++ is a free source code editor and Notepad replacement that supports several languages.
Running in the MS Windows environment, its use is governed by the GNU General Public License.</p>
<p>Based on the powerful editing component Scintilla, Notepad++ is written in C++ and uses pure Win32
API and STL which ensures a higher execution speed and smaller program size.</p>
</article></body></html>`

func newHomepage(t *testing.T) (*Provider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	client := providers.NewHTTPClient(providers.HTTPOptions{InitialBackoff: time.Millisecond, Logger: logging.NewNop()})
	p, err := New(client)
	if err != nil {
		t.Fatal(err)
	}
	return p, server
}

func TestLookupExtractsPage(t *testing.T) {
	p, server := newHomepage(t)
	result, err := p.LookupByName(context.Background(), "Notepad++", providers.LookupContext{
		Homepage:  server.URL + "/",
		Publisher: "Notepad++ Team",
	})
	if err != nil || result == nil {
		t.Fatalf("lookup = %v, %v", result, err)
	}
	if !strings.Contains(result.Description, "free source code editor") {
		t.Fatalf("description = %q", result.Description)
	}
	if result.Confidence < 0.85 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
	if result.Publisher != "Notepad++ Team" {
		t.Fatalf("publisher = %q", result.Publisher)
	}
	if result.CoverImageURL != "" && !strings.HasPrefix(result.CoverImageURL, server.URL) {
		t.Fatalf("image not resolved against page: %q", result.CoverImageURL)
	}
}

func TestLookupWithoutHomepage(t *testing.T) {
	p, server := newHomepage(t)
	for _, homepage := range []string{"", "ftp://example.com", server.URL + "/missing"} {
		result, err := p.LookupByName(context.Background(), "Notepad++", providers.LookupContext{Homepage: homepage})
		if err != nil || result != nil {
			t.Fatalf("homepage %q: expected no match, got %+v, %v", homepage, result, err)
		}
	}
}

func TestScore(t *testing.T) {
	if got := score("Notepad++", "Notepad++ - a free source code editor"); got != containedConfidence {
		t.Fatalf("contained title score = %v", got)
	}
	if got := score("GIMP", "GIMP"); got != 1 {
		t.Fatalf("exact score = %v", got)
	}
	if got := score("Blender", "Welcome to nginx!"); got >= 0.5 {
		t.Fatalf("unrelated score = %v", got)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("word ", 200)
	got := truncate(long, 50)
	if len([]rune(got)) > 51 || !strings.HasSuffix(got, "…") {
		t.Fatalf("truncate = %q", got)
	}
	if truncate("  short   text ", 50) != "short text" {
		t.Fatal("whitespace should collapse")
	}
}
