package providers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockpile/internal/fileutil"
)

// ResponseCache stores successful response bodies on disk keyed by a hash
// of the request. Entries older than the TTL are treated as misses.
type ResponseCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewResponseCache returns nil when dir is empty or ttl is not positive, which
// callers treat as caching disabled.
func NewResponseCache(dir string, ttl time.Duration) (*ResponseCache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" || ttl <= 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create response cache dir: %w", err)
	}
	return &ResponseCache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Key derives the cache key for a request.
func (c *ResponseCache) Key(method, url string, body []byte) string {
	return fileutil.HashKey(method, url, string(body))
}

// Load returns the cached body for key when present and fresh.
func (c *ResponseCache) Load(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(info.ModTime()) > c.ttl {
		_ = os.Remove(path)
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Store writes body under key.
func (c *ResponseCache) Store(key string, body []byte) error {
	if c == nil {
		return errors.New("response cache disabled")
	}
	return fileutil.WriteFileAtomic(c.path(key), body, 0o644)
}

func (c *ResponseCache) path(key string) string {
	// Two-character fan-out keeps directories small.
	return filepath.Join(c.dir, key[:2], key+".body")
}
