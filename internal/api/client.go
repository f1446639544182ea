package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockpile/internal/diagnostics"
)

// ErrDaemonUnreachable is returned when nothing answers at the API address.
var ErrDaemonUnreachable = errors.New("stockpile daemon is not reachable")

// Client talks to a running daemon.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon bound at bind (host:port or URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, token: strings.TrimSpace(token), http: &http.Client{Timeout: 2 * time.Minute}}
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.call(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Inventory fetches GET /api/inventory.
func (c *Client) Inventory(ctx context.Context) ([]InventoryItem, error) {
	var out InventoryResponse
	if err := c.call(ctx, http.MethodGet, "/api/inventory", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Diagnostics fetches GET /api/diagnostics.
func (c *Client) Diagnostics(ctx context.Context) (*diagnostics.Report, error) {
	var out diagnostics.Report
	if err := c.call(ctx, http.MethodGet, "/api/diagnostics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh asks the daemon for a detection pass. With wait the call returns
// the pass summary.
func (c *Client) Refresh(ctx context.Context, wait bool) (RefreshResponse, error) {
	query := url.Values{}
	if wait {
		query.Set("wait", "true")
	}
	var out RefreshResponse
	err := c.call(ctx, http.MethodPost, "/api/refresh", query, &out)
	return out, err
}

// Enrich asks the daemon for a background or force enrichment batch.
func (c *Client) Enrich(ctx context.Context, force bool) (EnrichResponse, error) {
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}
	var out EnrichResponse
	err := c.call(ctx, http.MethodPost, "/api/enrich", query, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon %s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
