package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// InventoryItem is one installation joined with its catalog entry.
type InventoryItem struct {
	InstallationID   int64          `json:"installationId"`
	CatalogID        int64          `json:"catalogId"`
	Name             string         `json:"name"`
	Title            string         `json:"title,omitempty"`
	Origin           string         `json:"origin"`
	ExternalID       string         `json:"externalId,omitempty"`
	Category         string         `json:"category,omitempty"`
	InstallPath      string         `json:"installPath,omitempty"`
	ExecutablePath   string         `json:"executablePath,omitempty"`
	IconPath         string         `json:"iconPath,omitempty"`
	Version          string         `json:"version,omitempty"`
	InstalledAt      string         `json:"installedAt,omitempty"`
	LastDetectedAt   string         `json:"lastDetectedAt,omitempty"`
	Description      string         `json:"description,omitempty"`
	Genres           []string       `json:"genres,omitempty"`
	Developers       []string       `json:"developers,omitempty"`
	Publisher        string         `json:"publisher,omitempty"`
	ReleaseDate      string         `json:"releaseDate,omitempty"`
	CoverImageURL    string         `json:"coverImageUrl,omitempty"`
	Rating           *float64       `json:"rating,omitempty"`
	EnrichmentState  string         `json:"enrichmentState"`
	EnrichmentSource string         `json:"enrichmentSource,omitempty"`
	LastEnrichedAt   string         `json:"lastEnrichedAt,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// InventoryResponse wraps the inventory listing.
type InventoryResponse struct {
	Items []InventoryItem `json:"items"`
}

// RefreshSummary reports one detection pass.
type RefreshSummary struct {
	PassID       string           `json:"passId"`
	StartedAt    string           `json:"startedAt"`
	DurationMS   int64            `json:"durationMs"`
	Detected     int              `json:"detected"`
	Merged       int              `json:"merged"`
	Collapsed    int              `json:"collapsed"`
	Upserted     int              `json:"upserted"`
	Created      int              `json:"created"`
	Enqueued     int              `json:"enqueued"`
	Pruned       int64            `json:"pruned"`
	PruneSkipped bool             `json:"pruneSkipped"`
	Errors       int              `json:"errors"`
	Detectors    []DetectorStatus `json:"detectors,omitempty"`
}

// DetectorStatus is one detector's part in a pass.
type DetectorStatus struct {
	Name       string `json:"name"`
	Available  bool   `json:"available"`
	Candidates int    `json:"candidates"`
	Skipped    int    `json:"skipped"`
	Claimed    int    `json:"claimed"`
	Error      string `json:"error,omitempty"`
}

// BatchSummary reports one enrichment batch.
type BatchSummary struct {
	ID         string                   `json:"id"`
	Trigger    string                   `json:"trigger"`
	StartedAt  string                   `json:"startedAt"`
	DurationMS int64                    `json:"durationMs"`
	Selected   int                      `json:"selected"`
	Enriched   int                      `json:"enriched"`
	Failed     int                      `json:"failed"`
	NotFound   int                      `json:"notFound"`
	Skipped    int                      `json:"skipped"`
	Busy       int                      `json:"busy"`
	Cancelled  bool                     `json:"cancelled,omitempty"`
	Providers  map[string]ProviderTally `json:"providers,omitempty"`
}

// ProviderTally counts one provider's outcomes in a batch.
type ProviderTally struct {
	Accepted    int `json:"accepted"`
	Rejected    int `json:"rejected"`
	NoMatch     int `json:"noMatch"`
	Unavailable int `json:"unavailable"`
	Errors      int `json:"errors"`
}

// EnrichmentStatus summarises the orchestrator.
type EnrichmentStatus struct {
	Enabled   bool          `json:"enabled"`
	Running   bool          `json:"running"`
	Pending   int           `json:"pending"`
	InFlight  int           `json:"inFlight"`
	LastBatch *BatchSummary `json:"lastBatch,omitempty"`
	LastError string        `json:"lastError,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool             `json:"running"`
	PID            int              `json:"pid"`
	StartedAt      string           `json:"startedAt,omitempty"`
	CatalogDBPath  string           `json:"catalogDbPath"`
	InstallsDBPath string           `json:"installsDbPath"`
	LockFilePath   string           `json:"lockFilePath"`
	Refreshing     bool             `json:"refreshing"`
	LastRefresh    *RefreshSummary  `json:"lastRefresh,omitempty"`
	Enrichment     EnrichmentStatus `json:"enrichment"`
}

// RefreshResponse answers POST /api/refresh.
type RefreshResponse struct {
	Queued  bool            `json:"queued"`
	Summary *RefreshSummary `json:"summary,omitempty"`
}

// EnrichResponse answers POST /api/enrich.
type EnrichResponse struct {
	Trigger string `json:"trigger"`
	Queued  bool   `json:"queued"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
