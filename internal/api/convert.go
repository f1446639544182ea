package api

import (
	"maps"
	"time"

	"stockpile/internal/enrichment"
	"stockpile/internal/installs"
	"stockpile/internal/providers"
	"stockpile/internal/refresh"
)

// FromJoined converts an installation row and its catalog entry.
func FromJoined(row installs.Joined) InventoryItem {
	dto := InventoryItem{
		InstallationID: row.ID,
		CatalogID:      row.CatalogID,
		Origin:         string(row.Origin),
		InstallPath:    row.InstallPath,
		ExecutablePath: row.ExecutablePath,
		IconPath:       row.IconPath,
		Version:        row.Version,
		InstalledAt:    formatTime(row.InstallTime),
		LastDetectedAt: formatTime(row.LastDetectedAt),
	}
	entry := row.Entry
	if entry == nil {
		return dto
	}
	dto.Name = entry.Name
	dto.ExternalID = entry.ExternalID
	dto.Category = string(entry.Category)
	dto.Description = entry.Description
	dto.Genres = entry.Genres
	dto.Developers = entry.Developers
	dto.Publisher = entry.Publisher
	dto.ReleaseDate = entry.ReleaseDate
	dto.CoverImageURL = entry.CoverImageURL
	dto.EnrichmentState = string(entry.State)
	dto.EnrichmentSource = entry.EnrichmentSource
	if entry.LastEnrichedAt != nil {
		dto.LastEnrichedAt = formatTime(*entry.LastEnrichedAt)
	}
	if len(entry.AdditionalMetadata) > 0 {
		dto.Metadata = maps.Clone(entry.AdditionalMetadata)
		if title, ok := entry.AdditionalMetadata["title"].(string); ok {
			dto.Title = title
		}
		if rating, ok := entry.AdditionalMetadata[providers.ExtraRating].(float64); ok {
			dto.Rating = &rating
		}
	}
	return dto
}

// FromJoinedList converts an inventory listing.
func FromJoinedList(rows []installs.Joined) []InventoryItem {
	out := make([]InventoryItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromJoined(row))
	}
	return out
}

// FromRefreshSummary converts a refresh pass summary.
func FromRefreshSummary(summary refresh.Summary) RefreshSummary {
	dto := RefreshSummary{
		PassID:       summary.PassID,
		StartedAt:    formatTime(summary.StartedAt),
		DurationMS:   summary.Duration.Milliseconds(),
		Detected:     summary.Detected,
		Merged:       summary.Merged,
		Collapsed:    summary.Collapsed,
		Upserted:     summary.Upserted,
		Created:      len(summary.Created),
		Enqueued:     summary.Enqueued,
		Pruned:       summary.Pruned,
		PruneSkipped: summary.PruneSkipped,
		Errors:       summary.Errors,
	}
	for _, report := range summary.Reports {
		d := DetectorStatus{
			Name:       report.Detector,
			Available:  report.Available,
			Candidates: report.Candidates,
			Skipped:    report.Skipped,
			Claimed:    report.Claimed,
		}
		if report.Err != nil {
			d.Error = report.Err.Error()
		}
		dto.Detectors = append(dto.Detectors, d)
	}
	return dto
}

// FromBatchResult converts an enrichment batch result.
func FromBatchResult(result enrichment.BatchResult) BatchSummary {
	dto := BatchSummary{
		ID:         result.ID,
		Trigger:    string(result.Trigger),
		StartedAt:  formatTime(result.StartedAt),
		DurationMS: result.Duration.Milliseconds(),
		Selected:   result.Selected,
		Enriched:   result.Enriched,
		Failed:     result.Failed,
		NotFound:   result.NotFound,
		Skipped:    result.Skipped,
		Busy:       result.Busy,
		Cancelled:  result.Cancelled,
	}
	if len(result.Providers) > 0 {
		dto.Providers = make(map[string]ProviderTally, len(result.Providers))
		for name, t := range result.Providers {
			dto.Providers[name] = ProviderTally{
				Accepted:    t.Accepted,
				Rejected:    t.Rejected,
				NoMatch:     t.NoMatch,
				Unavailable: t.Unavailable,
				Errors:      t.Errors,
			}
		}
	}
	return dto
}

// FromEnrichmentStatus converts an orchestrator snapshot.
func FromEnrichmentStatus(status enrichment.Status, enabled bool) EnrichmentStatus {
	dto := EnrichmentStatus{
		Enabled:   enabled,
		Running:   status.Running,
		Pending:   status.Pending,
		InFlight:  status.InFlight,
		LastError: status.LastError,
	}
	if status.LastBatch != nil {
		batch := FromBatchResult(*status.LastBatch)
		dto.LastBatch = &batch
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
