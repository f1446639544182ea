package enrichment

import (
	"strings"
	"time"

	"stockpile/internal/catalog"
	"stockpile/internal/providers"
	"stockpile/internal/textutil"
)

// metaTitle holds the provider's title when it differs from the detected
// name. The entry name is identity and is never rewritten.
const metaTitle = "title"

// apply merges an accepted result into entry. Non-empty fields overwrite,
// extras are merged key by key.
func apply(entry *catalog.Entry, provider string, found *providers.Result, now time.Time) {
	setIf(&entry.Description, found.Description)
	setIf(&entry.Publisher, found.Publisher)
	setIf(&entry.ReleaseDate, found.ReleaseDate)
	setIf(&entry.CoverImageURL, found.CoverImageURL)
	if genres := compact(found.Genres); len(genres) > 0 {
		entry.Genres = genres
	}
	if developers := compact(found.Developers); len(developers) > 0 {
		entry.Developers = developers
	}

	if entry.AdditionalMetadata == nil {
		entry.AdditionalMetadata = make(map[string]any)
	}
	meta := entry.AdditionalMetadata
	if title := strings.TrimSpace(found.Title); title != "" && title != entry.Name {
		meta[metaTitle] = title
	}
	for key, value := range found.RawExtras {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		switch key {
		case providers.ExtraID:
			meta[provider+"_id"] = value
		case providers.ExtraRating:
			if rating, ok := normalizeRating(value); ok {
				meta[providers.ExtraRating] = rating
			}
		default:
			meta[key] = value
		}
	}

	stamp := now.UTC()
	entry.State = catalog.StateEnriched
	entry.EnrichmentSource = provider
	entry.LastEnrichedAt = &stamp
	entry.LastAttemptedAt = &stamp
	entry.LastEnrichmentError = ""
}

func setIf(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

// compact trims values and drops blanks and repeats.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if textutil.EqualNames(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// normalizeRating maps percentages and fractions onto 0..1.
func normalizeRating(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, false
	}
	if f > 1 {
		f /= 100
	}
	return min(max(f, 0), 1), true
}
