package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"stockpile/internal/inventory"
	"stockpile/internal/logging"
)

// Name is the detector name used in config and reports.
const Name = "registry"

// Record is one uninstall entry. DWORD values are rendered in decimal.
type Record struct {
	Key    string
	Values map[string]string
}

// Source lists uninstall records. Records may return detect.RecordErrors next
// to the records it could read.
type Source interface {
	Available() bool
	Records(ctx context.Context) ([]Record, error)
}

// Detector turns uninstall records into generic candidates.
type Detector struct {
	source Source
	logger *slog.Logger
}

// New builds a registry detector over source.
func New(source Source, logger *slog.Logger) *Detector {
	return &Detector{source: source, logger: logging.NewComponentLogger(logger, "detect.registry")}
}

func (d *Detector) Name() string { return Name }
func (d *Detector) Origin() inventory.Origin { return inventory.OriginRegistry }
func (d *Detector) Generic() bool { return true }
func (d *Detector) IsAvailable(ctx context.Context) bool { return d.source != nil && d.source.Available() }

// Detect reads every uninstall record and keeps user-visible products.
func (d *Detector) Detect(ctx context.Context) ([]inventory.Candidate, error) {
	records, err := d.source.Records(ctx)
	candidates := make([]inventory.Candidate, 0, len(records))
	hidden := 0
	for _, record := range records {
		candidate, ok := toCandidate(record)
		if !ok {
			hidden++
			continue
		}
		candidates = append(candidates, candidate)
	}
	d.logger.Debug("registry records read",
		logging.Int("records", len(records)),
		logging.Int("hidden", hidden),
		logging.Int("candidates", len(candidates)),
	)
	return candidates, err
}

func toCandidate(record Record) (inventory.Candidate, bool) {
	v := record.Values
	name := strings.TrimSpace(v["DisplayName"])
	if name == "" || v["SystemComponent"] == "1" || strings.TrimSpace(v["ParentKeyName"]) != "" {
		return inventory.Candidate{}, false
	}

	c := inventory.Candidate{
		Name:        name,
		Origin:      inventory.OriginRegistry,
		Version:     strings.TrimSpace(v["DisplayVersion"]),
		InstallPath: strings.Trim(strings.TrimSpace(v["InstallLocation"]), `"`),
		Category:    Classify(name),
	}
	if releaseType := strings.ToLower(strings.TrimSpace(v["ReleaseType"])); strings.Contains(releaseType, "update") || releaseType == "hotfix" {
		c.Category = inventory.CategoryUpdate
	}

	if icon := iconPath(v["DisplayIcon"]); icon != "" {
		c.IconHint = icon
		if strings.EqualFold(filepath.Ext(icon), ".exe") && !isUninstaller(icon) {
			c.ExecutablePath = icon
		}
	}
	if t, err := time.ParseInLocation("20060102", strings.TrimSpace(v["InstallDate"]), time.Local); err == nil {
		c.InstallTime = t
	}

	c.SetAttr(inventory.AttrPublisher, v["Publisher"])
	homepage := v["URLInfoAbout"]
	if strings.TrimSpace(homepage) == "" {
		homepage = v["HelpLink"]
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(homepage)), "http") {
		c.SetAttr(inventory.AttrHomepage, homepage)
	}
	c.SetAttr("registry_key", record.Key)
	c.SetAttr("estimated_size_kb", v["EstimatedSize"])
	return c, true
}

// iconPath strips the ",index" suffix and quotes from a DisplayIcon value.
func iconPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.LastIndex(raw, ","); i > 0 {
		if isDigits(strings.TrimPrefix(strings.TrimSpace(raw[i+1:]), "-")) {
			raw = raw[:i]
		}
	}
	return strings.Trim(strings.TrimSpace(raw), `"`)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUninstaller(path string) bool {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(path, `\`, "/")))
	return strings.HasPrefix(base, "unins") || strings.Contains(base, "uninstall")
}

var componentRules = []struct {
	pattern  *regexp.Regexp
	category inventory.Category
}{
	{regexp.MustCompile(`(?i)^microsoft office .*(component|shared|mui|proofing|click-to-run)|^office \d+ click-to-run`), inventory.CategoryOfficeComponent},
	{regexp.MustCompile(`(?i)\b(security )?update for\b|\bhotfix\b|\bservice pack\b|\(kb\d+\)`), inventory.CategoryUpdate},
	{regexp.MustCompile(`(?i)\blanguage pack\b|\bproofing tools\b`), inventory.CategoryLanguagePack},
	{regexp.MustCompile(`(?i)redistributable|vcredist|\bdirectx\b|\.net (framework|runtime|desktop runtime)|\bruntime\b`), inventory.CategoryRuntime},
	{regexp.MustCompile(`(?i)\bdriver\b|\bchipset\b`), inventory.CategoryDriver},
	{regexp.MustCompile(`(?i)\bsdk\b|software development kit`), inventory.CategorySDK},
}

// Classify assigns a component category to shared libraries, runtimes and
// similar entries no metadata provider describes. Products return empty.
func Classify(name string) inventory.Category {
	for _, rule := range componentRules {
		if rule.pattern.MatchString(name) {
			return rule.category
		}
	}
	return inventory.CategoryNone
}
