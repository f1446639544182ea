// Package epic detects games installed by the Epic Games Launcher from its
// per-product JSON .item descriptors.
package epic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"stockpile/internal/detect"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
)

// Name is the detector name used in config and reports.
const Name = "epic"

// item is the subset of a launcher manifest the detector reads.
type item struct {
	DisplayName         string   `json:"DisplayName"`
	AppName             string   `json:"AppName"`
	MainGameAppName     string   `json:"MainGameAppName"`
	CatalogNamespace    string   `json:"CatalogNamespace"`
	CatalogItemID       string   `json:"CatalogItemId"`
	InstallLocation     string   `json:"InstallLocation"`
	LaunchExecutable    string   `json:"LaunchExecutable"`
	AppVersionString    string   `json:"AppVersionString"`
	InstallSize         int64    `json:"InstallSize"`
	AppCategories       []string `json:"AppCategories"`
	IsIncompleteInstall bool     `json:"bIsIncompleteInstall"`
	IsApplication       *bool    `json:"bIsApplication"`
}

// Detector reads Epic Games Launcher manifests.
type Detector struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	known []inventory.Candidate
}

// New builds an Epic detector. An empty dir uses DefaultManifestsDir.
func New(dir string, logger *slog.Logger) *Detector {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultManifestsDir()
	}
	return &Detector{dir: dir, logger: logging.NewComponentLogger(logger, "detect.epic")}
}

// DefaultManifestsDir returns the launcher's manifest directory for this
// platform, or "" where the launcher does not run.
func DefaultManifestsDir() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("ProgramData")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "Epic", "EpicGamesLauncher", "Data", "Manifests")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Epic", "EpicGamesLauncher", "Data", "Manifests")
	default:
		return ""
	}
}

func (d *Detector) Name() string { return Name }

func (d *Detector) Origin() inventory.Origin { return inventory.OriginEpic }

func (d *Detector) Generic() bool { return false }

func (d *Detector) IsAvailable(context.Context) bool {
	if d.dir == "" {
		return false
	}
	info, err := os.Stat(d.dir)
	return err == nil && info.IsDir()
}

// Detect parses every .item descriptor in the manifests directory.
func (d *Detector) Detect(ctx context.Context) ([]inventory.Candidate, error) {
	paths, err := filepath.Glob(filepath.Join(d.dir, "*.item"))
	if err != nil {
		return nil, fmt.Errorf("list epic manifests: %w", err)
	}
	sort.Strings(paths)

	var (
		candidates []inventory.Candidate
		skipped    detect.RecordErrors
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}
		candidate, ok, err := d.readItem(path)
		if err != nil {
			skipped.Add(Name, path, err)
			continue
		}
		if ok {
			candidates = append(candidates, candidate)
		}
	}

	d.mu.Lock()
	d.known = candidates
	d.mu.Unlock()
	return candidates, skipped.Err()
}

func (d *Detector) readItem(path string) (inventory.Candidate, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return inventory.Candidate{}, false, err
	}
	var it item
	if err := json.Unmarshal(data, &it); err != nil {
		return inventory.Candidate{}, false, fmt.Errorf("decode manifest: %w", err)
	}
	name := strings.TrimSpace(it.DisplayName)
	if name == "" {
		return inventory.Candidate{}, false, errors.New("manifest has no DisplayName")
	}
	if it.IsIncompleteInstall {
		d.logger.Debug("skipping incomplete install", logging.String("app_name", it.AppName))
		return inventory.Candidate{}, false, nil
	}
	if it.MainGameAppName != "" && it.AppName != "" && it.MainGameAppName != it.AppName {
		// Add-ons share the base game's install and are not separate products.
		return inventory.Candidate{}, false, nil
	}

	externalID := strings.TrimSpace(it.CatalogItemID)
	if externalID == "" {
		externalID = strings.TrimSpace(it.AppName)
	}
	c := inventory.Candidate{
		Name:        name,
		Origin:      inventory.OriginEpic,
		ExternalID:  externalID,
		InstallPath: strings.TrimSpace(it.InstallLocation),
		Version:     strings.TrimSpace(it.AppVersionString),
		Category:    categoryFor(it),
	}
	if c.InstallPath != "" && it.LaunchExecutable != "" {
		c.ExecutablePath = filepath.Join(c.InstallPath, filepath.FromSlash(it.LaunchExecutable))
		c.IconHint = c.ExecutablePath
	}
	if info, err := os.Stat(path); err == nil {
		c.InstallTime = info.ModTime().UTC()
	}
	c.SetAttr("app_name", it.AppName)
	c.SetAttr("catalog_namespace", it.CatalogNamespace)
	if it.InstallSize > 0 {
		c.SetAttr("install_size", strconv.FormatInt(it.InstallSize, 10))
	}
	return c, true, nil
}

func categoryFor(it item) inventory.Category {
	switch {
	case slices.Contains(it.AppCategories, "games"):
		return inventory.CategoryGame
	case slices.Contains(it.AppCategories, "engines"), slices.Contains(it.AppCategories, "plugins"):
		return inventory.CategorySoftware
	case it.IsApplication != nil && !*it.IsApplication:
		return inventory.CategorySoftware
	default:
		return inventory.CategoryGame
	}
}

// ClaimFromPath returns the Epic product whose install location contains path.
func (d *Detector) ClaimFromPath(ctx context.Context, path string) (*inventory.Candidate, bool) {
	d.mu.Lock()
	known := d.known
	d.mu.Unlock()
	if known == nil {
		if !d.IsAvailable(ctx) {
			return nil, false
		}
		known, _ = d.Detect(ctx)
	}
	for _, candidate := range known {
		if detect.UnderPath(path, candidate.InstallPath) {
			c := candidate.Clone()
			return &c, true
		}
	}
	return nil, false
}
