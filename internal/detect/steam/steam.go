package steam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"stockpile/internal/detect"
	"stockpile/internal/inventory"
	"stockpile/internal/logging"
)

// Name is the detector name used in config and reports.
const Name = "steam"

// stateFullyInstalled is the StateFlags bit Steam sets once an app is on disk.
const stateFullyInstalled = 4

// toolApps are Steam app ids that install runtimes rather than games.
var toolApps = map[string]struct{}{
	"228980":  {}, // Steamworks Common Redistributables
	"1070560": {}, // Steam Linux Runtime
	"1391110": {}, // Steam Linux Runtime - Soldier
	"1628350": {}, // Steam Linux Runtime - Sniper
	"1493710": {}, // Proton Experimental
}

// Detector reads Steam library manifests.
type Detector struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	known []inventory.Candidate
}

// New builds a Steam detector. An empty root probes the platform defaults.
func New(root string, logger *slog.Logger) *Detector {
	return &Detector{root: strings.TrimSpace(root), logger: logging.NewComponentLogger(logger, "detect.steam")}
}

// DefaultRoots lists the usual Steam install locations for this platform.
func DefaultRoots() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		return []string{`C:\Program Files (x86)\Steam`, `C:\Program Files\Steam`}
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Steam")}
	default:
		return []string{
			filepath.Join(home, ".steam", "steam"),
			filepath.Join(home, ".local", "share", "Steam"),
			filepath.Join(home, ".var", "app", "com.valvesoftware.Steam", ".local", "share", "Steam"),
		}
	}
}

func (d *Detector) Name() string { return Name }

func (d *Detector) Origin() inventory.Origin { return inventory.OriginSteam }

func (d *Detector) Generic() bool { return false }

// IsAvailable reports whether a Steam root with a steamapps directory exists.
func (d *Detector) IsAvailable(context.Context) bool {
	return d.resolveRoot() != ""
}

func (d *Detector) resolveRoot() string {
	roots := DefaultRoots()
	if d.root != "" {
		roots = []string{d.root}
	}
	for _, root := range roots {
		if info, err := os.Stat(filepath.Join(root, "steamapps")); err == nil && info.IsDir() {
			return root
		}
	}
	return ""
}

// Detect returns one candidate per fully installed app across every library.
func (d *Detector) Detect(ctx context.Context) ([]inventory.Candidate, error) {
	root := d.resolveRoot()
	if root == "" {
		return nil, errors.New("steam root not found")
	}

	var skipped detect.RecordErrors
	libraries, err := d.libraries(root)
	if err != nil {
		// The main library is still usable without libraryfolders.vdf.
		skipped.Add(Name, filepath.Join(root, "steamapps", "libraryfolders.vdf"), err)
		libraries = []string{root}
	}

	var candidates []inventory.Candidate
	for _, library := range libraries {
		manifests, err := filepath.Glob(filepath.Join(library, "steamapps", "appmanifest_*.acf"))
		if err != nil {
			skipped.Add(Name, library, err)
			continue
		}
		sort.Strings(manifests)
		for _, manifest := range manifests {
			if err := ctx.Err(); err != nil {
				return candidates, err
			}
			candidate, ok, err := d.readManifest(root, library, manifest)
			if err != nil {
				skipped.Add(Name, manifest, err)
				continue
			}
			if ok {
				candidates = append(candidates, candidate)
			}
		}
	}

	d.mu.Lock()
	d.known = candidates
	d.mu.Unlock()
	return candidates, skipped.Err()
}

// libraries returns the root library plus every path in libraryfolders.vdf.
func (d *Detector) libraries(root string) ([]string, error) {
	path := filepath.Join(root, "steamapps", "libraryfolders.vdf")
	libraries := []string{root}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return libraries, nil
	}
	parsed, err := parseFile(path)
	if err != nil {
		return libraries, err
	}
	folders, ok := child(parsed, "libraryfolders")
	if !ok {
		return libraries, fmt.Errorf("missing libraryfolders section")
	}

	keys := make([]string, 0, len(folders))
	for key := range folders {
		if _, err := strconv.Atoi(key); err == nil {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})

	seen := map[string]struct{}{canonical(root): {}}
	for _, key := range keys {
		var libPath string
		switch v := folders[key].(type) {
		case string:
			libPath = v
		case node:
			libPath = str(v, "path")
		}
		libPath = unescapePath(strings.TrimSpace(libPath))
		if libPath == "" {
			continue
		}
		canon := canonical(libPath)
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		libraries = append(libraries, libPath)
	}
	return libraries, nil
}

// canonical resolves symlinks so ~/.steam/steam and its target compare equal.
func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func (d *Detector) readManifest(root, library, path string) (inventory.Candidate, bool, error) {
	parsed, err := parseFile(path)
	if err != nil {
		return inventory.Candidate{}, false, err
	}
	state, ok := child(parsed, "AppState")
	if !ok {
		return inventory.Candidate{}, false, errors.New("missing AppState section")
	}
	appID := str(state, "appid")
	name := str(state, "name")
	installDir := str(state, "installdir")
	if appID == "" || name == "" {
		return inventory.Candidate{}, false, errors.New("manifest lacks appid or name")
	}
	if flags, err := strconv.Atoi(str(state, "StateFlags")); err == nil && flags&stateFullyInstalled == 0 {
		d.logger.Debug("skipping app not fully installed", logging.String("appid", appID), logging.Int("state_flags", flags))
		return inventory.Candidate{}, false, nil
	}

	c := inventory.Candidate{
		Name:       name,
		Origin:     inventory.OriginSteam,
		ExternalID: appID,
		Version:    str(state, "buildid"),
		Category:   inventory.CategoryGame,
	}
	if installDir != "" {
		c.InstallPath = filepath.Join(library, "steamapps", "common", installDir)
	}
	if secs, err := strconv.ParseInt(str(state, "LastUpdated"), 10, 64); err == nil && secs > 0 {
		c.InstallTime = time.Unix(secs, 0).UTC()
	}
	if _, tool := toolApps[appID]; tool || strings.HasPrefix(name, "Proton ") {
		c.Category = inventory.CategoryRuntime
	}
	icon := filepath.Join(root, "appcache", "librarycache", appID+"_icon.jpg")
	if _, err := os.Stat(icon); err == nil {
		c.IconHint = icon
	}
	c.SetAttr("library", library)
	c.SetAttr("size_on_disk", str(state, "SizeOnDisk"))
	c.SetAttr("state_flags", str(state, "StateFlags"))
	c.SetAttr("manifest", path)
	return c, true, nil
}

// ClaimFromPath returns the Steam app installed at or above path.
func (d *Detector) ClaimFromPath(ctx context.Context, path string) (*inventory.Candidate, bool) {
	d.mu.Lock()
	known := d.known
	d.mu.Unlock()
	if known == nil {
		if !d.IsAvailable(ctx) {
			return nil, false
		}
		var err error
		if known, err = d.Detect(ctx); known == nil {
			if err != nil {
				d.logger.Debug("claim scan failed", logging.Error(err))
			}
			return nil, false
		}
	}
	for _, candidate := range known {
		if candidate.InstallPath != "" && detect.UnderPath(path, candidate.InstallPath) {
			c := candidate.Clone()
			return &c, true
		}
	}
	return nil, false
}
