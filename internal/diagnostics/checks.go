package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"stockpile/internal/config"
)

// RunChecks verifies the directories and local tools the configuration
// points at. Optional features only get checked when enabled.
func RunChecks(cfg *config.Config) []Check {
	if cfg == nil {
		return nil
	}
	checks := []Check{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) != "" {
		checks = append(checks, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))
	}
	if cfg.Providers.Overrides.Enabled {
		checks = append(checks, CheckOptionalFile("Overrides file", cfg.Providers.Overrides.Path))
	}
	if cfg.Providers.Winget.Enabled && runtime.GOOS == "windows" {
		checks = append(checks, CheckBinary("winget", cfg.Providers.Winget.Binary))
	}
	return checks
}

// CheckDirectoryAccess verifies path is a directory this process can write.
func CheckDirectoryAccess(name, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Check{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := checkWritable(path); err != nil {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Check{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOptionalFile passes when path is absent or a readable regular file.
func CheckOptionalFile(name, path string) Check {
	if strings.TrimSpace(path) == "" {
		return Check{Name: name, Passed: true, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Check{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not present)", path)}
	case err != nil:
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	case info.IsDir():
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	f, err := os.Open(path)
	if err != nil {
		return Check{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	_ = f.Close()
	return Check{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckBinary reports whether command resolves on PATH. A missing tool is
// reported but only disables the provider using it.
func CheckBinary(name, command string) Check {
	if strings.TrimSpace(command) == "" {
		return Check{Name: name, Detail: "no binary configured"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Check{Name: name, Detail: fmt.Sprintf("%s not found on PATH", command)}
	}
	return Check{Name: name, Passed: true, Detail: resolved}
}
