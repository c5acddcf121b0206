// omp-launcher/game/paths.go
package game

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// AppIdentifier names the launcher's folder under the local data dir.
	AppIdentifier  = "com.open.mp"
	ExecutableName = "gta_sa.exe"
)

// DefaultDataDir returns the per-user local data dir the managed tree lives in.
func DefaultDataDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home dir: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("locate home dir: %w", err)
			}
			base = filepath.Join(home, ".local", "share")
		}
	}
	if base == "" {
		return "", fmt.Errorf("local data dir is not set")
	}
	return filepath.Join(base, AppIdentifier), nil
}

// ResolveDataDir prefers the configured dir and falls back to DefaultDataDir.
func ResolveDataDir(configured string) (string, error) {
	if configured != "" {
		return filepath.Abs(configured)
	}
	return DefaultDataDir()
}

// ValidateGamePath checks that dir is a GTA San Andreas installation.
func ValidateGamePath(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("game path is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("game path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("game path %s is not a directory", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, ExecutableName)); err != nil {
		return fmt.Errorf("%s not found in %s", ExecutableName, dir)
	}
	return nil
}

// installDirFromRegistry turns a registry value, a folder or a possibly
// quoted path to the executable, into the installation folder.
func installDirFromRegistry(value string) string {
	dir := strings.TrimSpace(value)
	if len(dir) >= 2 && dir[0] == '"' && dir[len(dir)-1] == '"' {
		dir = dir[1 : len(dir)-1]
	}
	if strings.EqualFold(filepath.Ext(dir), ".exe") {
		dir = filepath.Dir(dir)
	}
	return filepath.Clean(dir)
}
