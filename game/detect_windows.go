//go:build windows

// omp-launcher/game/detect_windows.go
package game

import (
	"fmt"

	"golang.org/x/sys/windows/registry"

	"omp-launcher/logs"
)

var logger = logs.L("game")

type registryLocation struct {
	root  registry.Key
	path  string
	value string
}

// Installers of the retail, Steam and Rockstar Launcher builds each leave a different key.
var registryLocations = []registryLocation{
	{registry.LOCAL_MACHINE, `SOFTWARE\WOW6432Node\Rockstar Games\GTA San Andreas\Installation`, "ExePath"},
	{registry.LOCAL_MACHINE, `SOFTWARE\Rockstar Games\GTA San Andreas\Installation`, "ExePath"},
	{registry.LOCAL_MACHINE, `SOFTWARE\WOW6432Node\Rockstar Games\San Andreas`, "InstallFolder"},
	{registry.LOCAL_MACHINE, `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall\Steam App 12120`, "InstallLocation"},
	{registry.CURRENT_USER, `SOFTWARE\SAMP`, "gta_sa_exe"},
}

// DetectGamePath looks for a GTA San Andreas installation in the registry.
func DetectGamePath() (string, error) {
	for _, loc := range registryLocations {
		key, err := registry.OpenKey(loc.root, loc.path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		value, _, err := key.GetStringValue(loc.value)
		key.Close()
		if err != nil || value == "" {
			continue
		}

		dir := installDirFromRegistry(value)
		if err := ValidateGamePath(dir); err != nil {
			logger.Debug("registry entry does not point at a game install", "key", loc.path, "path", dir, "error", err)
			continue
		}
		logger.Info("game installation found", "key", loc.path, "path", dir)
		return dir, nil
	}
	return "", fmt.Errorf("no GTA San Andreas installation found in the registry")
}
