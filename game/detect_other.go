//go:build !windows

// omp-launcher/game/detect_other.go
package game

import "fmt"

// DetectGamePath is only supported on Windows.
func DetectGamePath() (string, error) {
	return "", fmt.Errorf("game detection requires the Windows registry")
}
