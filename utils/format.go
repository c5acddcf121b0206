// omp-launcher/utils/format.go
package utils

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count the way the loading screen shows it.
func FormatBytes(n uint64) string {
	if n == 0 {
		return "0 B"
	}
	return humanize.Bytes(n)
}

// FormatProgress renders "12 MB / 40 MB (30.0%)", or just the received size
// when the total is unknown.
func FormatProgress(received, total uint64, percent float64) string {
	if total == 0 {
		return FormatBytes(received)
	}
	return fmt.Sprintf("%s / %s (%.1f%%)", FormatBytes(received), FormatBytes(total), percent)
}
