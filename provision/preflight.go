// omp-launcher/provision/preflight.go
package provision

import (
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
)

// minFreeBytes is roughly the size of the extracted client tree plus its archive.
const minFreeBytes = 256 * 1024 * 1024

// checkFreeSpace warns when dir's volume looks too small for a download.
// It never fails the run; the download itself reports a real out-of-space error.
func checkFreeSpace(dir string) {
	usage, err := disk.Usage(dir)
	if err != nil {
		logger.Debug("disk usage unavailable", "dir", dir, "error", err)
		return
	}
	if usage.Free < minFreeBytes {
		logger.Warn("low disk space before download",
			"dir", dir,
			"free", humanize.Bytes(usage.Free),
			"recommended", humanize.Bytes(minFreeBytes))
	}
}
