// omp-launcher/updateinfo/updateinfo.go
package updateinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"omp-launcher/logs"
	"omp-launcher/utils"
)

var logger = logs.L("updateinfo")

// Info is the launcher metadata served by the update endpoint.
type Info struct {
	Version           string `json:"version"`
	Download          string `json:"download"`
	Changelog         string `json:"changelog"`
	OMPPluginChecksum string `json:"ompPluginChecksum"`
	OMPPluginDownload string `json:"ompPluginDownload"`
}

// HasPlugin reports whether the info names a plugin to install.
func (i Info) HasPlugin() bool {
	return i.OMPPluginChecksum != "" && i.OMPPluginDownload != ""
}

// Client fetches Info from the update endpoint.
type Client struct {
	URL       string
	BackupURL string
}

func (c *Client) Fetch(ctx context.Context) (Info, error) {
	body, err := utils.DownloadWithRetries(ctx, c.URL, c.BackupURL)
	if err != nil {
		return Info{}, fmt.Errorf("fetch update info: %w", err)
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return Info{}, fmt.Errorf("decode update info: %w", err)
	}
	return info, nil
}

// Fetcher is anything that can produce Info.
type Fetcher interface {
	Fetch(ctx context.Context) (Info, error)
}

// Session caches Info for the lifetime of the process. The first successful
// fetch is reused by every later Get; a failed fetch is not cached.
type Session struct {
	fetcher Fetcher

	mu     sync.Mutex
	info   Info
	cached bool
}

func NewSession(f Fetcher) *Session {
	return &Session{fetcher: f}
}

func (s *Session) Get(ctx context.Context) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached {
		return s.info, nil
	}
	info, err := s.fetcher.Fetch(ctx)
	if err != nil {
		logger.Error("failed to get update info", "error", err)
		return Info{}, err
	}
	s.info, s.cached = info, true
	logger.Info("update info cached", "version", info.Version)
	return info, nil
}

// Cached returns the session value without fetching.
func (s *Session) Cached() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.cached
}

// CheckResult reports whether a newer launcher is available.
type CheckResult struct {
	UpdateAvailable bool   `json:"updateAvailable"`
	CurrentVersion  string `json:"currentVersion"`
	Latest          *Info  `json:"latestVersion,omitempty"`
}

func Check(info Info, current string) CheckResult {
	res := CheckResult{CurrentVersion: current}
	if compareVersions(info.Version, current) > 0 {
		res.UpdateAvailable = true
		res.Latest = &info
	}
	return res
}

// compareVersions compares dotted numeric versions, ignoring a leading "v".
// Non-numeric parts compare as strings.
func compareVersions(a, b string) int {
	pa := strings.Split(strings.TrimPrefix(a, "v"), ".")
	pb := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y string
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		xi, errX := strconv.Atoi(orZero(x))
		yi, errY := strconv.Atoi(orZero(y))
		if errX == nil && errY == nil {
			if xi != yi {
				if xi > yi {
					return 1
				}
				return -1
			}
			continue
		}
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
