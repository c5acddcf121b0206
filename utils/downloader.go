// omp-launcher/utils/downloader.go
package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"omp-launcher/logs"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 60 * time.Second
	maxRetries     = 2
	retryBaseDelay = 500 * time.Millisecond
	chunkSize      = 64 * 1024
)

var (
	// ErrDownloadAborted is returned when the transfer was cancelled mid-stream.
	ErrDownloadAborted = errors.New("download aborted")
	// ErrNetwork covers transport failures, bad statuses and truncated bodies.
	ErrNetwork = errors.New("network failure")
	// ErrFilesystem covers failures writing the destination file.
	ErrFilesystem = errors.New("filesystem error")
)

var downloaderLogger = logs.L("downloader")

// ProgressFunc receives the size of each chunk written and the announced
// total (0 when the server sent no Content-Length).
type ProgressFunc func(delta, total int64)

// FileDownloader streams remote files to disk.
type FileDownloader struct {
	Client *http.Client
}

func NewFileDownloader() *FileDownloader {
	return &FileDownloader{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: requestTimeout,
			},
		},
	}
}

// Download writes url to dest, calling onProgress once per chunk. It returns
// nil only once the whole body is on disk. A cancelled ctx yields
// ErrDownloadAborted and the partial file is left in place.
func (d *FileDownloader) Download(ctx context.Context, url, dest string, onProgress ProgressFunc) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrDownloadAborted, ctx.Err())
		}
		return fmt.Errorf("%w: GET %s: %v", ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s: unexpected status %s", ErrNetwork, url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrFilesystem, filepath.Dir(dest), err)
	}
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrFilesystem, dest, err)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	downloaderLogger.Info("download started", "url", url, "dest", dest, "bytes", total)

	received, copyErr := copyChunks(ctx, file, resp.Body, total, onProgress)
	closeErr := file.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %v", ErrFilesystem, dest, closeErr)
	}
	if total > 0 && received < total {
		return fmt.Errorf("%w: short body from %s: got %d of %d bytes", ErrNetwork, url, received, total)
	}

	downloaderLogger.Info("download complete", "url", url, "dest", dest, "bytes", received)
	return nil
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, chunkSize)
	var received int64
	for {
		if err := ctx.Err(); err != nil {
			return received, fmt.Errorf("%w: %v", ErrDownloadAborted, err)
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return received, fmt.Errorf("%w: write: %v", ErrFilesystem, err)
			}
			received += int64(n)
			if onProgress != nil {
				onProgress(int64(n), total)
			}
		}
		if readErr == io.EOF {
			return received, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return received, fmt.Errorf("%w: %v", ErrDownloadAborted, ctx.Err())
			}
			return received, fmt.Errorf("%w: read body: %v", ErrNetwork, readErr)
		}
	}
}

// DownloadWithRetries tries primaryURL and then backupURL, retrying each a few times.
func DownloadWithRetries(ctx context.Context, primaryURL string, backupURL string) ([]byte, error) {
	urlsToTry := []string{primaryURL}
	if backupURL != "" && backupURL != "0" {
		urlsToTry = append(urlsToTry, backupURL)
	}

	var lastErr error
	for _, url := range urlsToTry {
		body, err := downloadAttempt(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		downloaderLogger.Warn("download failed, trying next URL", "url", url, "error", err)
	}

	return nil, fmt.Errorf("all download attempts failed: %w", lastErr)
}

func downloadAttempt(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
		},
		Timeout: requestTimeout,
	}
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * retryBaseDelay):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status %s", resp.Status)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response body: %w", err)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("still failing after %d retries: %w", maxRetries, lastErr)
}
