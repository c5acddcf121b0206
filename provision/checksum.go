// omp-launcher/provision/checksum.go
package provision

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Hasher computes checksums for a list of files. The result holds one
// "<path>|<hexHash>" record per input path, in input order.
type Hasher interface {
	Checksums(ctx context.Context, paths []string) ([]string, error)
}

const defaultHashWorkers = 4

// FileHasher hashes files with MD5, several at a time.
type FileHasher struct {
	Workers int
}

func (h FileHasher) Checksums(ctx context.Context, paths []string) ([]string, error) {
	workers := h.Workers
	if workers < 1 {
		workers = defaultHashWorkers
	}

	records := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := hashFile(p)
			if err != nil {
				return err
			}
			records[i] = FormatRecord(p, sum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrFilesystem, path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: hash %s: %v", ErrFilesystem, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func FormatRecord(path, hash string) string {
	return path + "|" + hash
}

// ParseRecord splits a checksum record at its last separator.
func ParseRecord(record string) (path, hash string, ok bool) {
	i := strings.LastIndex(record, "|")
	if i < 0 {
		return record, "", false
	}
	return record[:i], record[i+1:], true
}
