// omp-launcher/provision/extract.go
package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// Extractor unpacks an archive into a directory.
type Extractor interface {
	Extract(ctx context.Context, archive, dest string) error
}

// SevenZipExtractor unpacks .7z archives.
type SevenZipExtractor struct{}

func (SevenZipExtractor) Extract(ctx context.Context, archive, dest string) error {
	r, err := sevenzip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrExtraction, archive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: create %s: %v", ErrFilesystem, target, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	logger.Info("archive extracted", "archive", archive, "dest", dest, "entries", len(r.File))
	return nil
}

func extractFile(f *sevenzip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrFilesystem, filepath.Dir(target), err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %s: %v", ErrExtraction, f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrFilesystem, target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("%w: write entry %s: %v", ErrExtraction, f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrFilesystem, target, err)
	}
	return nil
}

// safeJoin resolves an archive entry name under dest, rejecting names that escape it.
func safeJoin(dest, name string) (string, error) {
	cleanDest := filepath.Clean(dest)
	target := filepath.Join(cleanDest, filepath.FromSlash(name))
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes %s", ErrExtraction, name, dest)
	}
	return target, nil
}
