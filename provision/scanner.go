// omp-launcher/provision/scanner.go
package provision

import (
	"fmt"
	"os"
	"path/filepath"
)

// CollectFiles lists every non-directory entry under root as an absolute path.
// Directories are walked with an explicit stack; within a directory the order
// is the one os.ReadDir returns. Any unreadable directory fails the whole call.
func CollectFiles(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrFilesystem, root, err)
	}

	var files []string
	stack := []string{absRoot}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: read dir %s: %v", ErrFilesystem, dir, err)
		}

		// Push subdirectories in reverse so they are visited in listing order.
		var subdirs []string
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				subdirs = append(subdirs, full)
				continue
			}
			files = append(files, full)
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return files, nil
}
