// omp-launcher/cmd/checksums/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"omp-launcher/provision"
)

func main() {
	dataDir := flag.String("dir", ".", "launcher data directory holding the managed tree")
	managed := flag.String("managed", "samp", "managed directory name inside -dir")
	archive := flag.String("archive", "samp_clients.7z", "archive file name inside the managed directory")
	workers := flag.Int("workers", 4, "parallel hash workers")
	flag.Parse()

	table, err := build(*dataDir, *managed, *archive, *workers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "checksums:", err)
		os.Exit(1)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(table); err != nil {
		fmt.Fprintln(os.Stderr, "checksums:", err)
		os.Exit(1)
	}
}

func build(dataDir, managed, archive string, workers int) (*provision.Table, error) {
	root := filepath.Join(dataDir, managed)
	files, err := provision.CollectFiles(root)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	hashes, err := provision.FileHasher{Workers: workers}.Checksums(context.Background(), files)
	if err != nil {
		return nil, err
	}

	table := &provision.Table{ManagedDir: managed, Archive: archive}
	seen := make(map[string]int)
	for i, file := range files {
		rel, err := filepath.Rel(dataDir, file)
		if err != nil {
			return nil, err
		}
		_, sum, ok := provision.ParseRecord(hashes[i])
		if !ok {
			return nil, fmt.Errorf("malformed checksum record %q", hashes[i])
		}
		rel = filepath.ToSlash(rel)
		res := provision.Resource{
			Name:     path.Base(rel),
			Dir:      path.Dir(rel),
			Checksum: sum,
		}
		seen[res.Name]++
		table.Resources = append(table.Resources, res)
	}

	// Names shared by several directories get a key derived from the directory.
	for i, res := range table.Resources {
		if seen[res.Name] > 1 {
			stem := strings.TrimSuffix(res.Name, path.Ext(res.Name))
			table.Resources[i].Key = stem + "-" + path.Base(res.Dir)
		}
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
