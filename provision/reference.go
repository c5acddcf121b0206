// omp-launcher/provision/reference.go
package provision

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed checksums.yaml
var defaultTableYAML []byte

// Resource is one file of the managed tree and the hash it must have.
type Resource struct {
	Name     string `yaml:"name"`
	Key      string `yaml:"key,omitempty"`
	Dir      string `yaml:"dir"`
	Checksum string `yaml:"checksum"`
	Display  string `yaml:"display,omitempty"`
}

// ID is the key the resource is indexed by.
func (r Resource) ID() string {
	if r.Key != "" {
		return r.Key
	}
	return r.Name
}

// RelPath is the resource location relative to the data dir, in OS form.
func (r Resource) RelPath() string {
	return filepath.FromSlash(path.Join(r.Dir, r.Name))
}

// Table is the reference table. It is not modified after loading.
type Table struct {
	ManagedDir string     `yaml:"managed_dir"`
	Archive    string     `yaml:"archive"`
	Resources  []Resource `yaml:"resources"`

	index map[string]int
}

// DefaultTable returns the compiled-in table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTableYAML)
}

// LoadTable reads a table override from disk, or the compiled-in table when file is empty.
func LoadTable(file string) (*Table, error) {
	if file == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read reference table: %w", err)
	}
	return ParseTable(data)
}

func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the table invariants and builds the lookup index.
func (t *Table) Validate() error {
	var problems []string
	if t.ManagedDir == "" {
		problems = append(problems, "managed_dir is empty")
	}
	if t.Archive == "" {
		problems = append(problems, "archive is empty")
	}
	if len(t.Resources) == 0 {
		problems = append(problems, "no resources listed")
	}

	managed := path.Clean(t.ManagedDir)
	index := make(map[string]int, len(t.Resources))
	for i, r := range t.Resources {
		id := r.ID()
		if r.Name == "" {
			problems = append(problems, fmt.Sprintf("resource %d: name is empty", i))
			continue
		}
		if _, dup := index[id]; dup {
			problems = append(problems, fmt.Sprintf("resource %q: duplicate key", id))
			continue
		}
		if r.Checksum == "" {
			problems = append(problems, fmt.Sprintf("resource %q: checksum is empty", id))
		}
		rel := path.Clean(path.Join(r.Dir, r.Name))
		if path.IsAbs(rel) || filepath.IsAbs(r.Dir) || !strings.HasPrefix(rel, managed+"/") {
			problems = append(problems, fmt.Sprintf("resource %q: %s is outside %s", id, rel, managed))
		}
		index[id] = i
	}
	if t.Archive != "" {
		if _, ok := index[t.Archive]; !ok {
			problems = append(problems, fmt.Sprintf("archive %q has no resource entry", t.Archive))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidTable, strings.Join(problems, "\n  - "))
	}
	t.index = index
	return nil
}

// Lookup finds a resource by key.
func (t *Table) Lookup(key string) (Resource, bool) {
	i, ok := t.index[key]
	if !ok {
		return Resource{}, false
	}
	return t.Resources[i], true
}

// ArchiveResource is the entry describing the downloaded archive itself.
func (t *Table) ArchiveResource() Resource {
	r, _ := t.Lookup(t.Archive)
	return r
}

func (t *Table) Len() int { return len(t.Resources) }
