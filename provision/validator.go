// omp-launcher/provision/validator.go
package provision

import (
	"fmt"
	"strings"
	"sync"
)

// Mismatch describes a resource that failed validation.
type Mismatch struct {
	Resource Resource `json:"resource"`
	Actual   string   `json:"actual,omitempty"`
	Missing  bool     `json:"missing"`
}

func (m Mismatch) Error() string {
	if m.Missing {
		return fmt.Sprintf("%s: %s not found", ErrChecksumMismatch, m.Resource.RelPath())
	}
	return fmt.Sprintf("%s: %s has %s, want %s", ErrChecksumMismatch, m.Resource.RelPath(), m.Actual, m.Resource.Checksum)
}

func (m Mismatch) Unwrap() error { return ErrChecksumMismatch }

// Validate checks every table entry against the computed records and returns
// one result per entry, in table order. Entries are checked concurrently.
func Validate(records []string, table *Table) []bool {
	results := make([]bool, len(table.Resources))
	var wg sync.WaitGroup
	for i, res := range table.Resources {
		wg.Add(1)
		go func(i int, res Resource) {
			defer wg.Done()
			results[i] = checkResource(records, res, true) == nil
		}(i, res)
	}
	wg.Wait()
	return results
}

func AllValid(results []bool) bool {
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// Mismatches returns the failing entries, in table order.
func Mismatches(records []string, table *Table) []Mismatch {
	var out []Mismatch
	for _, res := range table.Resources {
		if m := checkResource(records, res, false); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func checkResource(records []string, res Resource, logResult bool) *Mismatch {
	expected := res.RelPath()
	for _, record := range records {
		p, hash, _ := ParseRecord(record)
		if !strings.Contains(p, expected) {
			continue
		}
		if hash == "" || hash != res.Checksum {
			if logResult {
				logger.Warn("checksum mismatch", "resource", res.ID(), "expected", res.Checksum, "actual", hash)
			}
			return &Mismatch{Resource: res, Actual: hash}
		}
		if logResult {
			logger.Debug("validation successful", "resource", res.ID())
		}
		return nil
	}
	if logResult {
		logger.Warn("file not found", "resource", res.ID(), "path", expected)
	}
	return &Mismatch{Resource: res, Missing: true}
}
