// Package crosswalk loads entity identity crosswalk tables and answers
// membership queries against them. Lookups go through a bloom filter
// first so the common definitely-unmapped case never touches the exact
// set.
package crosswalk

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/snapgov/snapgov/internal/bloom"
)

// Table is a loaded crosswalk: the set of identity values known to the
// mapping layer.
type Table struct {
	ids    map[string]struct{}
	filter *bloom.Filter
	column string
}

// Load reads a crosswalk CSV from disk and indexes the named identity
// column.
func Load(ctx context.Context, path, column string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crosswalk: failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(ctx, f, column)
}

// Read parses a crosswalk CSV from a reader and indexes the named
// identity column.
func Read(ctx context.Context, r io.Reader, column string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("crosswalk: failed to read header: %w", err)
	}
	idx := -1
	for i, col := range header {
		if col == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("crosswalk: identity column %q not found (have %s)",
			column, strings.Join(header, ", "))
	}

	ids := make(map[string]struct{})
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("crosswalk: failed to read row: %w", err)
		}
		if idx >= len(rec) {
			continue
		}
		id := strings.TrimSpace(rec[idx])
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("crosswalk: no identity values in column %q", column)
	}

	filter := bloom.NewWithEstimates(uint64(len(ids)), 0.01)
	for id := range ids {
		filter.AddString(id)
	}

	return &Table{ids: ids, filter: filter, column: column}, nil
}

// Len returns the number of distinct identity values loaded.
func (t *Table) Len() int {
	return len(t.ids)
}

// Column returns the identity column the table was built from.
func (t *Table) Column() string {
	return t.column
}

// Contains reports whether the identity value is mapped. The bloom
// filter rejects definite misses before the exact set is consulted.
func (t *Table) Contains(id string) bool {
	if !t.filter.ContainsString(id) {
		return false
	}
	_, ok := t.ids[id]
	return ok
}
