package partition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/snapgov/snapgov/internal/storage"
	"github.com/snapgov/snapgov/pkg/types"
)

// Partition is one discovered snapshot directory: its files plus the
// parsed manifest sidecar. Manifest is nil when the sidecar is missing
// or unreadable; callers decide how severe that is.
type Partition struct {
	Key      types.PartitionKey
	Files    []storage.FileInfo
	Manifest *Manifest

	// ManifestErr records why Manifest is nil
	ManifestErr error
}

// DataFiles returns the partition's data files: everything except the
// manifest sidecar, dotfiles, and leftover temp files.
func (p *Partition) DataFiles() []storage.FileInfo {
	var out []storage.FileInfo
	for _, f := range p.Files {
		if f.Name == ManifestFileName {
			continue
		}
		if strings.HasPrefix(f.Name, ".") || strings.HasSuffix(f.Name, ".tmp") {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Discover loads one partition: its file listing and manifest. A
// missing manifest is recorded on the partition rather than returned
// as an error; a missing directory is an error.
func Discover(ctx context.Context, store storage.PartitionStore, key types.PartitionKey) (*Partition, error) {
	files, err := store.ListFiles(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to list %s: %w", key.Path(), err)
	}

	p := &Partition{Key: key, Files: files}
	m, err := ReadManifest(ctx, store, key)
	if err != nil {
		p.ManifestErr = err
	} else {
		p.Manifest = m
	}
	return p, nil
}

// DiscoverAll loads every partition of one dataset, sorted by date
// ascending.
func DiscoverAll(ctx context.Context, store storage.PartitionStore, ref types.DatasetRef) ([]*Partition, error) {
	dates, err := store.ListDates(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to list dates for %s: %w", ref, err)
	}

	parts := make([]*Partition, 0, len(dates))
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := Discover(ctx, store, types.PartitionKey{Source: ref.Source, Dataset: ref.Dataset, Date: d})
		if err != nil {
			// a dt= directory emptied between listing and discovery is
			// skipped, anything else propagates
			if errors.Is(err, storage.ErrPartitionNotFound) {
				continue
			}
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}
