// Package storage provides access to the partition storage layout
// shared with the ingestion collaborators: one directory per
// (source, dataset, snapshot_date) of the form
// <root>/<source>/<dataset>/dt=<YYYY-MM-DD>/<file>.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/snapgov/snapgov/pkg/types"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound    = errors.New("object not found")
	ErrPartitionNotFound = errors.New("partition not found")
	ErrReadFailed        = errors.New("read failed")
	ErrListFailed        = errors.New("list failed")
	ErrPublishFailed     = errors.New("publish failed")
)

// FileInfo describes one file inside a partition directory.
type FileInfo struct {
	// Path is the storage-relative path of the file
	Path string

	// Name is the file's base name
	Name string

	// Size is the file size in bytes
	Size int64
}

// PartitionStore abstracts the lake layout over a filesystem or object
// store. All operations are read-only; ingestion collaborators own the
// writes.
type PartitionStore interface {
	// ListRefs returns every (source, dataset) pair under the root,
	// optionally filtered to one source (empty string means all).
	ListRefs(ctx context.Context, sourceFilter string) ([]types.DatasetRef, error)

	// ListDates returns the snapshot dates that have a dt= directory for
	// the given dataset, sorted ascending.
	ListDates(ctx context.Context, ref types.DatasetRef) ([]types.SnapshotDate, error)

	// ListFiles returns the files inside one partition directory.
	// Returns ErrPartitionNotFound when the dt= directory does not exist.
	ListFiles(ctx context.Context, key types.PartitionKey) ([]FileInfo, error)

	// Open opens a stored file for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a stored file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// DatePrefix is the directory-name prefix for partition dates.
const DatePrefix = "dt="

// ParsePartitionDir extracts the snapshot date from a dt= directory
// name. The second return value is false for non-partition directories.
func ParsePartitionDir(name string) (types.SnapshotDate, bool) {
	if len(name) <= len(DatePrefix) || name[:len(DatePrefix)] != DatePrefix {
		return types.SnapshotDate{}, false
	}
	d, err := types.ParseSnapshotDate(name[len(DatePrefix):])
	if err != nil {
		return types.SnapshotDate{}, false
	}
	return d, true
}
