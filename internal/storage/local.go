package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/snapgov/snapgov/pkg/types"
)

// LocalStore reads partitions from a local filesystem root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local partition store rooted at the given
// directory. The directory is created if it does not exist.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage: root path cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the store's root directory.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) ListRefs(ctx context.Context, sourceFilter string) ([]types.DatasetRef, error) {
	var sources []string
	if sourceFilter != "" {
		sources = []string{sourceFilter}
	} else {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, fmt.Errorf("storage: %w: %s: %v", ErrListFailed, s.root, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				sources = append(sources, e.Name())
			}
		}
	}

	var refs []types.DatasetRef
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(s.root, src)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("storage: %w: %s: %v", ErrListFailed, dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				refs = append(refs, types.DatasetRef{Source: src, Dataset: e.Name()})
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Source != refs[j].Source {
			return refs[i].Source < refs[j].Source
		}
		return refs[i].Dataset < refs[j].Dataset
	})
	return refs, nil
}

func (s *LocalStore) ListDates(ctx context.Context, ref types.DatasetRef) ([]types.SnapshotDate, error) {
	dir := filepath.Join(s.root, ref.Source, ref.Dataset)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: %w: %s: %v", ErrListFailed, dir, err)
	}

	var dates []types.SnapshotDate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if d, ok := ParsePartitionDir(e.Name()); ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *LocalStore) ListFiles(ctx context.Context, key types.PartitionKey) ([]FileInfo, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(key.Path()))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("storage: %w: %s", ErrPartitionNotFound, key.Path())
	}
	if err != nil {
		return nil, fmt.Errorf("storage: %w: %s: %v", ErrListFailed, dir, err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: %w: %s: %v", ErrListFailed, e.Name(), err)
		}
		files = append(files, FileInfo{
			Path: key.Path() + "/" + e.Name(),
			Name: e.Name(),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("storage: %w: %s", ErrObjectNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: %w: %s: %v", ErrReadFailed, path, err)
	}
	return f, nil
}

func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	_, err := os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: failed to stat %s: %w", path, err)
	}
	return true, nil
}

// Publish atomically installs a staged partition directory at its final
// dt= path: the staging directory is renamed into place after any
// previous contents are removed, so readers never observe a partial
// partition. The staging directory must live on the same filesystem as
// the root.
func (s *LocalStore) Publish(ctx context.Context, key types.PartitionKey, stagingDir string) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("storage: %w: %v", ErrPublishFailed, err)
	}
	dest := filepath.Join(s.root, filepath.FromSlash(key.Path()))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("storage: %w: %v", ErrPublishFailed, err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("storage: %w: clearing %s: %v", ErrPublishFailed, key.Path(), err)
	}
	if err := os.Rename(stagingDir, dest); err != nil {
		return fmt.Errorf("storage: %w: installing %s: %v", ErrPublishFailed, key.Path(), err)
	}
	return nil
}
