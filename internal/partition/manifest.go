// Package partition reads partition directories and their manifest
// sidecars, and extracts row counts and coverage data from the
// contained data files.
package partition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/snapgov/snapgov/internal/storage"
	"github.com/snapgov/snapgov/pkg/types"
)

// ManifestFileName is the sidecar written next to every data file by
// the ingestion collaborators.
const ManifestFileName = "manifest.json"

// ErrManifestMissing signals a partition without a manifest sidecar.
var ErrManifestMissing = errors.New("manifest not found")

// Manifest is the JSON sidecar describing one partition's contents.
type Manifest struct {
	// RowCount is the number of data rows the writer produced
	RowCount int64 `json:"row_count"`

	// CoverageStartSeason is the first season covered, named by its
	// starting year (0 when the dataset has no season structure)
	CoverageStartSeason int `json:"coverage_start_season,omitempty"`

	// CoverageEndSeason is the last season covered
	CoverageEndSeason int `json:"coverage_end_season,omitempty"`

	// WrittenAt is the unix timestamp of the export
	WrittenAt int64 `json:"written_at"`
}

// WrittenAtTime returns the export time as a UTC time.Time.
func (m *Manifest) WrittenAtTime() time.Time {
	return time.Unix(m.WrittenAt, 0).UTC()
}

// Coverage returns the manifest's season range, with ok=false when the
// dataset carries no coverage declaration.
func (m *Manifest) Coverage() (types.Coverage, bool) {
	if m.CoverageStartSeason == 0 && m.CoverageEndSeason == 0 {
		return types.Coverage{}, false
	}
	return types.Coverage{StartSeason: m.CoverageStartSeason, EndSeason: m.CoverageEndSeason}, true
}

// Validate checks manifest fields for internal consistency.
func (m *Manifest) Validate() error {
	if m.RowCount < 0 {
		return fmt.Errorf("partition: manifest row_count cannot be negative: %d", m.RowCount)
	}
	if m.WrittenAt <= 0 {
		return fmt.Errorf("partition: manifest written_at must be set")
	}
	if (m.CoverageStartSeason == 0) != (m.CoverageEndSeason == 0) {
		return fmt.Errorf("partition: manifest coverage seasons must both be set or both be empty")
	}
	if m.CoverageStartSeason != 0 && m.CoverageEndSeason < m.CoverageStartSeason {
		return fmt.Errorf("partition: manifest coverage end season %d before start season %d",
			m.CoverageEndSeason, m.CoverageStartSeason)
	}
	return nil
}

// ReadManifest loads and parses the manifest sidecar for one partition.
// Returns ErrManifestMissing when the sidecar does not exist.
func ReadManifest(ctx context.Context, store storage.PartitionStore, key types.PartitionKey) (*Manifest, error) {
	path := key.Path() + "/" + ManifestFileName
	rc, err := store.Open(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("partition: %w: %s", ErrManifestMissing, key.Path())
		}
		return nil, fmt.Errorf("partition: failed to open manifest for %s: %w", key.Path(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to read manifest for %s: %w", key.Path(), err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("partition: malformed manifest for %s: %w", key.Path(), err)
	}
	return &m, nil
}
