package types

import "time"

// Entry is one registry row: the lifecycle record of a single partition.
type Entry struct {
	Source  string       `json:"source"`
	Dataset string       `json:"dataset"`
	Date    SnapshotDate `json:"snapshot_date"`
	Status  Status       `json:"status"`

	// CoverageStartSeason and CoverageEndSeason bound the seasons the
	// partition's rows cover (a season is named by its starting year, so
	// 2023 means 2023/24). Zero means unknown/not applicable.
	CoverageStartSeason int `json:"coverage_start_season,omitempty"`
	CoverageEndSeason   int `json:"coverage_end_season,omitempty"`

	RowCount int64  `json:"row_count"`
	Notes    string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the partition key identifying this entry.
func (e Entry) Key() PartitionKey {
	return PartitionKey{Source: e.Source, Dataset: e.Dataset, Date: e.Date}
}

// Ref returns the (source, dataset) pair for this entry.
func (e Entry) Ref() DatasetRef {
	return DatasetRef{Source: e.Source, Dataset: e.Dataset}
}

// HasCoverage reports whether the entry carries season coverage bounds.
func (e Entry) HasCoverage() bool {
	return e.CoverageStartSeason != 0 && e.CoverageEndSeason != 0
}

// Coverage holds optional season coverage bounds for a partition.
type Coverage struct {
	StartSeason int `json:"start_season,omitempty"`
	EndSeason   int `json:"end_season,omitempty"`
}
