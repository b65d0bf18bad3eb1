package types

import (
	"fmt"
	"path"
	"strings"
)

// PartitionKey identifies one immutable dated partition: the snapshot of
// one dataset from one source taken on one day.
type PartitionKey struct {
	// Source is the external data provider identifier (e.g. "players")
	Source string `json:"source"`

	// Dataset is the dataset identifier within the source (e.g. "ids")
	Dataset string `json:"dataset"`

	// Date is the snapshot date at day granularity
	Date SnapshotDate `json:"date"`
}

// DatasetRef identifies a (source, dataset) pair independent of date.
type DatasetRef struct {
	Source  string `json:"source"`
	Dataset string `json:"dataset"`
}

// Key returns the partition key for this dataset at the given date.
func (r DatasetRef) Key(date SnapshotDate) PartitionKey {
	return PartitionKey{Source: r.Source, Dataset: r.Dataset, Date: date}
}

func (r DatasetRef) String() string {
	return r.Source + "/" + r.Dataset
}

// Ref returns the (source, dataset) pair for this key.
func (k PartitionKey) Ref() DatasetRef {
	return DatasetRef{Source: k.Source, Dataset: k.Dataset}
}

// Path returns the storage-relative partition directory:
// <source>/<dataset>/dt=<YYYY-MM-DD>.
func (k PartitionKey) Path() string {
	return path.Join(k.Source, k.Dataset, "dt="+k.Date.String())
}

func (k PartitionKey) String() string {
	return k.Path()
}

// Validate checks that the key's identifiers are usable as path segments
// and that the date is set.
func (k PartitionKey) Validate() error {
	if err := validateIdentifier("source", k.Source); err != nil {
		return err
	}
	if err := validateIdentifier("dataset", k.Dataset); err != nil {
		return err
	}
	if k.Date.IsZero() {
		return fmt.Errorf("snapshot date is required")
	}
	return nil
}

func validateIdentifier(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	if strings.ContainsAny(v, "/\\") || v == "." || v == ".." {
		return fmt.Errorf("%s %q must not contain path separators", field, v)
	}
	return nil
}
