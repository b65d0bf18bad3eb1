package types

import "sort"

// Selection is the resolved inclusion set of snapshot dates for one
// dataset. It is a total description of what to read: a date is either in
// the set or it is not, and there is no fallback to an unfiltered read.
type Selection struct {
	Source  string         `json:"source"`
	Dataset string         `json:"dataset"`
	Dates   []SnapshotDate `json:"dates"`
}

// NewSelection builds a selection with the dates deduplicated and sorted
// ascending, so equal inputs always produce an identical selection.
func NewSelection(ref DatasetRef, dates []SnapshotDate) Selection {
	seen := make(map[string]struct{}, len(dates))
	out := make([]SnapshotDate, 0, len(dates))
	for _, d := range dates {
		if _, ok := seen[d.String()]; ok {
			continue
		}
		seen[d.String()] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return Selection{Source: ref.Source, Dataset: ref.Dataset, Dates: out}
}

// Contains reports whether the given date is included.
func (s Selection) Contains(d SnapshotDate) bool {
	for _, have := range s.Dates {
		if have.Equal(d) {
			return true
		}
	}
	return false
}

// Predicate returns the inclusion predicate as a standalone function for
// the transform layer to apply when reading partitions.
func (s Selection) Predicate() func(SnapshotDate) bool {
	included := make(map[string]struct{}, len(s.Dates))
	for _, d := range s.Dates {
		included[d.String()] = struct{}{}
	}
	return func(d SnapshotDate) bool {
		_, ok := included[d.String()]
		return ok
	}
}
