// Package selection resolves a dataset's configured selection strategy
// against its registry entries into an explicit inclusion set of
// snapshot dates. Resolution is pure: the same strategy and entries
// always produce the same selection or the same error.
package selection

import (
	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/pkg/types"
)

// Resolve computes the snapshot dates to read for one dataset. Only
// usable entries (current, historical, superseded) participate; pending
// and archived snapshots are invisible to selection.
func Resolve(ref types.DatasetRef, strategy types.Strategy, entries []types.Entry) (types.Selection, error) {
	if err := strategy.Validate(); err != nil {
		return types.Selection{}, goverrors.NewConfigError(err.Error())
	}

	usable := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status.Usable() {
			usable = append(usable, e)
		}
	}
	if len(usable) == 0 {
		return types.Selection{}, goverrors.Newf(goverrors.ErrCategorySelection,
			goverrors.CodeNoSnapshotAvailable,
			"no usable snapshot for %s", ref)
	}

	switch strategy.Kind {
	case types.StrategyLatestOnly:
		latest, err := latestDate(ref, usable)
		if err != nil {
			return types.Selection{}, err
		}
		return types.NewSelection(ref, []types.SnapshotDate{latest}), nil

	case types.StrategyBaselinePlusLatest:
		if !hasDate(usable, strategy.Baseline) {
			return types.Selection{}, goverrors.Newf(goverrors.ErrCategorySelection,
				goverrors.CodeBaselineNotFound,
				"baseline snapshot %s not found for %s", strategy.Baseline, ref)
		}
		latest, err := latestDate(ref, usable)
		if err != nil {
			return types.Selection{}, err
		}
		return types.NewSelection(ref, []types.SnapshotDate{strategy.Baseline, latest}), nil

	case types.StrategyAll:
		dates := make([]types.SnapshotDate, 0, len(usable))
		for _, e := range usable {
			dates = append(dates, e.Date)
		}
		return types.NewSelection(ref, dates), nil
	}

	// unreachable after Validate, kept so a new strategy kind cannot
	// silently select nothing
	return types.Selection{}, goverrors.Newf(goverrors.ErrCategoryInternal,
		goverrors.CodeUnexpected, "unhandled strategy kind %q", strategy.Kind)
}

// latestDate finds the newest usable date. When several entries share
// the newest date the one holding current status wins; without a
// current entry the tie is unresolvable.
func latestDate(ref types.DatasetRef, usable []types.Entry) (types.SnapshotDate, error) {
	var max types.SnapshotDate
	for _, e := range usable {
		if max.IsZero() || e.Date.After(max) {
			max = e.Date
		}
	}

	var atMax []types.Entry
	for _, e := range usable {
		if e.Date.Equal(max) {
			atMax = append(atMax, e)
		}
	}
	if len(atMax) == 1 {
		return max, nil
	}
	for _, e := range atMax {
		if e.Status == types.StatusCurrent {
			return max, nil
		}
	}
	return types.SnapshotDate{}, goverrors.Newf(goverrors.ErrCategorySelection,
		goverrors.CodeAmbiguousSnapshot,
		"%d snapshots of %s share the newest date %s and none is current",
		len(atMax), ref, max)
}

func hasDate(entries []types.Entry, d types.SnapshotDate) bool {
	for _, e := range entries {
		if e.Date.Equal(d) {
			return true
		}
	}
	return false
}
