package validate

import (
	"context"
	"errors"

	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/internal/storage"
	"github.com/snapgov/snapgov/pkg/types"
)

// Audit cross-checks the registry against storage in both directions:
// registered snapshots whose partition is gone, and partitions on disk
// the registry has never heard of. A missing usable snapshot is an
// error; an unregistered partition is a warning, because ingestion
// legitimately writes partitions before they are promoted.
func (r *Runner) Audit(ctx context.Context, sourceFilter string) (*Report, error) {
	report := NewReport()
	r.log.Info().Str("run_id", report.RunID).Str("source", sourceFilter).Msg("starting audit")

	refs, err := r.reg.Datasets(ctx, sourceFilter)
	if err != nil {
		return nil, err
	}

	registered := make(map[string]bool)
	for _, ref := range refs {
		entries, err := r.reg.Entries(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			registered[e.Key().Path()] = true

			_, err := r.store.ListFiles(ctx, e.Key())
			if err == nil {
				continue
			}
			if !errors.Is(err, storage.ErrPartitionNotFound) {
				return nil, err
			}
			sev := SeverityError
			if !e.Status.Usable() {
				sev = SeverityInfo
			}
			report.Add(finding(sev, CheckAudit, e.Key(),
				goverrors.CodePartitionMissing,
				"registered snapshot has no partition in storage"))
		}
		report.DatasetDone()
	}

	storeRefs, err := r.store.ListRefs(ctx, sourceFilter)
	if err != nil {
		return nil, err
	}
	for _, ref := range storeRefs {
		dates, err := r.store.ListDates(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			key := types.PartitionKey{Source: ref.Source, Dataset: ref.Dataset, Date: d}
			if registered[key.Path()] {
				continue
			}
			report.Add(finding(SeverityWarning, CheckAudit, key,
				goverrors.CodeEntryNotFound,
				"partition exists in storage but has no registry entry"))
		}
	}

	report.Finish()
	return report, nil
}
