package validate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/snapgov/snapgov/internal/config"
	"github.com/snapgov/snapgov/internal/crosswalk"
	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/internal/partition"
	"github.com/snapgov/snapgov/internal/registry"
	"github.com/snapgov/snapgov/internal/selection"
	"github.com/snapgov/snapgov/internal/storage"
	"github.com/snapgov/snapgov/pkg/types"
)

// Options selects which checks a run performs. Integrity always runs;
// the rest are opt-in.
type Options struct {
	// Source restricts the run to one source (empty means all)
	Source string

	CheckFreshness bool
	ReportDeltas   bool
	DetectGaps     bool

	// CheckMapping requires a loaded crosswalk
	CheckMapping bool
	Crosswalk    *crosswalk.Table
}

// Runner executes validation runs over the registry's datasets with
// bounded parallelism.
type Runner struct {
	cfg   *config.Config
	store storage.PartitionStore
	reg   registry.Registry
	log   zerolog.Logger

	now func() time.Time
}

// NewRunner builds a runner over the given store and registry.
func NewRunner(cfg *config.Config, store storage.PartitionStore, reg registry.Registry, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:   cfg,
		store: store,
		reg:   reg,
		log:   log,
		now:   time.Now,
	}
}

// Run validates every dataset the registry knows (optionally filtered
// to one source) and returns the aggregated report. Check failures
// become findings; only infrastructure failures surface as the error.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.CheckMapping && opts.Crosswalk == nil {
		return nil, goverrors.NewConfigError("mapping check requested without a crosswalk")
	}

	refs, err := r.reg.Datasets(ctx, opts.Source)
	if err != nil {
		return nil, err
	}

	report := NewReport()
	r.log.Info().
		Str("run_id", report.RunID).
		Int("datasets", len(refs)).
		Str("source", opts.Source).
		Msg("starting validation run")

	jobs := make(chan types.DatasetRef)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var runErr *multierror.Error

	workers := r.cfg.Validation.Concurrency
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				if err := r.validateDataset(ctx, ref, opts, report); err != nil {
					mu.Lock()
					runErr = multierror.Append(runErr, fmt.Errorf("%s: %w", ref, err))
					mu.Unlock()
				}
				report.DatasetDone()
			}
		}()
	}

	for _, ref := range refs {
		select {
		case jobs <- ref:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return report, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	report.Finish()
	errs, warns, _ := report.Counts()
	r.log.Info().
		Str("run_id", report.RunID).
		Int("errors", errs).
		Int("warnings", warns).
		Msg("validation run finished")

	return report, runErr.ErrorOrNil()
}

func (r *Runner) validateDataset(ctx context.Context, ref types.DatasetRef, opts Options, report *Report) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Validation.Timeout)
	defer cancel()

	log := r.log.With().Str("source", ref.Source).Str("dataset", ref.Dataset).Logger()
	log.Debug().Msg("validating dataset")

	entries, err := r.reg.Entries(ctx, ref)
	if err != nil {
		return err
	}
	dc := r.cfg.DatasetFor(ref)

	// integrity sweeps every usable snapshot
	integrity := &Integrity{Store: r.store, Registry: r.reg}
	for _, e := range entries {
		if !e.Status.Usable() {
			continue
		}
		findings, err := integrity.CheckPartition(ctx, e.Key(), IntegrityAudit)
		if err != nil {
			return err
		}
		report.AddAll(findings)
	}

	var current *types.Entry
	for i := range entries {
		if entries[i].Status == types.StatusCurrent {
			current = &entries[i]
			break
		}
	}

	if opts.CheckFreshness {
		_, f := GradeFreshness(ref, current, r.cfg.FreshnessFor(ref.Source), r.now())
		if f != nil {
			report.Add(*f)
		}
	}

	if opts.ReportDeltas {
		results, err := CalculateDeltas(ref, entries, r.cfg.DeltaFor(ref), r.now())
		if err != nil {
			if goverrors.HasCode(err, goverrors.CodeInsufficientHistory) {
				report.Add(datasetFinding(SeverityInfo, CheckDelta, ref,
					goverrors.CodeInsufficientHistory, err.Error()))
			} else {
				return err
			}
		} else {
			report.AddAll(DeltaFindings(results))
		}
	}

	strategy, err := r.cfg.StrategyFor(ref)
	if err != nil {
		report.Add(datasetFinding(SeverityError, CheckStrategy, ref,
			goverrors.CodeInvalidConfig, err.Error()))
		return nil
	}

	// unioning full re-exports multiplies rows; surface the
	// combination whenever it is configured
	if strategy.Kind == types.StrategyAll && dc.ExportSemantics == config.ExportFull {
		report.Add(datasetFinding(SeverityWarning, CheckStrategy, ref, "",
			"strategy 'all' over full re-exports will multiply row counts when snapshots are unioned"))
	}

	if (opts.DetectGaps && dc.WeeksPerSeason > 0) || opts.CheckMapping {
		sel, err := selection.Resolve(ref, strategy, entries)
		if err != nil {
			report.Add(datasetFinding(SeverityError, CheckStrategy, ref,
				goverrors.GetCode(err), err.Error()))
			return nil
		}

		if opts.DetectGaps && dc.WeeksPerSeason > 0 && dc.SeasonColumn != "" && dc.WeekColumn != "" {
			if err := r.detectGaps(ctx, ref, strategy, sel, entries, dc, report); err != nil {
				return err
			}
		}

		if opts.CheckMapping && dc.IdentityColumn != "" {
			latest := sel.Dates[len(sel.Dates)-1]
			key := types.PartitionKey{Source: ref.Source, Dataset: ref.Dataset, Date: latest}
			_, findings, err := MappingRate(ctx, r.store, key, dc.IdentityColumn, opts.Crosswalk, dc.MappingFloorPct)
			if err != nil {
				return err
			}
			report.AddAll(findings)
		}
	}

	return nil
}

// detectGaps reads season/week coverage from the selected snapshots.
// Under baseline_plus_latest the baseline's weeks count as present, so
// only genuinely uncovered weeks flag. The latest entry's declared
// coverage bounds widen the checked season range.
func (r *Runner) detectGaps(ctx context.Context, ref types.DatasetRef, strategy types.Strategy, sel types.Selection, entries []types.Entry, dc config.DatasetConfig, report *Report) error {
	baseline := make(partition.SeasonWeeks)
	present := make(partition.SeasonWeeks)

	readWeeks := func(date types.SnapshotDate, into partition.SeasonWeeks) error {
		key := types.PartitionKey{Source: ref.Source, Dataset: ref.Dataset, Date: date}
		p, err := partition.Discover(ctx, r.store, key)
		if err != nil {
			return err
		}
		for _, file := range p.DataFiles() {
			sw, err := partition.ReadSeasonWeeks(ctx, r.store, file, dc.SeasonColumn, dc.WeekColumn)
			if err != nil {
				return err
			}
			into.Merge(sw)
		}
		return nil
	}

	latest := sel.Dates[len(sel.Dates)-1]
	for _, d := range sel.Dates {
		if strategy.Kind == types.StrategyBaselinePlusLatest && d.Equal(strategy.Baseline) && !d.Equal(latest) {
			if err := readWeeks(d, baseline); err != nil {
				return err
			}
			continue
		}
		if err := readWeeks(d, present); err != nil {
			return err
		}
	}

	var declared types.Coverage
	for _, e := range entries {
		if e.Date.Equal(latest) && e.HasCoverage() {
			declared = types.Coverage{StartSeason: e.CoverageStartSeason, EndSeason: e.CoverageEndSeason}
			break
		}
	}

	gaps := DetectGaps(present, baseline, declared, dc.WeeksPerSeason, r.now())
	key := types.PartitionKey{Source: ref.Source, Dataset: ref.Dataset, Date: latest}
	report.AddAll(GapFindings(key, gaps))
	return nil
}
