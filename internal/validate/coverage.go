package validate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/snapgov/snapgov/internal/config"
	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/internal/partition"
	"github.com/snapgov/snapgov/pkg/types"
)

// DeltaClass classifies a row-count change between consecutive
// snapshots.
type DeltaClass string

const (
	DeltaNormal          DeltaClass = "normal"
	DeltaDataLoss        DeltaClass = "data-loss"
	DeltaAnomalousGrowth DeltaClass = "anomalous-growth"
	DeltaStagnant        DeltaClass = "stagnant"
)

// DeltaResult describes one consecutive snapshot pair.
type DeltaResult struct {
	Prev  types.Entry `json:"prev"`
	Curr  types.Entry `json:"curr"`
	Delta int64       `json:"delta"`
	Pct   float64     `json:"pct"`
	Class DeltaClass  `json:"class"`
}

// ClassifyDelta grades the row-count change from prev to curr.
// Shrinkage always classifies as data loss before any percentage
// threshold applies; stagnation only matters during an active
// reporting period, and is reached either by absolute growth at or
// below StagnantAbs or by percentage growth below MinPct.
func ClassifyDelta(prev, curr types.Entry, cfg config.DeltaConfig, activePeriod bool) DeltaResult {
	delta := curr.RowCount - prev.RowCount
	var pct float64
	if prev.RowCount > 0 {
		pct = 100 * float64(delta) / float64(prev.RowCount)
	}

	res := DeltaResult{Prev: prev, Curr: curr, Delta: delta, Pct: pct, Class: DeltaNormal}
	switch {
	case delta < 0:
		res.Class = DeltaDataLoss
	case cfg.MaxPct > 0 && math.Abs(pct) > cfg.MaxPct:
		res.Class = DeltaAnomalousGrowth
	case activePeriod && (delta <= cfg.StagnantAbs || (cfg.MinPct > 0 && pct < cfg.MinPct)):
		res.Class = DeltaStagnant
	}
	return res
}

// CalculateDeltas classifies every consecutive pair of usable
// snapshots, oldest first. Fewer than two usable snapshots is
// insufficient history.
func CalculateDeltas(ref types.DatasetRef, entries []types.Entry, cfg config.DeltaConfig, now time.Time) ([]DeltaResult, error) {
	usable := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status.Usable() {
			usable = append(usable, e)
		}
	}
	if len(usable) < 2 {
		return nil, goverrors.Newf(goverrors.ErrCategoryCoverage,
			goverrors.CodeInsufficientHistory,
			"%s has %d usable snapshots, need at least 2 for delta analysis",
			ref, len(usable))
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].Date.Before(usable[j].Date) })

	results := make([]DeltaResult, 0, len(usable)-1)
	for i := 1; i < len(usable); i++ {
		active := inActivePeriod(usable[i], now)
		results = append(results, ClassifyDelta(usable[i-1], usable[i], cfg, active))
	}
	return results, nil
}

// DeltaFindings converts classified deltas into report findings.
// Normal deltas produce nothing.
func DeltaFindings(results []DeltaResult) []Finding {
	var findings []Finding
	for _, r := range results {
		var sev Severity
		switch r.Class {
		case DeltaDataLoss:
			sev = SeverityError
		case DeltaAnomalousGrowth, DeltaStagnant:
			sev = SeverityWarning
		default:
			continue
		}
		f := finding(sev, CheckDelta, r.Curr.Key(), "",
			fmt.Sprintf("%s: rows went from %d to %d (%+.1f%%) since %s",
				r.Class, r.Prev.RowCount, r.Curr.RowCount, r.Pct, r.Prev.Date))
		f.Details = map[string]interface{}{
			"class":     string(r.Class),
			"prev_date": r.Prev.Date.String(),
			"delta":     r.Delta,
			"pct":       r.Pct,
		}
		findings = append(findings, f)
	}
	return findings
}

// inActivePeriod reports whether now falls inside the entry's declared
// coverage span. A season named by starting year Y runs from July of Y
// through June of Y+1. Entries without coverage bounds are treated as
// always active, so stagnation on them still surfaces.
func inActivePeriod(e types.Entry, now time.Time) bool {
	if !e.HasCoverage() {
		return true
	}
	season := currentSeason(now)
	return season >= e.CoverageStartSeason && season <= e.CoverageEndSeason
}

// currentSeason names the season now falls in by its starting year: a
// season Y runs from July of Y through June of Y+1.
func currentSeason(now time.Time) int {
	season := now.UTC().Year()
	if now.UTC().Month() < time.July {
		season--
	}
	return season
}

// Gap is a run of expected but absent weeks within one season.
type Gap struct {
	Season       int   `json:"season"`
	MissingWeeks []int `json:"missing_weeks"`
}

// DetectGaps finds weeks that should be present but are not. Completed
// seasons expect every week up to weeksPerSeason; the newest season,
// when its July-June period still contains now, only expects weeks up
// to the highest one observed, so an ongoing season never reports its
// future. Weeks covered by a baseline snapshot count as present, which
// keeps incremental snapshots under baseline_plus_latest from flagging
// everything the baseline already holds. A non-zero declared coverage
// widens the season range, so a season the manifest claims but the
// data never mentions still shows up as entirely missing.
func DetectGaps(present, baseline partition.SeasonWeeks, declared types.Coverage, weeksPerSeason int, now time.Time) []Gap {
	if weeksPerSeason <= 0 {
		return nil
	}

	observed := make(partition.SeasonWeeks)
	observed.Merge(present)
	observed.Merge(baseline)
	seasons := observed.Seasons()
	if len(seasons) == 0 && (declared.StartSeason == 0 || declared.EndSeason == 0) {
		return nil
	}

	var minSeason, maxSeason int
	if len(seasons) > 0 {
		minSeason, maxSeason = seasons[0], seasons[len(seasons)-1]
	} else {
		minSeason, maxSeason = declared.StartSeason, declared.EndSeason
	}
	if declared.StartSeason != 0 && declared.StartSeason < minSeason {
		minSeason = declared.StartSeason
	}
	if declared.EndSeason != 0 && declared.EndSeason > maxSeason {
		maxSeason = declared.EndSeason
	}
	var gaps []Gap
	for season := minSeason; season <= maxSeason; season++ {
		expectedMax := weeksPerSeason
		if season == maxSeason && season >= currentSeason(now) {
			// The newest season is only in progress when its period
			// has not ended and we have data for it; a completed
			// season or a declared season with nothing observed is
			// expected in full.
			if weeks := observed.Weeks(season); len(weeks) > 0 {
				expectedMax = weeks[len(weeks)-1]
			}
		}

		var missing []int
		for w := 1; w <= expectedMax; w++ {
			if observed[season] == nil || !observed[season][w] {
				missing = append(missing, w)
			}
		}
		if len(missing) > 0 {
			gaps = append(gaps, Gap{Season: season, MissingWeeks: missing})
		}
	}
	return gaps
}

// GapFindings converts detected gaps into warning findings for one
// partition.
func GapFindings(key types.PartitionKey, gaps []Gap) []Finding {
	var findings []Finding
	for _, g := range gaps {
		f := finding(SeverityWarning, CheckGap, key, "",
			fmt.Sprintf("season %d is missing %d weeks %v", g.Season, len(g.MissingWeeks), g.MissingWeeks))
		f.Details = map[string]interface{}{
			"season":        g.Season,
			"missing_weeks": g.MissingWeeks,
		}
		findings = append(findings, f)
	}
	return findings
}
