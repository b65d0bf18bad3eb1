package validate

import (
	"reflect"
	"testing"
	"time"

	"github.com/snapgov/snapgov/internal/config"
	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/internal/partition"
	"github.com/snapgov/snapgov/pkg/types"
)

func usableEntry(date string, rows int64) types.Entry {
	return types.Entry{
		Source: "statsbomb", Dataset: "matches",
		Date: types.MustDate(date), Status: types.StatusSuperseded,
		RowCount: rows,
	}
}

func TestClassifyDelta(t *testing.T) {
	cfg := config.DeltaConfig{MaxPct: 20, StagnantAbs: 0}
	prev := usableEntry("2024-01-15", 100000)

	tests := []struct {
		name   string
		curr   int64
		active bool
		want   DeltaClass
	}{
		{"nine percent growth is normal", 109000, true, DeltaNormal},
		{"shrinkage is data loss", 40000, true, DeltaDataLoss},
		{"sixty percent growth is anomalous", 160000, true, DeltaAnomalousGrowth},
		{"zero delta in active period is stagnant", 100000, true, DeltaStagnant},
		{"zero delta off-season is normal", 100000, false, DeltaNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curr := usableEntry("2024-02-01", tt.curr)
			res := ClassifyDelta(prev, curr, cfg, tt.active)
			if res.Class != tt.want {
				t.Errorf("class = %s, want %s (delta=%d pct=%.1f)",
					res.Class, tt.want, res.Delta, res.Pct)
			}
		})
	}
}

func TestClassifyDeltaStagnantThreshold(t *testing.T) {
	cfg := config.DeltaConfig{MaxPct: 20, StagnantAbs: 50}
	prev := usableEntry("2024-01-15", 100000)

	res := ClassifyDelta(prev, usableEntry("2024-02-01", 100030), cfg, true)
	if res.Class != DeltaStagnant {
		t.Errorf("+30 rows under StagnantAbs=50 should be stagnant, got %s", res.Class)
	}
	res = ClassifyDelta(prev, usableEntry("2024-02-01", 100200), cfg, true)
	if res.Class != DeltaNormal {
		t.Errorf("+200 rows should be normal, got %s", res.Class)
	}
}

func TestClassifyDeltaMinPct(t *testing.T) {
	cfg := config.DeltaConfig{MinPct: 2, MaxPct: 20}
	prev := usableEntry("2024-01-15", 100000)

	res := ClassifyDelta(prev, usableEntry("2024-02-01", 100500), cfg, true)
	if res.Class != DeltaStagnant {
		t.Errorf("+0.5%% growth under MinPct=2 should be stagnant, got %s", res.Class)
	}
	res = ClassifyDelta(prev, usableEntry("2024-02-01", 103000), cfg, true)
	if res.Class != DeltaNormal {
		t.Errorf("+3%% growth should be normal, got %s", res.Class)
	}
	// off-season trickle is expected, not stagnation
	res = ClassifyDelta(prev, usableEntry("2024-02-01", 100500), cfg, false)
	if res.Class != DeltaNormal {
		t.Errorf("+0.5%% growth off-season should be normal, got %s", res.Class)
	}
}

func TestCalculateDeltas(t *testing.T) {
	ref := types.DatasetRef{Source: "statsbomb", Dataset: "matches"}
	cfg := config.DeltaConfig{MaxPct: 20}
	now := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	entries := []types.Entry{
		usableEntry("2024-02-01", 109000),
		usableEntry("2024-01-15", 100000),
		usableEntry("2024-01-01", 95000),
		{Source: "statsbomb", Dataset: "matches", Date: types.MustDate("2024-03-01"),
			Status: types.StatusPending, RowCount: 1},
	}
	results, err := CalculateDeltas(ref, entries, cfg, now)
	if err != nil {
		t.Fatalf("CalculateDeltas: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (pending excluded)", len(results))
	}
	if results[0].Prev.Date.String() != "2024-01-01" || results[0].Curr.Date.String() != "2024-01-15" {
		t.Errorf("results not ordered oldest-first: %+v", results[0])
	}
	if results[1].Delta != 9000 {
		t.Errorf("delta = %d, want 9000", results[1].Delta)
	}
}

func TestCalculateDeltasInsufficientHistory(t *testing.T) {
	ref := types.DatasetRef{Source: "statsbomb", Dataset: "matches"}
	entries := []types.Entry{usableEntry("2024-01-15", 100)}
	_, err := CalculateDeltas(ref, entries, config.DefaultDelta, time.Now())
	if !goverrors.HasCode(err, goverrors.CodeInsufficientHistory) {
		t.Errorf("expected INSUFFICIENT_HISTORY, got %v", err)
	}
}

func TestDeltaFindings(t *testing.T) {
	results := []DeltaResult{
		{Prev: usableEntry("2024-01-01", 100), Curr: usableEntry("2024-01-15", 110), Delta: 10, Pct: 10, Class: DeltaNormal},
		{Prev: usableEntry("2024-01-15", 110), Curr: usableEntry("2024-02-01", 40), Delta: -70, Pct: -63.6, Class: DeltaDataLoss},
		{Prev: usableEntry("2024-02-01", 40), Curr: usableEntry("2024-02-15", 40), Delta: 0, Pct: 0, Class: DeltaStagnant},
	}
	findings := DeltaFindings(results)
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2 (normal suppressed)", len(findings))
	}
	if findings[0].Severity != SeverityError {
		t.Errorf("data loss severity = %s, want error", findings[0].Severity)
	}
	if findings[1].Severity != SeverityWarning {
		t.Errorf("stagnant severity = %s, want warning", findings[1].Severity)
	}
}

func TestInActivePeriod(t *testing.T) {
	e := types.Entry{CoverageStartSeason: 2022, CoverageEndSeason: 2023}

	// March 2024 falls in season 2023
	if !inActivePeriod(e, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("March 2024 should be inside season 2023")
	}
	// September 2024 is season 2024, past the coverage end
	if inActivePeriod(e, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("September 2024 should be past season 2023")
	}
	// no coverage bounds means always active
	if !inActivePeriod(types.Entry{}, time.Now()) {
		t.Error("entries without coverage should count as active")
	}
}

func weeks(pairs ...[2]int) partition.SeasonWeeks {
	sw := make(partition.SeasonWeeks)
	for _, p := range pairs {
		sw.Add(p[0], p[1])
	}
	return sw
}

// gapNow falls inside season 2023 (July 2023 through June 2024), so
// season 2023 counts as in progress in the tests below.
var gapNow = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func fullSeason(season, weeksPerSeason int) partition.SeasonWeeks {
	sw := make(partition.SeasonWeeks)
	for w := 1; w <= weeksPerSeason; w++ {
		sw.Add(season, w)
	}
	return sw
}

func TestDetectGapsFullyCovered(t *testing.T) {
	present := fullSeason(2022, 38)
	present.Merge(fullSeason(2023, 38))
	if gaps := DetectGaps(present, nil, types.Coverage{}, 38, gapNow); len(gaps) != 0 {
		t.Errorf("fully covered seasons produced gaps: %v", gaps)
	}
}

func TestDetectGapsMissingInternalWeek(t *testing.T) {
	present := fullSeason(2023, 38)
	delete(present[2023], 17)
	gaps := DetectGaps(present, nil, types.Coverage{}, 38, gapNow)
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %v", len(gaps), gaps)
	}
	if gaps[0].Season != 2023 || !reflect.DeepEqual(gaps[0].MissingWeeks, []int{17}) {
		t.Errorf("gap = %+v, want season 2023 missing exactly week 17", gaps[0])
	}
}

func TestDetectGapsInProgressSeason(t *testing.T) {
	// newest season has weeks 1..12 except 7; weeks 13..38 are the
	// future and must not flag
	present := fullSeason(2022, 38)
	for w := 1; w <= 12; w++ {
		if w != 7 {
			present.Add(2023, w)
		}
	}
	gaps := DetectGaps(present, nil, types.Coverage{}, 38, gapNow)
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %v", len(gaps), gaps)
	}
	if gaps[0].Season != 2023 || !reflect.DeepEqual(gaps[0].MissingWeeks, []int{7}) {
		t.Errorf("gap = %+v, want season 2023 missing exactly week 7", gaps[0])
	}
}

func TestDetectGapsWholeSeasonMissing(t *testing.T) {
	present := fullSeason(2021, 4)
	present.Merge(weeks([2]int{2023, 1}, [2]int{2023, 2}))
	gaps := DetectGaps(present, nil, types.Coverage{}, 4, gapNow)
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %v", len(gaps), gaps)
	}
	if gaps[0].Season != 2022 || len(gaps[0].MissingWeeks) != 4 {
		t.Errorf("gap = %+v, want all of season 2022", gaps[0])
	}
}

func TestDetectGapsBaselineCoversHistory(t *testing.T) {
	// the latest incremental snapshot only holds the new season; the
	// baseline covers the previous one
	baseline := fullSeason(2022, 38)
	present := weeks([2]int{2023, 1}, [2]int{2023, 2}, [2]int{2023, 3})
	if gaps := DetectGaps(present, baseline, types.Coverage{}, 38, gapNow); len(gaps) != 0 {
		t.Errorf("baseline-covered weeks flagged as gaps: %v", gaps)
	}

	// but a hole in the baseline still flags
	delete(baseline[2022], 20)
	gaps := DetectGaps(present, baseline, types.Coverage{}, 38, gapNow)
	if len(gaps) != 1 || gaps[0].Season != 2022 || !reflect.DeepEqual(gaps[0].MissingWeeks, []int{20}) {
		t.Errorf("gaps = %v, want season 2022 missing week 20", gaps)
	}
}

func TestDetectGapsCompletedLatestSeason(t *testing.T) {
	// season 2022 stops at week 34 of 38; once its period has ended
	// the trailing weeks are gaps, not the future
	present := make(partition.SeasonWeeks)
	for w := 1; w <= 34; w++ {
		present.Add(2022, w)
	}

	after := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	gaps := DetectGaps(present, nil, types.Coverage{}, 38, after)
	if len(gaps) != 1 || gaps[0].Season != 2022 {
		t.Fatalf("got %v, want season 2022 trailing weeks", gaps)
	}
	if !reflect.DeepEqual(gaps[0].MissingWeeks, []int{35, 36, 37, 38}) {
		t.Errorf("missing = %v, want weeks 35..38", gaps[0].MissingWeeks)
	}

	// while the season is still running the same data is clean
	during := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	if gaps := DetectGaps(present, nil, types.Coverage{}, 38, during); len(gaps) != 0 {
		t.Errorf("in-progress season flagged its future: %v", gaps)
	}
}

func TestDetectGapsDeclaredCoverage(t *testing.T) {
	// declared coverage says 2021..2023 but the data starts at 2022:
	// the whole of 2021 is a gap even though no row mentions it
	present := fullSeason(2022, 4)
	present.Merge(fullSeason(2023, 4))
	declared := types.Coverage{StartSeason: 2021, EndSeason: 2023}
	gaps := DetectGaps(present, nil, declared, 4, gapNow)
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %v", len(gaps), gaps)
	}
	if gaps[0].Season != 2021 || len(gaps[0].MissingWeeks) != 4 {
		t.Errorf("gap = %+v, want all of season 2021", gaps[0])
	}

	// a declared trailing season with nothing observed is expected in
	// full, not treated as in progress
	declared = types.Coverage{StartSeason: 2022, EndSeason: 2024}
	gaps = DetectGaps(present, nil, declared, 4, gapNow)
	if len(gaps) != 1 || gaps[0].Season != 2024 || len(gaps[0].MissingWeeks) != 4 {
		t.Errorf("gaps = %v, want all of season 2024", gaps)
	}
}

func TestDetectGapsDisabled(t *testing.T) {
	if gaps := DetectGaps(fullSeason(2023, 10), nil, types.Coverage{}, 0, gapNow); gaps != nil {
		t.Errorf("weeksPerSeason=0 should disable detection, got %v", gaps)
	}
	if gaps := DetectGaps(nil, nil, types.Coverage{}, 38, gapNow); gaps != nil {
		t.Errorf("no observations should yield no gaps, got %v", gaps)
	}
}
