package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/pkg/types"
)

func openTestRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func entry(date string, rows int64) types.Entry {
	return types.Entry{
		Source:   "statsbomb",
		Dataset:  "matches",
		Date:     types.MustDate(date),
		RowCount: rows,
	}
}

func ref() types.DatasetRef {
	return types.DatasetRef{Source: "statsbomb", Dataset: "matches"}
}

func hasCode(err error, code string) bool {
	var ge *goverrors.GovError
	return errors.As(err, &ge) && ge.Code == code
}

func TestPromoteFirstSnapshot(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	res, err := r.Promote(ctx, entry("2024-01-15", 24316), PromoteOptions{Reason: "initial load"})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.NoOp {
		t.Error("first promote should not be a no-op")
	}
	if res.Demoted != nil {
		t.Errorf("nothing to demote, got %v", res.Demoted)
	}
	if res.Promoted.Status != types.StatusCurrent {
		t.Errorf("promoted status = %s, want current", res.Promoted.Status)
	}

	cur, err := r.Current(ctx, ref())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur == nil || cur.Date.String() != "2024-01-15" || cur.RowCount != 24316 {
		t.Errorf("Current = %+v", cur)
	}
}

func TestPromoteSupersedesPrevious(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Promote(ctx, entry("2024-01-15", 100000), PromoteOptions{}); err != nil {
		t.Fatalf("Promote D1: %v", err)
	}
	res, err := r.Promote(ctx, entry("2024-02-01", 109000), PromoteOptions{})
	if err != nil {
		t.Fatalf("Promote D2: %v", err)
	}
	if res.Demoted == nil || res.Demoted.Status != types.StatusSuperseded {
		t.Fatalf("Demoted = %+v, want superseded D1", res.Demoted)
	}

	entries, err := r.Entries(ctx, ref())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	var currents int
	for _, e := range entries {
		if e.Status == types.StatusCurrent {
			currents++
		}
	}
	if currents != 1 {
		t.Errorf("found %d current entries, want exactly 1", currents)
	}
	if entries[0].Date.String() != "2024-01-15" || entries[0].Status != types.StatusSuperseded {
		t.Errorf("D1 entry = %+v", entries[0])
	}
	if entries[1].Date.String() != "2024-02-01" || entries[1].Status != types.StatusCurrent {
		t.Errorf("D2 entry = %+v", entries[1])
	}
}

func TestPromoteRetainAsBaseline(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Promote(ctx, entry("2023-08-01", 90000), PromoteOptions{}); err != nil {
		t.Fatalf("Promote baseline: %v", err)
	}
	res, err := r.Promote(ctx, entry("2024-02-01", 95000), PromoteOptions{RetainAsBaseline: true})
	if err != nil {
		t.Fatalf("Promote with retain: %v", err)
	}
	if res.Demoted == nil || res.Demoted.Status != types.StatusHistorical {
		t.Errorf("Demoted = %+v, want historical", res.Demoted)
	}

	old, err := r.Get(ctx, types.PartitionKey{Source: "statsbomb", Dataset: "matches", Date: types.MustDate("2023-08-01")})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if old.Status != types.StatusHistorical {
		t.Errorf("old status = %s, want historical", old.Status)
	}
}

func TestPromoteIdempotent(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Promote(ctx, entry("2024-01-15", 24316), PromoteOptions{}); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	res, err := r.Promote(ctx, entry("2024-01-15", 24316), PromoteOptions{})
	if err != nil {
		t.Fatalf("re-Promote: %v", err)
	}
	if !res.NoOp {
		t.Error("identical re-promote should be a no-op")
	}

	trs, err := r.Transitions(ctx, entry("2024-01-15", 0).Key())
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(trs) != 1 {
		t.Errorf("no-op re-promote should not add transitions, got %d", len(trs))
	}
}

func TestPromoteRefreshLatestDate(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Promote(ctx, entry("2024-01-15", 24316), PromoteOptions{}); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	// re-exporting the newest snapshot with a corrected row count is
	// allowed
	res, err := r.Promote(ctx, entry("2024-01-15", 24320), PromoteOptions{Reason: "re-export"})
	if err != nil {
		t.Fatalf("refresh promote: %v", err)
	}
	if res.NoOp {
		t.Error("changed row count should not be a no-op")
	}
	if res.Promoted.RowCount != 24320 {
		t.Errorf("RowCount = %d, want 24320", res.Promoted.RowCount)
	}
}

func TestPromoteImmutableViolation(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Promote(ctx, entry("2024-01-15", 24316), PromoteOptions{}); err != nil {
		t.Fatalf("Promote D1: %v", err)
	}
	if _, err := r.Promote(ctx, entry("2024-02-01", 25000), PromoteOptions{}); err != nil {
		t.Fatalf("Promote D2: %v", err)
	}

	// rewriting an older snapshot's row count is rejected
	_, err := r.Promote(ctx, entry("2024-01-15", 99999), PromoteOptions{})
	if !hasCode(err, goverrors.CodeImmutablePartitionViolation) {
		t.Errorf("expected IMMUTABLE_PARTITION_VIOLATION, got %v", err)
	}

	// and the registry is unchanged
	cur, err := r.Current(ctx, ref())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur == nil || cur.Date.String() != "2024-02-01" {
		t.Errorf("Current = %+v, want 2024-02-01", cur)
	}
}

func TestArchive(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Promote(ctx, entry("2024-01-15", 100), PromoteOptions{}); err != nil {
		t.Fatalf("Promote D1: %v", err)
	}
	if _, err := r.Promote(ctx, entry("2024-02-01", 110), PromoteOptions{}); err != nil {
		t.Fatalf("Promote D2: %v", err)
	}

	key := types.PartitionKey{Source: "statsbomb", Dataset: "matches", Date: types.MustDate("2024-01-15")}
	if err := r.Archive(ctx, key, "retention"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	e, err := r.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Status != types.StatusArchived {
		t.Errorf("status = %s, want archived", e.Status)
	}

	// archived is terminal
	err = r.Archive(ctx, key, "again")
	if !hasCode(err, goverrors.CodeInvalidTransition) {
		t.Errorf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestArchiveMissingEntry(t *testing.T) {
	r := openTestRegistry(t)
	key := types.PartitionKey{Source: "s", Dataset: "d", Date: types.MustDate("2024-01-01")}
	err := r.Archive(context.Background(), key, "")
	if !hasCode(err, goverrors.CodeEntryNotFound) {
		t.Errorf("expected ENTRY_NOT_FOUND, got %v", err)
	}
}

func TestGetMissingEntry(t *testing.T) {
	r := openTestRegistry(t)
	key := types.PartitionKey{Source: "s", Dataset: "d", Date: types.MustDate("2024-01-01")}
	_, err := r.Get(context.Background(), key)
	if !hasCode(err, goverrors.CodeEntryNotFound) {
		t.Errorf("expected ENTRY_NOT_FOUND, got %v", err)
	}
}

func TestDatasets(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	others := []types.Entry{
		{Source: "opta", Dataset: "matches", Date: types.MustDate("2024-01-01"), RowCount: 1},
		{Source: "statsbomb", Dataset: "events", Date: types.MustDate("2024-01-01"), RowCount: 1},
		{Source: "statsbomb", Dataset: "matches", Date: types.MustDate("2024-01-01"), RowCount: 1},
	}
	for _, e := range others {
		if _, err := r.Promote(ctx, e, PromoteOptions{}); err != nil {
			t.Fatalf("Promote %s/%s: %v", e.Source, e.Dataset, err)
		}
	}

	refs, err := r.Datasets(ctx, "")
	if err != nil {
		t.Fatalf("Datasets: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("got %d datasets, want 3: %v", len(refs), refs)
	}
	if refs[0].Source != "opta" {
		t.Errorf("datasets not sorted: %v", refs)
	}

	filtered, err := r.Datasets(ctx, "statsbomb")
	if err != nil {
		t.Fatalf("Datasets(statsbomb): %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("got %d statsbomb datasets, want 2", len(filtered))
	}
}

func TestTransitionsAuditTrail(t *testing.T) {
	r := openTestRegistry(t)
	r.now = func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if _, err := r.Promote(ctx, entry("2024-01-15", 100), PromoteOptions{Reason: "initial"}); err != nil {
		t.Fatalf("Promote D1: %v", err)
	}
	if _, err := r.Promote(ctx, entry("2024-02-01", 110), PromoteOptions{Reason: "weekly"}); err != nil {
		t.Fatalf("Promote D2: %v", err)
	}

	trs, err := r.Transitions(ctx, entry("2024-01-15", 0).Key())
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(trs) != 2 {
		t.Fatalf("got %d transitions, want 2: %v", len(trs), trs)
	}
	if trs[0].FromStatus != types.StatusPending || trs[0].ToStatus != types.StatusCurrent {
		t.Errorf("first transition = %+v", trs[0])
	}
	if trs[1].FromStatus != types.StatusCurrent || trs[1].ToStatus != types.StatusSuperseded {
		t.Errorf("second transition = %+v", trs[1])
	}
	if trs[1].Reason != "weekly" {
		t.Errorf("reason = %q, want weekly", trs[1].Reason)
	}
	if !trs[1].OccurredAt.Equal(time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("occurred_at = %v", trs[1].OccurredAt)
	}
}
