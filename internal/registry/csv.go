package registry

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/snapgov/snapgov/pkg/types"
)

var csvHeader = []string{
	"source", "dataset", "snapshot_date", "status",
	"coverage_start_season", "coverage_end_season", "row_count", "notes",
}

// ExportCSV writes every registry entry as CSV, ordered by source,
// dataset, date. The format round-trips through ImportCSV.
func (r *SQLiteRegistry) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 ORDER BY source, dataset, snapshot_date`)
	if err != nil {
		return fmt.Errorf("registry: failed to export entries: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("registry: failed to write csv header: %w", err)
	}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("registry: failed to scan entry: %w", err)
		}
		rec := []string{
			e.Source, e.Dataset, e.Date.String(), string(e.Status),
			strconv.Itoa(e.CoverageStartSeason), strconv.Itoa(e.CoverageEndSeason),
			strconv.FormatInt(e.RowCount, 10), e.Notes,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("registry: failed to write csv row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("registry: failed to iterate entries: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// ImportCSV seeds the registry from a CSV previously produced by
// ExportCSV (or written by hand for bootstrap). Existing entries are
// left untouched; imported rows keep their recorded status, so a seed
// can restore a full lifecycle, not just currents. The per-dataset
// current invariant still holds: a seed carrying two current rows for
// one dataset fails on the unique index and nothing is applied.
func (r *SQLiteRegistry) ImportCSV(ctx context.Context, in io.Reader) (int, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("registry: failed to read csv header: %w", err)
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return 0, fmt.Errorf("registry: unexpected csv column %q, want %q", header[i], col)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("registry: failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC().Unix()
	imported := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("registry: failed to read csv row: %w", err)
		}

		date, err := types.ParseSnapshotDate(rec[2])
		if err != nil {
			return 0, fmt.Errorf("registry: bad snapshot_date in seed: %w", err)
		}
		status, err := types.ParseStatus(rec[3])
		if err != nil {
			return 0, fmt.Errorf("registry: bad status in seed: %w", err)
		}
		covStart, err := strconv.Atoi(rec[4])
		if err != nil {
			return 0, fmt.Errorf("registry: bad coverage_start_season in seed: %w", err)
		}
		covEnd, err := strconv.Atoi(rec[5])
		if err != nil {
			return 0, fmt.Errorf("registry: bad coverage_end_season in seed: %w", err)
		}
		rowCount, err := strconv.ParseInt(rec[6], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("registry: bad row_count in seed: %w", err)
		}
		key := types.PartitionKey{Source: rec[0], Dataset: rec[1], Date: date}
		if err := key.Validate(); err != nil {
			return 0, fmt.Errorf("registry: bad key in seed: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO entries (source, dataset, snapshot_date, status,
				coverage_start_season, coverage_end_season, row_count, notes,
				created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(source, dataset, snapshot_date) DO NOTHING`,
			rec[0], rec[1], date.String(), string(status),
			covStart, covEnd, rowCount, rec[7], now, now)
		if err != nil {
			return 0, fmt.Errorf("registry: failed to seed %s: %w", key.Path(), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("registry: failed to commit import: %w", err)
	}
	return imported, nil
}
