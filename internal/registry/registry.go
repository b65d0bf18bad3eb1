// Package registry persists the snapshot lifecycle in a SQLite
// database. Writes are serialized through a single connection and run
// inside transactions, so the promote sequence is atomic: readers see
// either the old current snapshot or the new one, never both.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/pkg/types"
)

// Registry is the snapshot lifecycle store.
type Registry interface {
	// Promote installs a snapshot as the current one for its dataset,
	// demoting any previous current snapshot in the same transaction.
	Promote(ctx context.Context, entry types.Entry, opts PromoteOptions) (*PromoteResult, error)

	// Get returns the entry for one partition key.
	Get(ctx context.Context, key types.PartitionKey) (*types.Entry, error)

	// Current returns the dataset's current snapshot, or nil when the
	// dataset has none.
	Current(ctx context.Context, ref types.DatasetRef) (*types.Entry, error)

	// Entries returns all entries of one dataset, date ascending.
	Entries(ctx context.Context, ref types.DatasetRef) ([]types.Entry, error)

	// Datasets returns every (source, dataset) pair the registry knows,
	// optionally filtered to one source.
	Datasets(ctx context.Context, sourceFilter string) ([]types.DatasetRef, error)

	// Archive moves an entry to archived status.
	Archive(ctx context.Context, key types.PartitionKey, reason string) error

	// Transitions returns the audit trail for one partition, oldest
	// first.
	Transitions(ctx context.Context, key types.PartitionKey) ([]Transition, error)

	Close() error
}

// PromoteOptions controls promotion behavior.
type PromoteOptions struct {
	// RetainAsBaseline demotes the previous current snapshot to
	// historical instead of superseded, keeping it selectable as a
	// baseline.
	RetainAsBaseline bool

	// Reason is recorded on the audit transitions.
	Reason string
}

// PromoteResult reports what a promotion did.
type PromoteResult struct {
	// Promoted is the entry now holding current status
	Promoted types.Entry

	// Demoted is the previously current entry, nil when the dataset had
	// none
	Demoted *types.Entry

	// NoOp is true when the snapshot was already current with the same
	// row count and the registry was left untouched
	NoOp bool
}

// Transition is one audit trail record.
type Transition struct {
	Key        types.PartitionKey
	FromStatus types.Status
	ToStatus   types.Status
	Reason     string
	OccurredAt time.Time
}

// SQLiteRegistry implements Registry on a SQLite database file.
type SQLiteRegistry struct {
	writeDB *sql.DB
	readDB  *sql.DB

	// serializes writers above the database lock
	mu sync.Mutex

	now func() time.Time
}

// Open opens (creating if needed) a registry database at the given
// path.
func Open(path string) (*SQLiteRegistry, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)

	writeDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to open database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("registry: failed to open read pool: %w", err)
	}
	readDB.SetMaxOpenConns(8)

	if _, err := writeDB.Exec(schemaSQL); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("registry: failed to initialize schema: %w", err)
	}

	return &SQLiteRegistry{
		writeDB: writeDB,
		readDB:  readDB,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRegistry) Close() error {
	rerr := r.readDB.Close()
	werr := r.writeDB.Close()
	if werr != nil {
		return fmt.Errorf("registry: failed to close: %w", werr)
	}
	if rerr != nil {
		return fmt.Errorf("registry: failed to close read pool: %w", rerr)
	}
	return nil
}

const entryColumns = `source, dataset, snapshot_date, status,
	coverage_start_season, coverage_end_season, row_count, notes,
	created_at, updated_at`

func scanEntry(row interface{ Scan(...interface{}) error }) (*types.Entry, error) {
	var e types.Entry
	var dateStr, statusStr string
	var createdAt, updatedAt int64
	err := row.Scan(&e.Source, &e.Dataset, &dateStr, &statusStr,
		&e.CoverageStartSeason, &e.CoverageEndSeason, &e.RowCount, &e.Notes,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d, err := types.ParseSnapshotDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("registry: corrupt snapshot_date %q: %w", dateStr, err)
	}
	s, err := types.ParseStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("registry: corrupt status %q: %w", statusStr, err)
	}
	e.Date = d
	e.Status = s
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &e, nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, key types.PartitionKey) (*types.Entry, error) {
	row := r.readDB.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE source = ? AND dataset = ? AND snapshot_date = ?`,
		key.Source, key.Dataset, key.Date.String())
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, goverrors.Newf(goverrors.ErrCategoryRegistry, goverrors.CodeEntryNotFound,
			"no registry entry for %s", key.Path())
	}
	if err != nil {
		return nil, fmt.Errorf("registry: failed to load entry %s: %w", key.Path(), err)
	}
	return e, nil
}

func (r *SQLiteRegistry) Current(ctx context.Context, ref types.DatasetRef) (*types.Entry, error) {
	row := r.readDB.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE source = ? AND dataset = ? AND status = 'current'`,
		ref.Source, ref.Dataset)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: failed to load current entry for %s: %w", ref, err)
	}
	return e, nil
}

func (r *SQLiteRegistry) Entries(ctx context.Context, ref types.DatasetRef) ([]types.Entry, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE source = ? AND dataset = ?
		 ORDER BY snapshot_date ASC`,
		ref.Source, ref.Dataset)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list entries for %s: %w", ref, err)
	}
	defer rows.Close()

	var entries []types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("registry: failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: failed to iterate entries: %w", err)
	}
	return entries, nil
}

func (r *SQLiteRegistry) Datasets(ctx context.Context, sourceFilter string) ([]types.DatasetRef, error) {
	query := `SELECT DISTINCT source, dataset FROM entries`
	var args []interface{}
	if sourceFilter != "" {
		query += ` WHERE source = ?`
		args = append(args, sourceFilter)
	}
	query += ` ORDER BY source, dataset`

	rows, err := r.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list datasets: %w", err)
	}
	defer rows.Close()

	var refs []types.DatasetRef
	for rows.Next() {
		var ref types.DatasetRef
		if err := rows.Scan(&ref.Source, &ref.Dataset); err != nil {
			return nil, fmt.Errorf("registry: failed to scan dataset: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: failed to iterate datasets: %w", err)
	}
	return refs, nil
}

func (r *SQLiteRegistry) Promote(ctx context.Context, entry types.Entry, opts PromoteOptions) (*PromoteResult, error) {
	if err := entry.Key().Validate(); err != nil {
		return nil, goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"invalid partition key", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"failed to begin promote transaction", err)
	}
	defer tx.Rollback()

	now := r.now().UTC().Unix()
	existing, err := getInTx(ctx, tx, entry.Key())
	if err != nil {
		return nil, err
	}

	// re-promoting the snapshot that is already current with the same
	// row count is a no-op
	if existing != nil && existing.Status == types.StatusCurrent && existing.RowCount == entry.RowCount {
		res := &PromoteResult{Promoted: *existing, NoOp: true}
		return res, nil
	}

	latest, err := latestDateInTx(ctx, tx, entry.Ref())
	if err != nil {
		return nil, err
	}

	// published partitions are immutable: a changed row count on any
	// date other than the newest one means someone rewrote history
	if existing != nil && existing.RowCount != entry.RowCount &&
		!latest.IsZero() && entry.Date.Before(latest) {
		return nil, goverrors.Newf(goverrors.ErrCategoryRegistry,
			goverrors.CodeImmutablePartitionViolation,
			"row count for %s changed from %d to %d but newer snapshots exist",
			entry.Key().Path(), existing.RowCount, entry.RowCount)
	}

	if existing != nil && existing.Status != types.StatusCurrent &&
		!existing.Status.CanTransitionTo(types.StatusCurrent) {
		return nil, goverrors.Newf(goverrors.ErrCategoryRegistry,
			goverrors.CodeInvalidTransition,
			"cannot promote %s from status %s", entry.Key().Path(), existing.Status)
	}

	result := &PromoteResult{}

	// demote the previous current snapshot first so the partial unique
	// index never rejects the new one
	prev, err := currentInTx(ctx, tx, entry.Ref())
	if err != nil {
		return nil, err
	}
	if prev != nil && !prev.Date.Equal(entry.Date) {
		demoteTo := types.StatusSuperseded
		if opts.RetainAsBaseline {
			demoteTo = types.StatusHistorical
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET status = ?, updated_at = ?
			 WHERE source = ? AND dataset = ? AND snapshot_date = ?`,
			string(demoteTo), now, prev.Source, prev.Dataset, prev.Date.String()); err != nil {
			return nil, goverrors.NewRegistryError(goverrors.CodeWriteConflict,
				"failed to demote previous current snapshot", err)
		}
		if err := recordTransition(ctx, tx, prev.Key(), prev.Status, demoteTo, opts.Reason, now); err != nil {
			return nil, err
		}
		demoted := *prev
		demoted.Status = demoteTo
		demoted.UpdatedAt = time.Unix(now, 0).UTC()
		result.Demoted = &demoted
	}

	fromStatus := types.StatusPending
	if existing != nil {
		fromStatus = existing.Status
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (source, dataset, snapshot_date, status,
			coverage_start_season, coverage_end_season, row_count, notes,
			created_at, updated_at)
		 VALUES (?, ?, ?, 'current', ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source, dataset, snapshot_date) DO UPDATE SET
			status = 'current',
			coverage_start_season = excluded.coverage_start_season,
			coverage_end_season = excluded.coverage_end_season,
			row_count = excluded.row_count,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		entry.Source, entry.Dataset, entry.Date.String(),
		entry.CoverageStartSeason, entry.CoverageEndSeason,
		entry.RowCount, entry.Notes, now, now); err != nil {
		return nil, goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"failed to install current snapshot", err)
	}
	if err := recordTransition(ctx, tx, entry.Key(), fromStatus, types.StatusCurrent, opts.Reason, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"failed to commit promote transaction", err)
	}

	promoted, err := r.Get(ctx, entry.Key())
	if err != nil {
		return nil, err
	}
	result.Promoted = *promoted
	return result, nil
}

func (r *SQLiteRegistry) Archive(ctx context.Context, key types.PartitionKey, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"failed to begin archive transaction", err)
	}
	defer tx.Rollback()

	existing, err := getInTx(ctx, tx, key)
	if err != nil {
		return err
	}
	if existing == nil {
		return goverrors.Newf(goverrors.ErrCategoryRegistry, goverrors.CodeEntryNotFound,
			"no registry entry for %s", key.Path())
	}
	if !existing.Status.CanTransitionTo(types.StatusArchived) {
		return goverrors.Newf(goverrors.ErrCategoryRegistry, goverrors.CodeInvalidTransition,
			"cannot archive %s from status %s", key.Path(), existing.Status)
	}

	now := r.now().UTC().Unix()
	if _, err := tx.ExecContext(ctx,
		`UPDATE entries SET status = 'archived', updated_at = ?
		 WHERE source = ? AND dataset = ? AND snapshot_date = ?`,
		now, key.Source, key.Dataset, key.Date.String()); err != nil {
		return goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"failed to archive entry", err)
	}
	if err := recordTransition(ctx, tx, key, existing.Status, types.StatusArchived, reason, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"failed to commit archive transaction", err)
	}
	return nil
}

func (r *SQLiteRegistry) Transitions(ctx context.Context, key types.PartitionKey) ([]Transition, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT from_status, to_status, reason, occurred_at FROM transitions
		 WHERE source = ? AND dataset = ? AND snapshot_date = ?
		 ORDER BY id ASC`,
		key.Source, key.Dataset, key.Date.String())
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list transitions for %s: %w", key.Path(), err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var from, to string
		var at int64
		if err := rows.Scan(&from, &to, &t.Reason, &at); err != nil {
			return nil, fmt.Errorf("registry: failed to scan transition: %w", err)
		}
		t.Key = key
		t.FromStatus = types.Status(from)
		t.ToStatus = types.Status(to)
		t.OccurredAt = time.Unix(at, 0).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: failed to iterate transitions: %w", err)
	}
	return out, nil
}

func getInTx(ctx context.Context, tx *sql.Tx, key types.PartitionKey) (*types.Entry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE source = ? AND dataset = ? AND snapshot_date = ?`,
		key.Source, key.Dataset, key.Date.String())
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: failed to load entry %s: %w", key.Path(), err)
	}
	return e, nil
}

func currentInTx(ctx context.Context, tx *sql.Tx, ref types.DatasetRef) (*types.Entry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE source = ? AND dataset = ? AND status = 'current'`,
		ref.Source, ref.Dataset)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: failed to load current entry for %s: %w", ref, err)
	}
	return e, nil
}

func latestDateInTx(ctx context.Context, tx *sql.Tx, ref types.DatasetRef) (types.SnapshotDate, error) {
	var dateStr sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(snapshot_date) FROM entries WHERE source = ? AND dataset = ?`,
		ref.Source, ref.Dataset).Scan(&dateStr)
	if err != nil {
		return types.SnapshotDate{}, fmt.Errorf("registry: failed to find latest date for %s: %w", ref, err)
	}
	if !dateStr.Valid || strings.TrimSpace(dateStr.String) == "" {
		return types.SnapshotDate{}, nil
	}
	d, err := types.ParseSnapshotDate(dateStr.String)
	if err != nil {
		return types.SnapshotDate{}, fmt.Errorf("registry: corrupt snapshot_date %q: %w", dateStr.String, err)
	}
	return d, nil
}

func recordTransition(ctx context.Context, tx *sql.Tx, key types.PartitionKey, from, to types.Status, reason string, now int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (source, dataset, snapshot_date, from_status, to_status, reason, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.Source, key.Dataset, key.Date.String(), string(from), string(to), reason, now)
	if err != nil {
		return goverrors.NewRegistryError(goverrors.CodeWriteConflict,
			"failed to record transition", err)
	}
	return nil
}
