package registry

// Registry schema. Entries carry the snapshot lifecycle; the partial
// unique index enforces at most one current snapshot per dataset at
// the storage level, independent of application logic. Transitions is
// an append-only audit trail.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	source                TEXT NOT NULL,
	dataset               TEXT NOT NULL,
	snapshot_date         TEXT NOT NULL,
	status                TEXT NOT NULL
		CHECK (status IN ('pending','current','historical','superseded','archived')),
	coverage_start_season INTEGER NOT NULL DEFAULT 0,
	coverage_end_season   INTEGER NOT NULL DEFAULT 0,
	row_count             INTEGER NOT NULL DEFAULT 0,
	notes                 TEXT NOT NULL DEFAULT '',
	created_at            INTEGER NOT NULL,
	updated_at            INTEGER NOT NULL,
	PRIMARY KEY (source, dataset, snapshot_date)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_one_current
	ON entries(source, dataset) WHERE status = 'current';

CREATE INDEX IF NOT EXISTS idx_entries_status
	ON entries(source, dataset, status);

CREATE TABLE IF NOT EXISTS transitions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source        TEXT NOT NULL,
	dataset       TEXT NOT NULL,
	snapshot_date TEXT NOT NULL,
	from_status   TEXT NOT NULL,
	to_status     TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	occurred_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_key
	ON transitions(source, dataset, snapshot_date);
`
