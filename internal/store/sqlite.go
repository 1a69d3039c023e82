package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/industry-viz/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS metadata_snapshots (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	etag        TEXT NOT NULL DEFAULT '',
	entry_count INTEGER NOT NULL DEFAULT 0,
	synced_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS metadata_entries (
	snapshot_name TEXT NOT NULL,
	id            TEXT NOT NULL,
	code          TEXT NOT NULL DEFAULT '',
	level         TEXT NOT NULL DEFAULT '',
	name_en       TEXT NOT NULL DEFAULT '',
	name_es       TEXT NOT NULL DEFAULT '',
	name_short_en TEXT NOT NULL DEFAULT '',
	name_short_es TEXT NOT NULL DEFAULT '',
	color         TEXT NOT NULL DEFAULT '',
	grp           TEXT NOT NULL DEFAULT 'null',
	parent_id     TEXT,
	PRIMARY KEY (snapshot_name, id)
);

CREATE INDEX IF NOT EXISTS idx_metadata_entries_parent ON metadata_entries(snapshot_name, parent_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, etag, entry_count, synced_at FROM metadata_snapshots WHERE name = ?`,
		name,
	).Scan(&snap.ID, &snap.Name, &snap.ETag, &snap.Entries, &snap.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", name)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(entryColumns[1:], ", ")+` FROM metadata_entries WHERE snapshot_name = ? ORDER BY id`,
		name,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query entries %s", name)
	}
	defer rows.Close() //nolint:errcheck

	snap.Table = make(model.Table, snap.Entries)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		snap.Table[e.ID] = e
	}
	return snap, eris.Wrap(rows.Err(), "sqlite: iterate entries")
}

func (s *SQLiteStore) PutSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := prepare(snap, uuid.NewString); err != nil {
		return err
	}
	rows, err := entryRows(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.QueryRowContext(ctx,
		`INSERT INTO metadata_snapshots (id, name, etag, entry_count, synced_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET etag = excluded.etag, entry_count = excluded.entry_count, synced_at = excluded.synced_at
		 RETURNING id`,
		snap.ID, snap.Name, snap.ETag, snap.Entries, snap.SyncedAt,
	).Scan(&snap.ID); err != nil {
		return eris.Wrapf(err, "sqlite: upsert snapshot %s", snap.Name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata_entries WHERE snapshot_name = ?`, snap.Name); err != nil {
		return eris.Wrapf(err, "sqlite: clear entries %s", snap.Name)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metadata_entries (`+strings.Join(entryColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare entry insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert entry %s/%v", snap.Name, row[1])
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit snapshot")
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, etag, entry_count, synced_at FROM metadata_snapshots ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Name, &snap.ETag, &snap.Entries, &snap.SyncedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate snapshots")
}
