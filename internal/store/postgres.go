package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/industry-viz/internal/db"
	"github.com/sells-group/industry-viz/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS metadata_snapshots (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name        TEXT NOT NULL UNIQUE,
	etag        TEXT NOT NULL DEFAULT '',
	entry_count INTEGER NOT NULL DEFAULT 0,
	synced_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS metadata_entries (
	snapshot_name TEXT NOT NULL REFERENCES metadata_snapshots(name) ON DELETE CASCADE,
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, etag, entry_count, synced_at FROM metadata_snapshots WHERE name = $1`,
		name,
	).Scan(&snap.ID, &snap.Name, &snap.ETag, &snap.Entries, &snap.SyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get snapshot %s", name)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(entryColumns[1:], ", ")+` FROM metadata_entries WHERE snapshot_name = $1 ORDER BY id`,
		name,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query entries %s", name)
	}
	defer rows.Close()

	snap.Table = make(model.Table, snap.Entries)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		snap.Table[e.ID] = e
	}
	return snap, eris.Wrap(rows.Err(), "postgres: iterate entries")
}

// PutSnapshot upserts the snapshot header and replaces its entries with a
// COPY inside one transaction.
func (s *PostgresStore) PutSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := prepare(snap, uuid.NewString); err != nil {
		return err
	}
	rows, err := entryRows(snap)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := putSnapshotTx(ctx, tx, snap, rows); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit snapshot")
}

func putSnapshotTx(ctx context.Context, tx pgx.Tx, snap *Snapshot, rows [][]any) error {
	if err := tx.QueryRow(ctx,
		`INSERT INTO metadata_snapshots (id, name, etag, entry_count, synced_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET etag = EXCLUDED.etag, entry_count = EXCLUDED.entry_count, synced_at = EXCLUDED.synced_at
		 RETURNING id`,
		snap.ID, snap.Name, snap.ETag, snap.Entries, snap.SyncedAt,
	).Scan(&snap.ID); err != nil {
		return eris.Wrapf(err, "postgres: upsert snapshot %s", snap.Name)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM metadata_entries WHERE snapshot_name = $1`, snap.Name); err != nil {
		return eris.Wrapf(err, "postgres: clear entries %s", snap.Name)
	}
	if _, err := db.CopyFrom(ctx, tx, "metadata_entries", entryColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy entries %s", snap.Name)
	}
	return nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, etag, entry_count, synced_at FROM metadata_snapshots ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Name, &snap.ETag, &snap.Entries, &snap.SyncedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate snapshots")
}
