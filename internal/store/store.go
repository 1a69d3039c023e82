// Package store persists metadata table snapshots so the service can start
// without re-downloading the metadata tables.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/industry-viz/internal/model"
)

// Snapshot is a stored copy of one metadata table.
type Snapshot struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	ETag     string      `json:"etag,omitempty" yaml:"etag,omitempty"`
	Entries  int         `json:"entries" yaml:"entries"`
	SyncedAt time.Time   `json:"synced_at" yaml:"synced_at"`
	Table    model.Table `json:"-" yaml:"-"`
}

// Store defines the persistence interface for metadata snapshots.
type Store interface {
	// GetSnapshot returns the named snapshot with its table, or nil when
	// none has been stored.
	GetSnapshot(ctx context.Context, name string) (*Snapshot, error)
	// PutSnapshot replaces the named snapshot and all of its entries.
	PutSnapshot(ctx context.Context, snap *Snapshot) error
	// ListSnapshots returns snapshot headers (Table is nil) ordered by name.
	ListSnapshots(ctx context.Context) ([]Snapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var entryColumns = []string{
	"snapshot_name", "id", "code", "level", "name_en", "name_es",
	"name_short_en", "name_short_es", "color", "grp", "parent_id",
}

func entryRow(name string, e model.Entry) ([]any, error) {
	grp, err := json.Marshal(e.Group)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal group of %s/%s", name, e.ID)
	}
	var parent *string
	if e.ParentID != nil {
		p := string(*e.ParentID)
		parent = &p
	}
	return []any{
		name, string(e.ID), e.Code, e.Level, e.NameEN, e.NameES,
		e.NameShortEN, e.NameShortES, e.Color, string(grp), parent,
	}, nil
}

func entryRows(snap *Snapshot) ([][]any, error) {
	rows := make([][]any, 0, len(snap.Table))
	for _, e := range snap.Table {
		row, err := entryRow(snap.Name, e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (model.Entry, error) {
	var (
		e      model.Entry
		id     string
		grp    string
		parent *string
	)
	if err := row.Scan(&id, &e.Code, &e.Level, &e.NameEN, &e.NameES,
		&e.NameShortEN, &e.NameShortES, &e.Color, &grp, &parent); err != nil {
		return e, eris.Wrap(err, "store: scan entry")
	}
	e.ID = model.Key(id)
	if grp != "" {
		if err := json.Unmarshal([]byte(grp), &e.Group); err != nil {
			return e, eris.Wrapf(err, "store: unmarshal group of %s", id)
		}
	}
	if parent != nil {
		p := model.Key(*parent)
		e.ParentID = &p
	}
	return e, nil
}

// prepare fills the ID, entry count and sync time of a snapshot about to be
// written.
func prepare(snap *Snapshot, newID func() string) error {
	if snap == nil || snap.Name == "" {
		return eris.New("store: snapshot name is required")
	}
	if snap.ID == "" {
		snap.ID = newID()
	}
	if snap.SyncedAt.IsZero() {
		snap.SyncedAt = time.Now().UTC()
	}
	snap.Entries = len(snap.Table)
	return nil
}
