package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/industry-viz/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func keyPtr(k model.Key) *model.Key { return &k }

func locationsTable() model.Table {
	return model.Table{
		"1":  {ID: "1", Code: "05", Level: "department", NameShortEN: "Antioquia", NameShortES: "Antioquia", Group: 2.0},
		"77": {ID: "77", Code: "05001", Level: "msa", NameEN: "Medellin", NameES: "Medellín", NameShortEN: "Medellin", NameShortES: "Medellín", Color: "#000", ParentID: keyPtr("1")},
	}
}

func TestSQLite_Snapshot_PutAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	snap := &Snapshot{Name: model.TableLocations, ETag: `"v1"`, Table: locationsTable()}
	require.NoError(t, st.PutSnapshot(ctx, snap))
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 2, snap.Entries)
	assert.False(t, snap.SyncedAt.IsZero())

	got, err := st.GetSnapshot(ctx, model.TableLocations)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, `"v1"`, got.ETag)
	assert.Equal(t, 2, got.Entries)
	assert.Equal(t, locationsTable(), got.Table)
}

func TestSQLite_Snapshot_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetSnapshot(context.Background(), model.TableOccupations)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Snapshot_ReplacesEntries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := &Snapshot{Name: model.TableLocations, ETag: `"v1"`, Table: locationsTable()}
	require.NoError(t, st.PutSnapshot(ctx, first))

	next := model.Table{"1": {ID: "1", Code: "05", NameShortEN: "Antioquia (new)"}}
	second := &Snapshot{
		Name:     model.TableLocations,
		ETag:     `"v2"`,
		SyncedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Table:    next,
	}
	require.NoError(t, st.PutSnapshot(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := st.GetSnapshot(ctx, model.TableLocations)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `"v2"`, got.ETag)
	assert.Equal(t, 1, got.Entries)
	require.Len(t, got.Table, 1)
	assert.Equal(t, "Antioquia (new)", got.Table["1"].NameShortEN)
	assert.True(t, got.SyncedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestSQLite_ListSnapshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutSnapshot(ctx, &Snapshot{Name: model.TableOccupations, Table: model.Table{"9": {ID: "9"}}}))
	require.NoError(t, st.PutSnapshot(ctx, &Snapshot{Name: model.TableLocations, Table: locationsTable()}))

	list, err := st.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.TableLocations, list[0].Name)
	assert.Equal(t, 2, list[0].Entries)
	assert.Nil(t, list[0].Table)
	assert.Equal(t, model.TableOccupations, list[1].Name)
}

func TestSQLite_PutSnapshot_RequiresName(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.PutSnapshot(context.Background(), &Snapshot{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
