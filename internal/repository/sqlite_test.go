package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/atinyakov/estakaadi/internal/db"
	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	sqlDB, dialect, err := db.Open(context.Background(), db.DriverSQLite, filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewSQLStore(sqlDB, dialect, idgen.New(), nil)
}

func TestSQLite_InitSeedsOnce(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Init(ctx))

	users, err := store.GetAll(ctx, models.Users)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for _, u := range users {
		assert.False(t, u.Has("password"), u.ID())
		assert.Equal(t, models.SystemActor, u.Text(models.FieldCreatedBy))
	}

	n, err := store.Count(ctx, models.Companies)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	monday, err := store.Get(ctx, models.Schedule, "monday")
	require.NoError(t, err)
	assert.Equal(t, []any{"A. Le coq", "Coca-Cola", "Saku"}, monday["companies"])

	logs, err := store.FindBy(ctx, models.Logs, "action", models.ActionInit)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	require.NoError(t, store.Init(ctx))
	n, err = store.Count(ctx, models.Logs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_CRUD(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, models.Notes, models.Entity{"id": "n2", "content": "b", "createdBy": "bob"}, "bob"))
	require.NoError(t, store.Insert(ctx, models.Notes, models.Entity{"id": "n1", "content": "a", "createdBy": "alice"}, "alice"))
	assert.Error(t, store.Insert(ctx, models.Notes, models.Entity{"id": "n1"}, "alice"))

	all, err := store.GetAll(ctx, models.Notes)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "n1", all[0].ID())
	assert.Equal(t, "n2", all[1].ID())

	updated, err := store.Update(ctx, models.Notes, "n1", models.Entity{"content": "a2", "createdBy": "carol"}, "carol")
	require.NoError(t, err)
	assert.Equal(t, "a2", updated.Text("content"))

	byCarol, err := store.FindBy(ctx, models.Notes, "user", "carol")
	require.NoError(t, err)
	require.Len(t, byCarol, 1)
	assert.Equal(t, "n1", byCarol[0].ID())

	byAlice, err := store.FindBy(ctx, models.Notes, "user", "alice")
	require.NoError(t, err)
	assert.Empty(t, byAlice)

	existed, err := store.Delete(ctx, models.Notes, "n2", "bob")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = store.Delete(ctx, models.Notes, "n2", "bob")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = store.Get(ctx, models.Notes, "n2")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSQLite_AppendLogKeepsNewest(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	ids := idgen.New()

	var stamps []string
	for i := 0; i < 5; i++ {
		e := models.LogEntry{ID: ids.NewID("log"), Timestamp: ids.Stamp(), Actor: "alice", Action: models.ActionUpdate}
		stamps = append(stamps, e.Timestamp)
		require.NoError(t, store.AppendLog(ctx, e, 3))
	}

	logs, err := store.GetAll(ctx, models.Logs)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	kept := map[string]bool{}
	for _, l := range logs {
		kept[l.Text("timestamp")] = true
	}
	for _, ts := range stamps[2:] {
		assert.True(t, kept[ts], ts)
	}
}

func TestSQLite_AppendLogTrimsUndatedFirst(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	ids := idgen.New()

	require.NoError(t, store.Insert(ctx, models.Logs, models.Entity{"id": "zz_undated", "action": models.ActionImport}, "system"))
	for i := 0; i < 2; i++ {
		e := models.LogEntry{ID: ids.NewID("log"), Timestamp: ids.Stamp(), Actor: "alice", Action: models.ActionUpdate}
		require.NoError(t, store.AppendLog(ctx, e, 2))
	}

	logs, err := store.GetAll(ctx, models.Logs)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.NotEqual(t, "zz_undated", l.ID())
	}
}

func TestSQLite_LegacyLogActor(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, models.Logs, models.Entity{"id": "old", "user": "maksim", "action": "data_create"}, "system"))

	found, err := store.FindBy(ctx, models.Logs, "actor", "maksim")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestSQLite_ReplaceAll(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.ReplaceAll(ctx, map[models.Kind][]models.Entity{
		models.Notes: {{"id": "n1", "content": "imported"}},
	}, "admin"))

	users, err := store.GetAll(ctx, models.Users)
	require.NoError(t, err)
	assert.Empty(t, users)
	notes, err := store.GetAll(ctx, models.Notes)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "imported", notes[0].Text("content"))
}

func TestSQLite_ReplaceAllIsAtomic(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, models.Notes, models.Entity{"id": "keep"}, "admin"))

	err := store.ReplaceAll(ctx, map[models.Kind][]models.Entity{
		models.Notes: {{"id": "dup"}, {"id": "dup"}},
	}, "admin")
	require.Error(t, err)

	_, err = store.Get(ctx, models.Notes, "keep")
	assert.NoError(t, err)
}

func TestSQLite_Stats(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackendName, st.Backend)
	assert.Equal(t, 3+7+7+1, st.TotalItems)
	assert.Equal(t, models.SizeUnknown, st.TotalSize)
	assert.Equal(t, "N/A", st.FormattedSize)
	assert.NotEmpty(t, st.LastUpdated)
	for _, s := range st.Sections {
		assert.Equal(t, models.SizeUnknown, s.Size)
	}
}
