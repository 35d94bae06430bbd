package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/atinyakov/estakaadi/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, bc backendCase) {
		src := newEnv(t, bc, nil)
		ctx := context.Background()

		for _, n := range []models.Entity{{"title": "a"}, {"title": "b"}} {
			_, err := src.svc.Add(ctx, models.Notes, n, "alice")
			require.NoError(t, err)
		}
		_, err := src.svc.Add(ctx, models.Gallery, models.Entity{"category": "packing", "image": "data:image/png;base64,AAAA"}, "alice")
		require.NoError(t, err)

		doc, err := src.svc.Export(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, models.ExportVersion, doc.Version)
		assert.Equal(t, "alice", doc.ExportedBy)
		assert.Len(t, logsWithAction(t, src.svc, models.ActionExport), 1)

		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		dst := newEnv(t, bc, nil)
		require.NoError(t, dst.svc.Import(ctx, raw, "bob"))

		for _, kind := range models.AllKinds {
			if kind == models.Logs {
				continue
			}
			assert.ElementsMatch(t, ids(doc.Data[kind]), ids(dst.svc.GetAll(ctx, kind)), kind)
		}
		photo := dst.svc.GetAll(ctx, models.Gallery)[0]
		assert.Equal(t, "data:image/png;base64,AAAA", photo.Text("image"))
		assert.Equal(t, "alice", photo.Text(models.FieldCreatedBy))
	})
}

func TestImport_ReplacesNotMerges(t *testing.T) {
	forEachBackend(t, func(t *testing.T, bc backendCase) {
		e := newEnv(t, bc, nil)
		ctx := context.Background()

		_, err := e.svc.Add(ctx, models.Notes, models.Entity{"id": "n0"}, "alice")
		require.NoError(t, err)

		doc := `{"version":"2.0.0","exportedAt":"2026-10-15T08:00:00.000000Z","data":{"notes":[{"id":"n1","content":"x"},{"content":"no id"}]}}`
		require.NoError(t, e.svc.Import(ctx, []byte(doc), "alice"))

		notes := e.svc.GetAll(ctx, models.Notes)
		require.Len(t, notes, 2)
		assert.NotContains(t, ids(notes), "n0")
		assert.Contains(t, ids(notes), "n1")
		for _, n := range notes {
			assert.NotEmpty(t, n.ID())
			assert.Equal(t, "alice", n.Text(models.FieldCreatedBy))
		}

		assert.Len(t, logsWithAction(t, e.svc, models.ActionImport), 1)
		assert.Len(t, e.rec.topic(events.TopicDataImported), 1)
		changed := e.rec.topic(events.TopicDataChanged)
		assert.Equal(t, service.ChangeImport, changed[len(changed)-1].Action)
	})
}

func TestImport_AcceptsFlatDocumentShape(t *testing.T) {
	forEachBackend(t, func(t *testing.T, bc backendCase) {
		e := newEnv(t, bc, nil)
		ctx := context.Background()

		doc := `{"version":"1.0.0","metadata":{"appName":"Estakaadi Planner"},"notes":[{"id":"a"}],"gallery":{"lastModified":"x","data":[{"id":"p"}]}}`
		require.NoError(t, e.svc.Import(ctx, []byte(doc), "admin"))

		assert.Equal(t, []string{"a"}, ids(e.svc.GetAll(ctx, models.Notes)))
		assert.Equal(t, []string{"p"}, ids(e.svc.GetAll(ctx, models.Gallery)))
	})
}

func TestImport_MalformedLeavesDataUntouched(t *testing.T) {
	forEachBackend(t, func(t *testing.T, bc backendCase) {
		e := newEnv(t, bc, nil)
		ctx := context.Background()

		_, err := e.svc.Add(ctx, models.Notes, models.Entity{"id": "n0"}, "alice")
		require.NoError(t, err)

		for _, raw := range []string{`{"foo":1}`, `[1,2]`, `not json`, `{"data":[1]}`} {
			err := e.svc.Import(ctx, []byte(raw), "alice")
			assert.ErrorIs(t, err, models.ErrMalformedDocument, raw)
		}

		assert.Equal(t, []string{"n0"}, ids(e.svc.GetAll(ctx, models.Notes)))
		backups, err := e.svc.Backups(ctx)
		require.NoError(t, err)
		assert.Empty(t, backups)
		assert.Empty(t, e.rec.topic(events.TopicDataImported))
	})
}

func TestBackups_ImportSnapshotsAndRestores(t *testing.T) {
	forEachBackend(t, func(t *testing.T, bc backendCase) {
		e := newEnv(t, bc, nil)
		ctx := context.Background()

		_, err := e.svc.Add(ctx, models.Notes, models.Entity{"id": "n0"}, "alice")
		require.NoError(t, err)
		require.NoError(t, e.svc.Import(ctx, []byte(`{"version":"2.0.0","data":{"notes":[{"id":"n1"}]}}`), "alice"))

		backups, err := e.svc.Backups(ctx)
		require.NoError(t, err)
		require.Len(t, backups, 1)
		assert.True(t, strings.HasPrefix(backups[0].Key, service.BackupPrefix))
		assert.Positive(t, backups[0].Size)

		require.NoError(t, e.svc.RestoreBackup(ctx, backups[0].Key, "admin"))
		assert.Equal(t, []string{"n0"}, ids(e.svc.GetAll(ctx, models.Notes)))
		assert.Len(t, logsWithAction(t, e.svc, models.ActionRestore), 1)

		backups, err = e.svc.Backups(ctx)
		require.NoError(t, err)
		require.Len(t, backups, 2)
		assert.False(t, backups[0].CreatedAt.Before(backups[1].CreatedAt))
	})
}

func TestClear_EmptiesEverything(t *testing.T) {
	forEachBackend(t, func(t *testing.T, bc backendCase) {
		e := newEnv(t, bc, nil)
		ctx := context.Background()

		_, err := e.svc.Add(ctx, models.Notes, models.Entity{"id": "n0"}, "alice")
		require.NoError(t, err)
		_, err = e.svc.Add(ctx, models.Gallery, models.Entity{"category": "packing"}, "alice")
		require.NoError(t, err)
		require.NoError(t, e.local.Set("notes", []byte(`[{"id":"legacy"}]`)))
		require.NoError(t, e.local.Set("gallery", []byte(`[]`)))

		require.NoError(t, e.svc.Clear(ctx, "admin"))

		for _, kind := range models.AllKinds {
			if kind == models.Logs {
				continue
			}
			assert.Empty(t, e.svc.GetAll(ctx, kind), kind)
		}
		for _, key := range []string{"notes", "gallery"} {
			_, err := e.local.Get(key)
			assert.ErrorIs(t, err, kv.ErrNotFound, key)
		}

		clears := logsWithAction(t, e.svc, models.ActionClear)
		require.Len(t, clears, 1)
		assert.Equal(t, "admin", clears[0].Actor)
		logs, err := e.svc.Logs(ctx, models.LogFilter{})
		require.NoError(t, err)
		assert.Len(t, logs, 1)

		changed := e.rec.topic(events.TopicDataChanged)
		assert.Equal(t, service.ChangeClear, changed[len(changed)-1].Action)

		backups, err := e.svc.Backups(ctx)
		require.NoError(t, err)
		require.Len(t, backups, 1)
		require.NoError(t, e.svc.RestoreBackup(ctx, backups[0].Key, "admin"))
		assert.Equal(t, []string{"n0"}, ids(e.svc.GetAll(ctx, models.Notes)))
	})
}

func TestRestoreBackup_UnknownKey(t *testing.T) {
	e := newEnv(t, backendCases[0], nil)
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.RestoreBackup(ctx, "estakaadi_data", "admin"), models.ErrNotFound)
	assert.ErrorIs(t, e.svc.RestoreBackup(ctx, service.BackupPrefix+"1", "admin"), models.ErrNotFound)
}
