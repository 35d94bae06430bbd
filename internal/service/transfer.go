package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/atinyakov/estakaadi/internal/storage"
	"go.uber.org/zap"
)

// BackupPrefix starts the key of every pre-import snapshot.
const BackupPrefix = storage.StorageKey + "_backup_"

// Backup describes one stored snapshot.
type Backup struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int       `json:"size"`
}

// Export returns every collection of the active backend in the portable
// export format and records the export in the audit log.
func (s *DataService) Export(ctx context.Context, actor string) (*models.ExportDocument, error) {
	actor = actorOrSystem(actor)
	doc, err := s.snapshot(ctx, actor)
	if err != nil {
		return nil, err
	}
	s.addLog(ctx, models.ActionExport, "Data exported", actor)
	return doc, nil
}

func (s *DataService) snapshot(ctx context.Context, actor string) (*models.ExportDocument, error) {
	doc := &models.ExportDocument{
		Version:    models.ExportVersion,
		ExportedAt: s.ids.Stamp(),
		ExportedBy: actor,
		Data:       make(map[models.Kind][]models.Entity, len(models.AllKinds)),
	}
	for _, kind := range models.AllKinds {
		items, err := s.backend.GetAll(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", kind, err)
		}
		doc.Data[kind] = items
	}
	return doc, nil
}

// Import replaces the whole data set with the document in raw. The
// document is validated before anything is touched, and the current data
// is kept as a backup first.
func (s *DataService) Import(ctx context.Context, raw []byte, actor string) error {
	doc, err := models.ParseDocument(raw)
	if err != nil {
		return err
	}
	return s.replace(ctx, doc, actorOrSystem(actor), models.ActionImport, "Data imported from backup")
}

// Backups lists stored snapshots, newest first.
func (s *DataService) Backups(ctx context.Context) ([]Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := s.local.Keys()
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := make([]Backup, 0)
	for _, key := range keys {
		created, ok := backupTime(key)
		if !ok {
			continue
		}
		raw, err := s.local.Get(key)
		if err != nil {
			continue
		}
		out = append(out, Backup{Key: key, CreatedAt: created, Size: len(raw)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RestoreBackup imports the snapshot stored under key. An unknown key
// yields models.ErrNotFound.
func (s *DataService) RestoreBackup(ctx context.Context, key, actor string) error {
	if _, ok := backupTime(key); !ok {
		return fmt.Errorf("backup %q: %w", key, models.ErrNotFound)
	}
	raw, err := s.local.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("backup %q: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read backup %q: %w", key, err)
	}
	doc, err := models.ParseDocument(raw)
	if err != nil {
		return err
	}
	return s.replace(ctx, doc, actorOrSystem(actor), models.ActionRestore, "Data restored from "+key)
}

// Clear empties every collection and removes the legacy key-value entries
// so migration does not bring them back. The current data is kept as a
// backup first.
func (s *DataService) Clear(ctx context.Context, actor string) error {
	actor = actorOrSystem(actor)
	s.backupCurrent(ctx, actor)

	if err := s.backend.ReplaceAll(ctx, map[models.Kind][]models.Entity{}, actor); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	for _, lk := range legacyKeys {
		if err := s.local.Remove(lk.key); err != nil {
			s.log.Warn("failed to remove legacy key", zap.String("key", lk.key), zap.Error(err))
		}
	}

	s.addLog(ctx, models.ActionClear, "All data cleared", actor)
	s.changed(ctx, ChangeClear, "", nil)
	return nil
}

func (s *DataService) replace(ctx context.Context, doc *models.ExportDocument, actor, action, details string) error {
	data := make(map[models.Kind][]models.Entity, len(doc.Data))
	counts := make(map[models.Kind]int, len(doc.Data))
	for kind, items := range doc.Data {
		out := make([]models.Entity, 0, len(items))
		for _, item := range items {
			e := item.Clone()
			if !e.Has(models.FieldID) {
				e[models.FieldID] = s.ids.NewID(string(kind))
			}
			if kind != models.Logs && !e.Has(models.FieldCreatedBy) {
				e[models.FieldCreatedBy] = actor
			}
			out = append(out, e)
		}
		data[kind] = out
		counts[kind] = len(out)
	}
	if err := models.CheckUniqueIDs(data); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	s.backupCurrent(ctx, actor)

	if err := s.backend.ReplaceAll(ctx, data, actor); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	s.addLog(ctx, action, details, actor)
	s.bus.Publish(events.Event{Topic: events.TopicDataChanged, Action: ChangeImport, Payload: counts})
	s.bus.Publish(events.Event{Topic: events.TopicDataImported, Payload: counts})
	s.checkQuota(ctx)
	return nil
}

// backupCurrent stores the current data set under a new BackupPrefix key.
// A failed backup is logged and does not stop the replacement.
func (s *DataService) backupCurrent(ctx context.Context, actor string) {
	doc, err := s.snapshot(ctx, actor)
	if err == nil {
		var raw []byte
		raw, err = json.Marshal(doc)
		if err == nil {
			key := s.freeBackupKey(s.ids.Time().UnixMilli())
			err = s.local.Set(key, raw)
			if err == nil {
				s.log.Info("backup created", zap.String("key", key))
				return
			}
		}
	}
	s.log.Warn("failed to back up current data", zap.Error(err))
}

// freeBackupKey returns the key for ms, moving forward past existing
// snapshots taken within the same millisecond.
func (s *DataService) freeBackupKey(ms int64) string {
	for {
		key := BackupPrefix + strconv.FormatInt(ms, 10)
		if _, err := s.local.Get(key); err != nil {
			return key
		}
		ms++
	}
}

func backupTime(key string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(key, BackupPrefix)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
