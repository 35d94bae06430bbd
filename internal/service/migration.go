package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/atinyakov/estakaadi/internal/storage"
	"go.uber.org/zap"
)

// legacyKeys are the pre-document key-value entries, each a JSON array.
var legacyKeys = []struct {
	key    string
	kind   models.Kind
	prefix string
}{
	{"notes", models.Notes, "note"},
	{"gallery", models.Gallery, "photo"},
}

// documentKinds are copied from a stored flat document.
var documentKinds = []models.Kind{models.Notes, models.Gallery, models.Schedule}

// Migrate copies data from older storage layouts into the active backend.
// It runs at most once per DataService; Open calls it. Each source is
// independent and best effort, and a collection that already holds data
// is never touched, so running it again changes nothing.
func (s *DataService) Migrate(ctx context.Context) {
	s.migrateOnce.Do(func() {
		s.log.Info("starting data migration")
		s.migratePass(ctx, "legacy keys", s.migrateLegacyKeys)
		s.migratePass(ctx, "flat document", s.migrateDocument)
		s.migratePass(ctx, "bundled schedule", s.migrateBundledSchedule)
		s.log.Info("data migration completed")
	})
}

func (s *DataService) migratePass(ctx context.Context, source string, pass func(context.Context) (int, error)) {
	n, err := pass(ctx)
	if err != nil {
		s.log.Warn("migration pass failed", zap.String("source", source), zap.Int("migrated", n), zap.Error(err))
	}
	if n > 0 {
		s.log.Info("migrated items", zap.String("source", source), zap.Int("count", n))
		s.addLog(ctx, models.ActionMigrate, fmt.Sprintf("Migrated %d items from %s", n, source), models.MigrationActor)
	}
}

func (s *DataService) migrateLegacyKeys(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, lk := range legacyKeys {
		raw, err := s.local.Get(lk.key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", lk.key, err))
			continue
		}
		var items []models.Entity
		if err := json.Unmarshal(raw, &items); err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", lk.key, err))
			continue
		}
		n, err := s.migrateItems(ctx, lk.kind, items, lk.prefix, "")
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// migrateDocument reads the flat document. It is skipped when the flat
// backend is the active one, since that document is its own storage.
func (s *DataService) migrateDocument(ctx context.Context) (int, error) {
	if s.backend.Name() == storage.BackendName {
		return 0, nil
	}
	doc, err := storage.LoadDocument(s.local)
	if err != nil || doc == nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, kind := range documentKinds {
		n, err := s.migrateItems(ctx, kind, doc.Section(kind).Items(), string(kind), "")
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *DataService) migrateBundledSchedule(ctx context.Context) (int, error) {
	raw, err := fs.ReadFile(s.bundle, s.bundlePath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.bundlePath, err)
	}
	var file struct {
		Schedule []models.Entity `json:"schedule"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("decode %s: %w", s.bundlePath, err)
	}
	return s.migrateItems(ctx, models.Schedule, file.Schedule, string(models.Schedule), "day")
}

// migrateItems inserts items into kind when kind is empty. Missing ids come
// from idField when set, otherwise from the generator with prefix.
func (s *DataService) migrateItems(ctx context.Context, kind models.Kind, items []models.Entity, prefix, idField string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	n, err := s.backend.Count(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	if n > 0 {
		return 0, nil
	}

	written := 0
	for _, item := range items {
		e := item.Clone()
		if idField != "" && e.Has(idField) {
			e[models.FieldID] = e.Text(idField)
		}
		if !e.Has(models.FieldID) {
			e[models.FieldID] = s.ids.NewID(prefix)
		}
		if !e.Has(models.FieldCreatedAt) {
			e[models.FieldCreatedAt] = s.ids.Stamp()
		}
		e[models.FieldCreatedBy] = models.MigrationActor
		if err := s.backend.Insert(ctx, kind, e, models.MigrationActor); err != nil {
			return written, fmt.Errorf("migrate into %s: %w", kind, err)
		}
		written++
	}
	return written, nil
}
