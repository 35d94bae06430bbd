// Package service provides the data service: a single entry point for
// CRUD, search, audit, import/export and migration over whichever storage
// backend is available.
package service

import (
	"context"

	"github.com/atinyakov/estakaadi/internal/db"
	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/atinyakov/estakaadi/internal/repository"
	"github.com/atinyakov/estakaadi/internal/storage"
	"go.uber.org/zap"
)

// Backend defines the storage operations needed by the DataService.
type Backend interface {
	// Name identifies the backend in stats and logs.
	Name() string
	// Init prepares the backend for use. A failing Init disqualifies it.
	Init(ctx context.Context) error
	// GetAll returns every entity of kind.
	GetAll(ctx context.Context, kind models.Kind) ([]models.Entity, error)
	// Get returns one entity or models.ErrNotFound.
	Get(ctx context.Context, kind models.Kind, id string) (models.Entity, error)
	// Insert stores e, which already carries its id.
	Insert(ctx context.Context, kind models.Kind, e models.Entity, actor string) error
	// Update overlays patch onto an existing entity or returns models.ErrNotFound.
	Update(ctx context.Context, kind models.Kind, id string, patch models.Entity, actor string) (models.Entity, error)
	// Delete removes an entity and reports whether it existed.
	Delete(ctx context.Context, kind models.Kind, id string, actor string) (bool, error)
	// FindBy looks entities up through a declared secondary index.
	FindBy(ctx context.Context, kind models.Kind, index, value string) ([]models.Entity, error)
	// ReplaceAll swaps the whole data set.
	ReplaceAll(ctx context.Context, data map[models.Kind][]models.Entity, actor string) error
	// AppendLog records an audit entry, keeping at most limit entries.
	AppendLog(ctx context.Context, entry models.LogEntry, limit int) error
	// Count returns the number of entities of kind.
	Count(ctx context.Context, kind models.Kind) (int, error)
	// Stats summarises the stored data.
	Stats(ctx context.Context) (models.Stats, error)
}

// BackendFactory builds a backend. Open tries factories in order.
type BackendFactory func(ctx context.Context) (Backend, error)

// Structured returns a factory for the SQL backend on driver and dsn.
func Structured(driver, dsn string, ids *idgen.Generator, log *zap.Logger) BackendFactory {
	return func(ctx context.Context) (Backend, error) {
		sqlDB, dialect, err := db.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLStore(sqlDB, dialect, ids, log), nil
	}
}

// Flat returns a factory for the flat-document backend on store.
func Flat(store kv.Store, ids *idgen.Generator, bus *events.Bus, log *zap.Logger) BackendFactory {
	return func(context.Context) (Backend, error) {
		return storage.NewLocalStorage(store, ids, bus, log), nil
	}
}
