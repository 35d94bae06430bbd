package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/atinyakov/estakaadi/internal/assets"
	"github.com/atinyakov/estakaadi/internal/db"
	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/repository"
	"github.com/atinyakov/estakaadi/internal/storage"
	"go.uber.org/zap"
)

// ErrNoBackend is returned by Open when every backend failed.
var ErrNoBackend = errors.New("no storage backend available")

// DefaultLogLimit is how many audit entries are kept.
const DefaultLogLimit = 1000

// Options configures Open.
type Options struct {
	// Backends are tried in order; the first that initialises wins.
	Backends []BackendFactory
	// Local is the key-value store holding legacy keys and backups.
	Local kv.Store
	// Bundle and BundlePath locate the bundled schedule file.
	Bundle     fs.FS
	BundlePath string
	Bus        *events.Bus
	IDs        *idgen.Generator
	// QuotaBytes enables the storage warning when positive.
	QuotaBytes int64
	LogLimit   int
}

// DataService is the unified data-access facade.
type DataService struct {
	backend Backend
	local   kv.Store
	bus     *events.Bus
	ids     *idgen.Generator
	log     *zap.Logger

	bundle     fs.FS
	bundlePath string
	quota      int64
	logLimit   int

	migrateOnce sync.Once

	quotaMu     sync.Mutex
	quotaWarned bool
}

// Open selects the first working backend, runs migration once and
// publishes events.TopicReady.
func Open(ctx context.Context, log *zap.Logger, opts Options) (*DataService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &DataService{
		local:      opts.Local,
		bus:        opts.Bus,
		ids:        opts.IDs,
		log:        log,
		bundle:     opts.Bundle,
		bundlePath: opts.BundlePath,
		quota:      opts.QuotaBytes,
		logLimit:   opts.LogLimit,
	}
	if s.local == nil {
		s.local = kv.NewMemoryStore()
	}
	if s.ids == nil {
		s.ids = idgen.New()
	}
	if s.bundle == nil {
		s.bundle = assets.FS
	}
	if s.bundlePath == "" {
		s.bundlePath = assets.SchedulePath
	}
	if s.logLimit <= 0 {
		s.logLimit = DefaultLogLimit
	}

	var errs []error
	for _, factory := range opts.Backends {
		b, err := factory(ctx)
		if err == nil {
			err = b.Init(ctx)
			if err != nil {
				closeBackend(b, log)
			}
		}
		if err != nil {
			log.Warn("storage backend unavailable, trying next", zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.backend = b
		break
	}
	if s.backend == nil {
		return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
	}
	log.Info("storage backend selected", zap.String("backend", s.backend.Name()))

	s.Migrate(ctx)
	s.bus.Publish(events.Event{Topic: events.TopicReady, Payload: s.backend.Name()})
	return s, nil
}

// Backend returns the active backend.
func (s *DataService) Backend() Backend { return s.backend }

// Bus returns the event bus, which may be nil.
func (s *DataService) Bus() *events.Bus { return s.bus }

// StartBackground runs the active backend's periodic jobs until ctx is
// done: flushing for the flat backend, audit trimming for the SQL one.
func (s *DataService) StartBackground(ctx context.Context, flushEvery, cleanEvery time.Duration) {
	switch b := s.backend.(type) {
	case *storage.LocalStorage:
		b.StartAutoSync(ctx, flushEvery)
	case *repository.SQLStore:
		if cleanEvery > 0 {
			db.StartLogCleaner(ctx, b.DB, b.Dialect(), cleanEvery, s.logLimit, s.log)
		}
	}
}

// Close releases the active backend, flushing pending writes.
func (s *DataService) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeBackend(b Backend, log *zap.Logger) {
	if c, ok := b.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("failed to close backend", zap.Error(err))
		}
	}
}
