// Package storage implements the flat-document backend: the whole data set
// lives in one JSON document held in memory and mirrored to a key-value
// store on every mutation.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

// StorageKey is the key-value entry holding the document.
const StorageKey = "estakaadi_data"

// BackendName identifies this backend in stats and logs.
const BackendName = "flat"

// Watcher is implemented by stores that report writes made through other
// handles, such as kv.Tab.
type Watcher interface {
	Watch(fn func(kv.Change)) func()
}

// LocalStorage is the flat-document backend.
type LocalStorage struct {
	store kv.Store
	ids   *idgen.Generator
	bus   *events.Bus
	log   *zap.Logger

	mu       sync.Mutex
	doc      *models.Document
	dirty    bool
	flushErr error

	pendingMu sync.Mutex
	pending   []byte
	remote    chan struct{}

	unwatch   func()
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLocalStorage creates a backend over store. bus and log may be nil.
func NewLocalStorage(store kv.Store, ids *idgen.Generator, bus *events.Bus, log *zap.Logger) *LocalStorage {
	if log == nil {
		log = zap.NewNop()
	}
	if ids == nil {
		ids = idgen.New()
	}
	return &LocalStorage{
		store:  store,
		ids:    ids,
		bus:    bus,
		log:    log,
		remote: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Name returns BackendName.
func (ls *LocalStorage) Name() string { return BackendName }

// LoadDocument reads the document stored in store. It returns nil without
// error when nothing has been stored yet.
func LoadDocument(store kv.Store) (*models.Document, error) {
	raw, err := store.Get(StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", StorageKey, err)
	}
	return models.DecodeDocument(raw)
}

// Init loads the document, creating an empty one when the store holds
// none, and starts listening for writes from other tabs. A store that
// cannot be read makes Init fail.
func (ls *LocalStorage) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ls.store == nil {
		return fmt.Errorf("init flat storage: no key-value store")
	}

	raw, err := ls.store.Get(StorageKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("init flat storage: read %s: %w", StorageKey, err)
	}

	ls.mu.Lock()
	var doc *models.Document
	if err == nil {
		doc, err = models.DecodeDocument(raw)
		if err != nil {
			ls.quarantineLocked(raw, err)
		}
	}
	if doc == nil {
		ls.doc = models.NewDocument(ls.ids.Stamp())
		ls.dirty = true
		ls.persistLocked()
		ls.log.Info("empty flat document initialised")
	} else {
		ls.doc = doc
		ls.log.Info("flat document loaded", zap.String("lastUpdated", doc.LastUpdated))
	}
	ls.mu.Unlock()

	if w, ok := ls.store.(Watcher); ok {
		ls.unwatch = w.Watch(ls.onChange)
	}

	ls.wg.Add(1)
	go ls.applyRemoteLoop()
	return nil
}

// quarantineLocked keeps an undecodable document under a side key before
// it is replaced. ls.mu must be held.
func (ls *LocalStorage) quarantineLocked(raw []byte, cause error) {
	key := StorageKey + "_corrupt_" + strconv.FormatInt(ls.ids.Time().UnixMilli(), 10)
	if err := ls.store.Set(key, raw); err != nil {
		ls.log.Warn("failed to keep corrupt document", zap.Error(err))
		return
	}
	ls.log.Warn("stored document unreadable, kept aside", zap.String("key", key), zap.Error(cause))
}

// GetAll returns copies of every entity of kind in document order.
func (ls *LocalStorage) GetAll(ctx context.Context, kind models.Kind) ([]models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sec, err := ls.sectionLocked(kind)
	if err != nil {
		return nil, err
	}
	out := make([]models.Entity, len(sec.Data))
	for i, e := range sec.Data {
		out[i] = e.Clone()
	}
	return out, nil
}

// Get returns a copy of one entity or models.ErrNotFound.
func (ls *LocalStorage) Get(ctx context.Context, kind models.Kind, id string) (models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sec, err := ls.sectionLocked(kind)
	if err != nil {
		return nil, err
	}
	if i := indexOf(sec.Data, id); i >= 0 {
		return sec.Data[i].Clone(), nil
	}
	return nil, models.ErrNotFound
}

// Insert appends e to kind. e must already carry its id, and the id must
// not be taken yet.
func (ls *LocalStorage) Insert(ctx context.Context, kind models.Kind, e models.Entity, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sec, err := ls.sectionLocked(kind)
	if err != nil {
		return err
	}
	if indexOf(sec.Data, e.ID()) >= 0 {
		return fmt.Errorf("insert %s/%s: %w", kind, e.ID(), models.ErrDuplicateID)
	}
	sec.Data = append(sec.Data, e.Clone())
	ls.touchLocked(sec, actor)
	return nil
}

// Update overlays patch onto the entity with id and returns the result.
func (ls *LocalStorage) Update(ctx context.Context, kind models.Kind, id string, patch models.Entity, actor string) (models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sec, err := ls.sectionLocked(kind)
	if err != nil {
		return nil, err
	}
	i := indexOf(sec.Data, id)
	if i < 0 {
		return nil, models.ErrNotFound
	}
	updated := models.Merge(sec.Data[i], patch)
	sec.Data[i] = updated
	ls.touchLocked(sec, actor)
	return updated.Clone(), nil
}

// Delete removes every entity with id and reports whether any existed.
func (ls *LocalStorage) Delete(ctx context.Context, kind models.Kind, id string, actor string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sec, err := ls.sectionLocked(kind)
	if err != nil {
		return false, err
	}
	kept := sec.Data[:0]
	for _, e := range sec.Data {
		if e.ID() != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(sec.Data) {
		return false, nil
	}
	clear(sec.Data[len(kept):])
	sec.Data = kept
	ls.touchLocked(sec, actor)
	return true, nil
}

// FindBy returns entities whose indexed field equals value.
func (ls *LocalStorage) FindBy(ctx context.Context, kind models.Kind, index, value string) ([]models.Entity, error) {
	ix, err := models.LookupIndex(kind, index)
	if err != nil {
		return nil, err
	}
	all, err := ls.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]models.Entity, 0)
	for _, e := range all {
		if models.IndexValue(kind, ix, e) == value {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReplaceAll swaps every collection for the contents of data. Kinds
// missing from data end up empty. Duplicate ids within a kind are rejected
// before anything changes.
func (ls *LocalStorage) ReplaceAll(ctx context.Context, data map[models.Kind][]models.Entity, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := models.CheckUniqueIDs(data); err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.doc == nil {
		return fmt.Errorf("flat storage not initialised")
	}
	for _, k := range models.AllKinds {
		sec := ls.doc.Section(k)
		items := make([]models.Entity, 0, len(data[k]))
		for _, e := range data[k] {
			items = append(items, e.Clone())
		}
		sec.Data = items
		ls.stampLocked(sec, actor)
	}
	ls.persistLocked()
	return nil
}

// AppendLog records entry and keeps only the newest limit entries.
func (ls *LocalStorage) AppendLog(ctx context.Context, entry models.LogEntry, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sec, err := ls.sectionLocked(models.Logs)
	if err != nil {
		return err
	}
	logs := append([]models.Entity{entry.Entity()}, sec.Data...)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Text("timestamp") > logs[j].Text("timestamp")
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	sec.Data = logs
	ls.touchLocked(sec, entry.Actor)
	return nil
}

// Count returns the number of entities of kind.
func (ls *LocalStorage) Count(ctx context.Context, kind models.Kind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	sec, err := ls.sectionLocked(kind)
	if err != nil {
		return 0, err
	}
	return len(sec.Data), nil
}

// Stats reports item counts and JSON sizes per collection.
func (ls *LocalStorage) Stats(ctx context.Context) (models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return models.Stats{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.doc == nil {
		return models.Stats{}, fmt.Errorf("flat storage not initialised")
	}
	total, err := json.Marshal(ls.doc)
	if err != nil {
		return models.Stats{}, fmt.Errorf("measure document: %w", err)
	}

	st := models.Stats{
		Backend:       BackendName,
		TotalSize:     int64(len(total)),
		FormattedSize: models.FormatSize(int64(len(total))),
		LastUpdated:   ls.doc.LastUpdated,
		Version:       ls.doc.Version,
	}
	for _, k := range models.AllKinds {
		sec := ls.doc.Section(k)
		b, err := json.Marshal(sec)
		if err != nil {
			return models.Stats{}, fmt.Errorf("measure %s: %w", k, err)
		}
		st.Sections = append(st.Sections, models.KindStats{
			Name:          k,
			ItemCount:     len(sec.Data),
			Size:          int64(len(b)),
			FormattedSize: models.FormatSize(int64(len(b))),
		})
		st.TotalItems += len(sec.Data)
	}
	return st, nil
}

// LastFlushError returns the error of the most recent failed write to the
// key-value store, or nil once a write succeeded again.
func (ls *LocalStorage) LastFlushError() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.flushErr
}

// Flush writes the document to the key-value store if it has unsaved
// changes.
func (ls *LocalStorage) Flush() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.doc == nil || !ls.dirty {
		return nil
	}
	ls.persistLocked()
	return ls.flushErr
}

// Close stops background work and makes a final best-effort flush.
func (ls *LocalStorage) Close() error {
	ls.closeOnce.Do(func() {
		if ls.unwatch != nil {
			ls.unwatch()
		}
		close(ls.closed)
	})
	ls.wg.Wait()
	return ls.Flush()
}

func (ls *LocalStorage) sectionLocked(kind models.Kind) (*models.Section, error) {
	if ls.doc == nil {
		return nil, fmt.Errorf("flat storage not initialised")
	}
	sec := ls.doc.Section(kind)
	if sec == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return sec, nil
}

// touchLocked stamps sec and the document root, then writes through.
func (ls *LocalStorage) touchLocked(sec *models.Section, actor string) {
	ls.stampLocked(sec, actor)
	ls.persistLocked()
}

func (ls *LocalStorage) stampLocked(sec *models.Section, actor string) {
	now := ls.ids.Stamp()
	sec.LastModified = now
	sec.ModifiedBy = actor
	ls.doc.LastUpdated = now
	ls.dirty = true
}

// persistLocked writes the document. Failures are logged and remembered,
// never returned: the in-memory document stays authoritative.
func (ls *LocalStorage) persistLocked() {
	raw, err := json.Marshal(ls.doc)
	if err == nil {
		err = ls.store.Set(StorageKey, raw)
	}
	if err != nil {
		ls.flushErr = err
		ls.log.Warn("failed to persist flat document, continuing in memory", zap.Error(err))
		return
	}
	ls.flushErr = nil
	ls.dirty = false
}

func indexOf(items []models.Entity, id string) int {
	for i, e := range items {
		if e.ID() == id {
			return i
		}
	}
	return -1
}
