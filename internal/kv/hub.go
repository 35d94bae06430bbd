package kv

import (
	"sync"

	"go.uber.org/zap"
)

// Change describes a write observed through another Tab. Value is nil
// when the key was removed.
type Change struct {
	Key   string
	Value []byte
}

// Hub shares one Store between several Tabs. A write through one Tab is
// announced to the watchers of every other Tab, mirroring how browser tabs
// see each other's storage writes.
type Hub struct {
	store Store
	log   *zap.Logger

	mu       sync.Mutex
	nextTab  int
	nextW    int
	watchers map[int]watcher
}

type watcher struct {
	tab int
	fn  func(Change)
}

// NewHub wraps store. log may be nil.
func NewHub(store Store, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{store: store, log: log, watchers: make(map[int]watcher)}
}

// Open returns a new Tab on the shared store.
func (h *Hub) Open() *Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextTab++
	return &Tab{hub: h, id: h.nextTab}
}

func (h *Hub) broadcast(from int, c Change) {
	h.mu.Lock()
	targets := make([]func(Change), 0, len(h.watchers))
	for _, w := range h.watchers {
		if w.tab != from {
			targets = append(targets, w.fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range targets {
		h.deliver(fn, c)
	}
}

func (h *Hub) deliver(fn func(Change), c Change) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("kv watcher panicked", zap.String("key", c.Key), zap.Any("panic", r))
		}
	}()
	fn(c)
}

// Tab is one handle on a Hub. It implements Store.
type Tab struct {
	hub *Hub
	id  int
}

func (t *Tab) Get(key string) ([]byte, error) { return t.hub.store.Get(key) }

func (t *Tab) Keys() ([]string, error) { return t.hub.store.Keys() }

func (t *Tab) Set(key string, value []byte) error {
	if err := t.hub.store.Set(key, value); err != nil {
		return err
	}
	t.hub.broadcast(t.id, Change{Key: key, Value: append([]byte(nil), value...)})
	return nil
}

func (t *Tab) Remove(key string) error {
	if err := t.hub.store.Remove(key); err != nil {
		return err
	}
	t.hub.broadcast(t.id, Change{Key: key})
	return nil
}

// Watch registers fn for writes made through other Tabs. The returned
// function unregisters it.
func (t *Tab) Watch(fn func(Change)) func() {
	h := t.hub
	h.mu.Lock()
	h.nextW++
	id := h.nextW
	h.watchers[id] = watcher{tab: t.id, fn: fn}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}
}
