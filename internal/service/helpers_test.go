package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/atinyakov/estakaadi/internal/db"
	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/atinyakov/estakaadi/internal/service"
	"github.com/stretchr/testify/require"
)

type backendCase struct {
	name    string
	factory func(t *testing.T, local kv.Store, ids *idgen.Generator, bus *events.Bus) service.BackendFactory
}

var backendCases = []backendCase{
	{
		name: "flat",
		factory: func(_ *testing.T, local kv.Store, ids *idgen.Generator, bus *events.Bus) service.BackendFactory {
			return service.Flat(local, ids, bus, nil)
		},
	},
	{
		name: "structured",
		factory: func(t *testing.T, _ kv.Store, ids *idgen.Generator, _ *events.Bus) service.BackendFactory {
			return service.Structured(db.DriverSQLite, filepath.Join(t.TempDir(), "planner.db"), ids, nil)
		},
	},
}

type env struct {
	svc   *service.DataService
	local *kv.MemoryStore
	bus   *events.Bus
	rec   *recorder
}

func newEnv(t *testing.T, bc backendCase, tweak func(*service.Options)) *env {
	t.Helper()
	local := kv.NewMemoryStore()
	return newEnvOn(t, bc, local, tweak)
}

func newEnvOn(t *testing.T, bc backendCase, local *kv.MemoryStore, tweak func(*service.Options)) *env {
	t.Helper()
	ids := idgen.New()
	bus := events.NewBus(nil)
	rec := newRecorder(bus)
	opts := service.Options{
		Backends: []service.BackendFactory{bc.factory(t, local, ids, bus)},
		Local:    local,
		Bus:      bus,
		IDs:      ids,
	}
	if tweak != nil {
		tweak(&opts)
	}
	svc, err := service.Open(context.Background(), nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return &env{svc: svc, local: local, bus: bus, rec: rec}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, bc backendCase)) {
	for _, bc := range backendCases {
		t.Run(bc.name, func(t *testing.T) { fn(t, bc) })
	}
}

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newRecorder(bus *events.Bus) *recorder {
	r := &recorder{}
	for _, topic := range []events.Topic{
		events.TopicReady, events.TopicDataChanged, events.TopicDataImported,
		events.TopicDataSync, events.TopicQuotaWarning,
	} {
		bus.Subscribe(topic, r.add)
	}
	return r
}

func (r *recorder) add(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) topic(topic events.Topic) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func ids(items []models.Entity) []string {
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, e.ID())
	}
	return out
}

func logsWithAction(t *testing.T, svc *service.DataService, action string) []models.LogEntry {
	t.Helper()
	logs, err := svc.Logs(context.Background(), models.LogFilter{Action: action})
	require.NoError(t, err)
	return logs
}

// failingLogs wraps a backend whose audit log cannot be written.
type failingLogs struct {
	service.Backend
}

func (failingLogs) AppendLog(context.Context, models.LogEntry, int) error {
	return errors.New("log store full")
}

// brokenBackend fails to initialise.
type brokenBackend struct {
	service.Backend
	closed bool
}

func (b *brokenBackend) Name() string               { return "broken" }
func (b *brokenBackend) Init(context.Context) error { return errors.New("init failed") }
func (b *brokenBackend) Close() error               { b.closed = true; return nil }
