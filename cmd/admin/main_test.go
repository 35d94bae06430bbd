package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/estakaadi/internal/client"
	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	handler "github.com/atinyakov/estakaadi/internal/server/handler/http"
	"github.com/atinyakov/estakaadi/internal/service"
	"go.uber.org/zap"
)

func TestRun_ClearNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	bus := events.NewBus(nil)
	svc, err := service.Open(ctx, nil, service.Options{
		Backends: []service.BackendFactory{service.Flat(mem, nil, bus, nil)},
		Local:    mem,
		Bus:      bus,
	})
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	defer svc.Close()

	srv := httptest.NewServer(handler.NewRouter(
		&handler.DataHandler{DataService: svc},
		&handler.EventsHandler{Bus: bus},
		zap.NewNop(),
		true,
	))
	defer srv.Close()

	if _, err := svc.Add(ctx, models.Notes, models.Entity{"id": "n1"}, "admin"); err != nil {
		t.Fatalf("add: %v", err)
	}
	c := client.New(srv.URL, "admin")

	if err := run(ctx, c, "clear", "", "", models.LogFilter{}, false); err == nil {
		t.Fatal("expected clear without -yes to fail")
	}
	if got := svc.GetAll(ctx, models.Notes); len(got) != 1 {
		t.Fatalf("notes after refused clear = %d; want 1", len(got))
	}

	if err := run(ctx, c, "clear", "", "", models.LogFilter{}, true); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := svc.GetAll(ctx, models.Notes); len(got) != 0 {
		t.Errorf("notes after clear = %d; want 0", len(got))
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	c := client.New("http://127.0.0.1:0", "admin")
	if err := run(context.Background(), c, "shred", "", "", models.LogFilter{}, false); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
