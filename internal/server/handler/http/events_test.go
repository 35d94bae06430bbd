package http_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/models"
	handler "github.com/atinyakov/estakaadi/internal/server/handler/http"
	"go.uber.org/zap"
)

func TestEventsHandler_NoBus(t *testing.T) {
	h := &handler.EventsHandler{}
	w := httptest.NewRecorder()
	h.Stream(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestEventsHandler_Stream(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	router := handler.NewRouter(
		&handler.DataHandler{DataService: &fakeDataService{}},
		&handler.EventsHandler{Bus: bus, Log: zap.NewNop()},
		zap.NewNop(),
		true,
	)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q; want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, err = %v", line, err)
	}
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read separator: %v", err)
	}

	bus.Publish(events.Event{Topic: events.TopicDataChanged, Action: "add", Kind: models.Notes})

	eventLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read event line: %v", err)
	}
	if eventLine != "event: dataChanged\n" {
		t.Errorf("event line = %q", eventLine)
	}
	dataLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read data line: %v", err)
	}
	var got events.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &got); err != nil {
		t.Fatalf("decode data %q: %v", dataLine, err)
	}
	if got.Action != "add" || got.Kind != models.Notes {
		t.Errorf("event = %+v", got)
	}
}
