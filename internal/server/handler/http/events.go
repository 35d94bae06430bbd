package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/atinyakov/estakaadi/internal/events"
	"go.uber.org/zap"
)

// StreamTopics are forwarded to every event stream subscriber.
var StreamTopics = []events.Topic{
	events.TopicReady,
	events.TopicDataChanged,
	events.TopicDataImported,
	events.TopicDataSync,
	events.TopicQuotaWarning,
}

// streamBuffer is how many events a slow client may lag behind before
// further events are dropped for it.
const streamBuffer = 64

// EventsHandler streams bus events to the UI as server-sent events.
type EventsHandler struct {
	Bus *events.Bus
	Log *zap.Logger
}

// Stream handles GET /api/events. Each event is written as
//
//	event: <topic>
//	data: <event json>
//
// until the client goes away.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.Bus == nil {
		http.Error(w, "events unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}

	ch := make(chan events.Event, streamBuffer)
	for _, topic := range StreamTopics {
		unsubscribe := h.Bus.Subscribe(topic, func(e events.Event) {
			select {
			case ch <- e:
			default:
				log.Warn("dropping event for slow client", zap.String("topic", string(e.Topic)))
			}
		})
		defer unsubscribe()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			b, err := json.Marshal(e)
			if err != nil {
				log.Warn("failed to encode event", zap.String("topic", string(e.Topic)), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Topic, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
