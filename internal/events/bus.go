// Package events is the in-process publish/subscribe bus the data service
// uses to announce changes.
package events

import (
	"sort"
	"sync"

	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

// Topic names a class of events.
type Topic string

const (
	// TopicReady fires once the data service has a backend and migration ran.
	TopicReady Topic = "ready"
	// TopicDataChanged fires after every successful mutation.
	TopicDataChanged Topic = "dataChanged"
	// TopicDataImported fires after an import replaced the data set.
	TopicDataImported Topic = "dataImported"
	// TopicDataSync fires when another tab's write replaced local state.
	TopicDataSync Topic = "dataSync"
	// TopicQuotaWarning fires when storage use crosses the warning level.
	TopicQuotaWarning Topic = "quotaWarning"
)

// Event is one notification. Action and Kind are set for data changes.
type Event struct {
	Topic   Topic       `json:"topic"`
	Action  string      `json:"action,omitempty"`
	Kind    models.Kind `json:"kind,omitempty"`
	Payload any         `json:"payload,omitempty"`
}

// Handler receives events for a subscribed topic.
type Handler func(Event)

// Bus delivers events synchronously to subscribers. A panicking subscriber
// is logged and skipped; it never stops delivery to the others or fails
// the publisher.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	next int
	subs map[Topic]map[int]Handler
}

// NewBus creates a Bus. log may be nil.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log, subs: make(map[Topic]map[int]Handler)}
}

// Subscribe registers h for topic and returns a function removing it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers e to every subscriber of e.Topic in subscription order.
// Publishing on a nil Bus is a no-op.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	ids := make([]int, 0, len(b.subs[e.Topic]))
	for id := range b.subs[e.Topic] {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subs[e.Topic][id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event subscriber panicked",
				zap.String("topic", string(e.Topic)),
				zap.Any("panic", r),
			)
		}
	}()
	h(e)
}
