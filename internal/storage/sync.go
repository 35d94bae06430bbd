package storage

import (
	"context"
	"time"

	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

// DefaultSyncInterval is how often StartAutoSync retries unsaved changes.
const DefaultSyncInterval = 30 * time.Second

// StartAutoSync flushes unsaved changes every interval until ctx is done
// or the storage is closed. Writes normally go through immediately; this
// catches up after a failed write, for example once quota is freed.
func (ls *LocalStorage) StartAutoSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ls.closed:
				return
			case <-ticker.C:
				if err := ls.Flush(); err != nil {
					ls.log.Warn("auto sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// onChange runs on the writer's goroutine, so it only records the newest
// value and wakes applyRemoteLoop. Older pending values are superseded.
func (ls *LocalStorage) onChange(c kv.Change) {
	if c.Key != StorageKey || c.Value == nil {
		return
	}
	ls.pendingMu.Lock()
	ls.pending = c.Value
	ls.pendingMu.Unlock()

	select {
	case ls.remote <- struct{}{}:
	default:
	}
}

func (ls *LocalStorage) applyRemoteLoop() {
	defer ls.wg.Done()
	for {
		select {
		case <-ls.closed:
			return
		case <-ls.remote:
			ls.pendingMu.Lock()
			raw := ls.pending
			ls.pending = nil
			ls.pendingMu.Unlock()
			if raw != nil {
				ls.applyRemote(raw)
			}
		}
	}
}

// applyRemote replaces the in-memory document with one written by another
// tab. The last writer wins; nothing is merged.
func (ls *LocalStorage) applyRemote(raw []byte) {
	doc, err := models.DecodeDocument(raw)
	if err != nil {
		ls.log.Error("ignoring unreadable document from another tab", zap.Error(err))
		return
	}
	ls.mu.Lock()
	ls.doc = doc
	ls.dirty = false
	ls.flushErr = nil
	ls.mu.Unlock()

	ls.log.Debug("document replaced by another tab", zap.String("lastUpdated", doc.LastUpdated))
	ls.bus.Publish(events.Event{Topic: events.TopicDataSync, Payload: doc.LastUpdated})
}
