// Package http exposes the data service to the planner UI over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/middleware"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/atinyakov/estakaadi/internal/service"
	"github.com/go-chi/chi/v5"
)

// MaxImportBytes bounds the body of an import request.
const MaxImportBytes = 64 << 20

// DataService defines the data operations required by the DataHandler.
type DataService interface {
	GetAll(ctx context.Context, kind models.Kind) []models.Entity
	Get(ctx context.Context, kind models.Kind, id string) (models.Entity, error)
	Add(ctx context.Context, kind models.Kind, e models.Entity, actor string) (string, error)
	Save(ctx context.Context, kind models.Kind, e models.Entity, actor string) (string, error)
	Update(ctx context.Context, kind models.Kind, id string, patch models.Entity, actor string) (models.Entity, error)
	Delete(ctx context.Context, kind models.Kind, id, actor string) (bool, error)
	Search(ctx context.Context, kind models.Kind, query string, fields []string) []models.Entity
	FindBy(ctx context.Context, kind models.Kind, index, value string) ([]models.Entity, error)

	Export(ctx context.Context, actor string) (*models.ExportDocument, error)
	Import(ctx context.Context, raw []byte, actor string) error
	Backups(ctx context.Context) ([]service.Backup, error)
	RestoreBackup(ctx context.Context, key, actor string) error
	Clear(ctx context.Context, actor string) error

	Stats(ctx context.Context) (models.Stats, error)
	Logs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, error)
}

// DataHandler handles the collection, transfer and reporting endpoints.
type DataHandler struct {
	DataService DataService
	// AppName names export downloads; models.AppName when empty.
	AppName string
}

// List handles GET /api/collections/{kind}. With q it searches the given
// comma separated fields, with index and value it queries a secondary
// index, otherwise it returns the whole collection.
func (h *DataHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	var items []models.Entity
	switch {
	case q.Has("index"):
		var err error
		items, err = h.DataService.FindBy(ctx, kind, q.Get("index"), q.Get("value"))
		if err != nil {
			writeError(w, err)
			return
		}
	case q.Has("q"):
		var fields []string
		if f := q.Get("fields"); f != "" {
			fields = strings.Split(f, ",")
		}
		items = h.DataService.Search(ctx, kind, q.Get("q"), fields)
	default:
		items = h.DataService.GetAll(ctx, kind)
	}
	writeJSON(w, http.StatusOK, items)
}

// Create handles POST /api/collections/{kind}.
func (h *DataHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.store(w, r, h.DataService.Add, http.StatusCreated)
}

// Save handles PUT /api/collections/{kind}: an entity with an id is
// updated, one without is added.
func (h *DataHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.store(w, r, h.DataService.Save, http.StatusOK)
}

func (h *DataHandler) store(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, models.Kind, models.Entity, string) (string, error),
	status int,
) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	e, ok := decodeEntity(w, r)
	if !ok {
		return
	}
	id, err := op(r.Context(), kind, e, middleware.GetActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, map[string]string{"id": id})
}

// Get handles GET /api/collections/{kind}/{id}.
func (h *DataHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	e, err := h.DataService.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Update handles PATCH /api/collections/{kind}/{id} and returns the merged
// entity.
func (h *DataHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	patch, ok := decodeEntity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	e, err := h.DataService.Update(ctx, kind, chi.URLParam(r, "id"), patch, middleware.GetActorFromContext(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Delete handles DELETE /api/collections/{kind}/{id}. Deleting a missing
// entity is not an error; the response says whether anything was removed.
func (h *DataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	deleted, err := h.DataService.Delete(ctx, kind, chi.URLParam(r, "id"), middleware.GetActorFromContext(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// Export handles GET /api/export and serves the export document as a
// file download.
func (h *DataHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.DataService.Export(ctx, middleware.GetActorFromContext(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := idgen.Parse(doc.ExportedAt)
	if err != nil {
		at = time.Now()
	}
	app := h.AppName
	if app == "" {
		app = models.AppName
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", models.BackupFileName(app, at)))
	writeJSON(w, http.StatusOK, doc)
}

// Import handles POST /api/import. The body is an export document or a
// flat document; it replaces every collection.
func (h *DataHandler) Import(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if err := h.DataService.Import(ctx, raw, middleware.GetActorFromContext(ctx)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/stats.
func (h *DataHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.DataService.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Logs handles GET /api/logs?actor=&action=&limit=.
func (h *DataHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.LogFilter{Actor: q.Get("actor"), Action: q.Get("action")}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	entries, err := h.DataService.Logs(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Backups handles GET /api/backups.
func (h *DataHandler) Backups(w http.ResponseWriter, r *http.Request) {
	list, err := h.DataService.Backups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Restore handles POST /api/backups/{key}/restore.
func (h *DataHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.DataService.RestoreBackup(ctx, chi.URLParam(r, "key"), middleware.GetActorFromContext(ctx)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/collections: every collection is emptied
// after a backup is taken.
func (h *DataHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.DataService.Clear(ctx, middleware.GetActorFromContext(ctx)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func kindParam(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return kind, true
}

func decodeEntity(w http.ResponseWriter, r *http.Request) (models.Entity, bool) {
	var e models.Entity
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil || e == nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return nil, false
	}
	return e, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrUnknownKind),
		errors.Is(err, models.ErrUnknownIndex),
		errors.Is(err, models.ErrMalformedDocument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrDuplicateID):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
