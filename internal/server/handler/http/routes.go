package http

import (
	"net"
	"net/http"

	"github.com/atinyakov/estakaadi/internal/middleware"
	"github.com/atinyakov/estakaadi/internal/service"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler serving the planner API.
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") rejects non-JSON bodies
//  2. WithRequestLogging(logger) logs each request
//  3. ActorAuth resolves the acting user; writes require one. The X-Actor
//     header counts only when trustActorHeader is set
//  4. withClientAddress records the caller address for the audit log
//
// Routes:
//
//	DELETE /api/collections                     clear every collection
//	GET    /api/collections/{kind}              list, ?q=&fields= search, ?index=&value= lookup
//	POST   /api/collections/{kind}              add
//	PUT    /api/collections/{kind}              save (update when the body has an id)
//	GET    /api/collections/{kind}/{id}         get
//	PATCH  /api/collections/{kind}/{id}         update
//	DELETE /api/collections/{kind}/{id}         delete
//	GET    /api/export                          export document download
//	POST   /api/import                          replace everything from a document
//	GET    /api/stats                           storage statistics
//	GET    /api/logs                            audit log, ?actor=&action=&limit=
//	GET    /api/backups                         pre-import snapshots
//	POST   /api/backups/{key}/restore           restore a snapshot
//	GET    /api/events                          server-sent change events
func NewRouter(
	dataHandler *DataHandler,
	eventsHandler *EventsHandler,
	logger *zap.Logger,
	trustActorHeader bool,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.ActorAuth(trustActorHeader))
	r.Use(withClientAddress)

	r.Route("/api", func(r chi.Router) {
		r.Delete("/collections", dataHandler.Clear)
		r.Route("/collections/{kind}", func(r chi.Router) {
			r.Get("/", dataHandler.List)
			r.Post("/", dataHandler.Create)
			r.Put("/", dataHandler.Save)
			r.Get("/{id}", dataHandler.Get)
			r.Patch("/{id}", dataHandler.Update)
			r.Delete("/{id}", dataHandler.Delete)
		})

		r.Get("/export", dataHandler.Export)
		r.Post("/import", dataHandler.Import)
		r.Get("/stats", dataHandler.Stats)
		r.Get("/logs", dataHandler.Logs)
		r.Get("/backups", dataHandler.Backups)
		r.Post("/backups/{key}/restore", dataHandler.Restore)

		r.Get("/events", eventsHandler.Stream)
	})

	return r
}

func withClientAddress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(service.WithIPAddress(r.Context(), ip)))
	})
}
