// Package middleware provides HTTP middlewares for actor resolution and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const actorKey ctxKey = "actor"

// ActorHeader names the header a local UI uses to state who is acting.
const ActorHeader = "X-Actor"

// ActorAuth resolves who is performing the request and stores it in the
// request context.
//
// A verified TLS client certificate wins: its Common Name becomes the actor.
// Without one, the X-Actor header is used when trustHeader is set and
// ignored otherwise. Reads are allowed anonymously; any request that can
// change data must name an actor or it is rejected with 401.
func ActorAuth(trustHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ""
			if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
				actor = r.TLS.PeerCertificates[0].Subject.CommonName
			}
			if actor == "" && trustHeader {
				actor = strings.TrimSpace(r.Header.Get(ActorHeader))
			}
			if actor == "" && mutating(r.Method) {
				http.Error(w, "no actor provided", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// GetActorFromContext returns the actor stored by ActorAuth, or an empty
// string if there is none.
func GetActorFromContext(ctx context.Context) string {
	val := ctx.Value(actorKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
