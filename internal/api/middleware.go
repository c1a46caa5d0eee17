// Package api implements the Mnemo REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/mnemo/internal/noteservice"
)

type ctxKey int

const sessionKey ctxKey = iota

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
// If enabled is true, requests must carry a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserMiddleware resolves the acting user from the X-User-ID header and
// stores the session on the request context. Every data route requires it:
// cache partitions are keyed by user and there is no anonymous partition.
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing X-User-ID header"))
			return
		}
		sess := noteservice.Session{UserID: userID}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// session returns the Session placed by UserMiddleware.
func session(r *http.Request) noteservice.Session {
	sess, _ := r.Context().Value(sessionKey).(noteservice.Session)
	return sess
}
