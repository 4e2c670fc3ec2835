package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// RequireToken admits requests carrying "Authorization: Bearer <token>".
// An empty token rejects everything.
func RequireToken(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="medq-admin"`)
				writeErrorBody(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "admin credentials required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// noStore marks admin responses as never cacheable.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
