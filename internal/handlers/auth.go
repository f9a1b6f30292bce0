package handlers

import (
	"net/http"
	"strings"

	"github.com/tanamarket/tana/internal/auth"
)

// RequireAuth validates the bearer token and stores the caller's identity in
// the request context.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "authorization required")
			return
		}

		identity, err := auth.ParseToken(h.config.JWTSecret, token)
		if err != nil {
			h.loggerFromContext(r.Context()).Warn("rejected bearer token", "error", err)
			writeMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireStaff rejects callers without the manager or admin role. It must
// run after RequireAuth.
func (h *Handlers) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.FromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "authorization required")
			return
		}
		if !identity.IsStaff() {
			writeMessage(w, http.StatusForbidden, "staff role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identity pulls the authenticated caller out of the context. Routes behind
// RequireAuth always have one; the false case is a wiring bug.
func (h *Handlers) identity(r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Identity{}, false
	}
	return *id, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
