package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/savory/internal/auth"
	"github.com/dukerupert/savory/internal/store"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "savory_session"

// SessionToken returns the token from the session cookie or, failing that,
// from an "Authorization: Bearer" header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func resolve(r *http.Request, sessions *store.SessionStore, users *store.UserStore) (auth.AuthContext, bool) {
	token := SessionToken(r)
	if token == "" {
		return auth.AuthContext{}, false
	}
	sess, err := sessions.GetByToken(r.Context(), token)
	if err != nil || sess == nil {
		return auth.AuthContext{}, false
	}
	u, err := users.GetByID(r.Context(), sess.UserID)
	if err != nil || u == nil {
		return auth.AuthContext{}, false
	}
	return auth.AuthContext{UserID: u.ID, SessionID: sess.ID, IsSuperuser: u.IsSuperuser}, true
}

// RequireAuth rejects requests without a valid session with a JSON 401.
func RequireAuth(sessions *store.SessionStore, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := resolve(r, sessions, users)
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// OptionalAuth populates the AuthContext when a valid session is present and
// lets anonymous requests through unchanged.
func OptionalAuth(sessions *store.SessionStore, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ac, ok := resolve(r, sessions, users); ok {
				r = r.WithContext(auth.WithAuth(r.Context(), ac))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperuser must run after RequireAuth.
func RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsSuperuser(r.Context()) {
			writeError(w, http.StatusForbidden, "superuser required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
