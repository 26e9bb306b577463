// Package middleware provides HTTP middleware that attaches per-visitor state to requests.
package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jonathan/internship-compass/internal/session"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const (
	sessionKey    ContextKey = "session"
	newSessionKey ContextKey = "newSession"
)

// SessionCookieName is the cookie carrying the session ID.
const SessionCookieName = "compass_session"

// SessionStore finds or starts sessions. *session.Manager implements it.
type SessionStore interface {
	Get(id string) (*session.Session, bool)
	GetOrCreate(id string) (*session.Session, bool, error)
}

// SessionMiddleware resolves the visitor's session from its cookie, starting
// a new one when the cookie is missing or the session has expired.
func SessionMiddleware(store SessionStore, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(SessionCookieName); err == nil {
				id = c.Value
			}

			s, created, err := store.GetOrCreate(id)
			if err != nil {
				log.Printf("[session] failed to start session: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    s.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionKey, s)
			ctx = context.WithValue(ctx, newSessionKey, created)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSessionMiddleware attaches the visitor's session when the cookie
// names a live one. It never starts a session.
func OptionalSessionMiddleware(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if s, ok := store.Get(c.Value); ok {
					r = r.WithContext(WithSession(r.Context(), s, false))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSession extracts the visitor's session from the request context.
func GetSession(r *http.Request) (*session.Session, error) {
	s, ok := r.Context().Value(sessionKey).(*session.Session)
	if !ok || s == nil {
		return nil, fmt.Errorf("session not found in request context")
	}
	return s, nil
}

// IsNewSession reports whether the session was started by this request.
func IsNewSession(r *http.Request) bool {
	created, _ := r.Context().Value(newSessionKey).(bool)
	return created
}

// WithSession returns a copy of ctx carrying s (for testing purposes).
func WithSession(ctx context.Context, s *session.Session, created bool) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	return context.WithValue(ctx, newSessionKey, created)
}
