package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// ownerKey is the context key for the request's session owner token.
const ownerKey contextKey = "owner_token"

const (
	// SessionHeader carries the owner token for API clients.
	SessionHeader = "X-Session-Token"
	// SessionCookie carries the owner token for browser clients.
	SessionCookie = "kocr_session"
)

// Session resolves the owner token for the request: header first, cookie
// second, and a freshly minted token (set as a cookie) for first contact.
// Every uploaded blob and job is scoped to this token.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(SessionHeader)
		if token == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			token = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), ownerKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFromContext extracts the session owner token from the context.
func OwnerFromContext(ctx context.Context) string {
	if v := ctx.Value(ownerKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
