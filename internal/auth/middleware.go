package auth

import (
	"context"
	"net/http"
)

type contextKey struct{}

var sessionKey contextKey

func WithSession(ctx context.Context, payload SessionPayload) context.Context {
	return context.WithValue(ctx, sessionKey, payload)
}

// SessionFromContext reports the authenticated user, if any. Anonymous is a
// normal branch, never an error.
func SessionFromContext(ctx context.Context) (SessionPayload, bool) {
	payload, ok := ctx.Value(sessionKey).(SessionPayload)
	return payload, ok
}

// SessionMiddleware resolves the session cookie into the request context.
// It never rejects: downstream handlers decide what anonymous means for them.
func SessionMiddleware(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if payload, ok := sessions.FromRequest(r); ok {
				r = r.WithContext(WithSession(r.Context(), payload))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession guards API routes: anonymous requests get a 401 JSON body.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RedirectIfAnonymous guards page routes: anonymous requests are sent to the
// login page instead of receiving an error.
func RedirectIfAnonymous(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); !ok {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectIfAuthenticated keeps logged-in users off the login page, avoiding
// a re-login loop.
func RedirectIfAuthenticated(homePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); ok {
				http.Redirect(w, r, homePath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
