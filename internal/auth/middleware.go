package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"anonuplift/internal/apperr"
)

type ctxKey string

const sessionKey ctxKey = "session"

// ErrorWriter renders an error response; the http layer supplies it so every
// rejection uses the same JSON envelope.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// OwnerIDFromContext returns the authenticated owner id.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	return s.OwnerID, ok && s.OwnerID != ""
}

// WithSession is used by tests and by RequireAuth.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func RequireAuth(jwtSvc *JWT, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				fail(w, r, apperr.Unauthorized("Unauthorized"))
				return
			}

			s, err := jwtSvc.Verify(token)
			if err != nil {
				fail(w, r, apperr.Unauthorized("Unauthorized"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequireAdmin checks the static admin token. An empty token rejects every
// request.
func RequireAdmin(adminToken string, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				fail(w, r, apperr.Unauthorized("Unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
