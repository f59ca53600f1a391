package httpx

import (
	"context"
	"net/http"
	"strings"
)

// Middleware wraps an http.Handler with extra behaviour.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to h in declaration order: the first middleware
// is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Authenticator resolves a bearer token to an identity. Implemented by the
// identity provider; kept as a local interface so this package stays free of
// service dependencies.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (subject, email string, err error)
}

// RequireAuth rejects requests without a valid Authorization bearer token
// and injects the resolved identity into the request context.
func RequireAuth(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthorized",
					"error_description": "Authentication required",
				})
				return
			}

			subject, email, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthorized",
					"error_description": "Invalid or expired session",
				})
				return
			}

			ctx := context.WithValue(r.Context(), CtxKeyIdentityID, subject)
			ctx = context.WithValue(ctx, CtxKeyEmail, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
