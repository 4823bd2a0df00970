package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/sercop/facilitador-api/internal/httputil"
	"github.com/sercop/facilitador-api/internal/logging"
	"github.com/sercop/facilitador-api/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const IdentityContextKey ContextKey = "identity"

// Middleware handles authentication for protected routes
type Middleware struct {
	service *Service
}

func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequireAuth resolves the bearer token and rejects requests that carry no
// live session.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.service.Me(r.Context(), ExtractBearer(r.Header.Get("Authorization")))
		if err != nil {
			switch {
			case errors.Is(err, ErrMissingToken):
				httputil.RespondErrorWithCode(w, msgMissingToken, httputil.CodeMissingAuth, http.StatusUnauthorized)
			case errors.Is(err, ErrInvalidToken):
				httputil.RespondErrorWithCode(w, msgInvalidToken, httputil.CodeInvalidToken, http.StatusUnauthorized)
			default:
				logging.GetLoggerFromContext(r.Context()).Error("failed to resolve session", "error", err.Error())
				httputil.RespondErrorWithCode(w, msgInternal, httputil.CodeInternalError, http.StatusInternalServerError)
			}
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentityFromContext extracts the authenticated identity from the request context
func GetIdentityFromContext(ctx context.Context) (user.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(user.Identity)
	return identity, ok
}
