package auth

import (
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/helmsman-hq/helmsman/internal/shared"
)

// BearerToken extracts the token from an Authorization header. Empty when
// the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Principal resolves the bearer token and stores the principal in the
// request context. Requests without a valid token pass through
// unauthenticated; gates downstream reject them.
func Principal(tokens *TokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := tokens.Resolve(r.Context(), token)
			if err != nil {
				if logger != nil && !isUnauthorized(err) {
					logger.Warn("resolve bearer token", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func isUnauthorized(err error) bool {
	return errors.Is(err, shared.ErrUnauthorized)
}
