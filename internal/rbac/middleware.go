package rbac

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/helmsman-hq/helmsman/internal/platform/httpx"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Middleware wires RBAC authorization guards for HTTP handlers.
type Middleware struct {
	Decider *Decider
	Logger  *slog.Logger
}

// RequirePermissions admits principals holding at least one of the action
// keys.
func (m Middleware) RequirePermissions(keys ...string) func(http.Handler) http.Handler {
	return m.Require(Gate{Permissions: keys})
}

// RequireRoles admits principals whose role value is in the set.
func (m Middleware) RequireRoles(values ...string) func(http.Handler) http.Handler {
	return m.Require(Gate{Roles: values})
}

// Require evaluates an arbitrary gate around the wrapped handler.
func (m Middleware) Require(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if err := m.Decider.Decide(r.Context(), principal, gate); err != nil {
				var deny *DenyError
				if !errors.As(err, &deny) && m.Logger != nil {
					m.Logger.Error("rbac decide", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
