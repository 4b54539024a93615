package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/helmsman-hq/helmsman/internal/admins"
	"github.com/helmsman-hq/helmsman/internal/auth"
	"github.com/helmsman-hq/helmsman/internal/observability"
	"github.com/helmsman-hq/helmsman/internal/permissions"
	"github.com/helmsman-hq/helmsman/internal/roles"
	"github.com/helmsman-hq/helmsman/internal/settings"
	"github.com/helmsman-hq/helmsman/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Tokens             *auth.TokenManager
	AuthHandler        *auth.Handler
	AdminsHandler      *admins.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	SettingsHandler    *settings.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Helmsman defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Tokens:  params.Tokens,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.AdminsHandler != nil {
		r.Route("/admins", params.AdminsHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.SettingsHandler != nil {
		r.Route("/settings", params.SettingsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
