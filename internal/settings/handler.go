package settings

import (
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helmsman-hq/helmsman/internal/platform/httpx"
	"github.com/helmsman-hq/helmsman/internal/rbac"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Handler manages setting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers setting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequirePermissions(shared.PermSettingsCreate)).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermSettingsView))
		r.Get("/", h.list)
		r.Get("/by-module/{module}", h.listByModule)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.RequirePermissions(shared.PermSettingsUpdate)).Patch("/{id}", h.update)
	r.With(h.rbac.RequirePermissions(shared.PermSettingsDelete)).Delete("/{id}", h.remove)
}

type createRequest struct {
	Module string `json:"module" validate:"required,oneof=app dashboard"`
	Key    string `json:"key" validate:"required,min=3,max=100"`
	Value  string `json:"value" validate:"required,min=3,max=100"`
}

type updateRequest struct {
	Module *string `json:"module" validate:"omitempty,oneof=app dashboard"`
	Key    *string `json:"key" validate:"omitempty,min=3,max=100"`
	Value  *string `json:"value" validate:"omitempty,min=3,max=100"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), shared.PrincipalFromContext(r.Context()), CreateInput{
		Module: req.Module,
		Key:    req.Key,
		Value:  req.Value,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listByModule(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListByModule(r.Context(), chi.URLParam(r, "module"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	setting, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, setting)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), shared.PrincipalFromContext(r.Context()), id, UpdateInput{
		Module: req.Module,
		Key:    req.Key,
		Value:  req.Value,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Remove(r.Context(), shared.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}
