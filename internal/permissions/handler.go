package permissions

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

// Handler manages permission endpoints.
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

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.Gate{
		Roles:       []string{shared.RoleSuperadmin},
		Permissions: []string{shared.PermPermissionsCreate},
	})).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(shared.RoleSuperadmin))
		r.Delete("/{id}", h.remove)
		r.Patch("/restore/{id}", h.restore)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(shared.RoleSuperadmin, shared.RoleAdmin))
		r.Get("/", h.list)
		r.Get("/grouped", h.listGrouped)
		r.Get("/soft-removed", h.listSoftRemoved)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Delete("/soft-remove/{id}", h.softRemove)
	})
}

type createRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Category    string `json:"category" validate:"required,max=100"`
	ActionKey   string `json:"action_key" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
}

type updateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Category    *string `json:"category" validate:"omitempty,min=1,max=100"`
	ActionKey   *string `json:"action_key" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
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
		Name:        req.Name,
		Category:    req.Category,
		ActionKey:   req.ActionKey,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listSoftRemoved(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListSoftRemoved(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listGrouped(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGrouped(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
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
		Name:        req.Name,
		Category:    req.Category,
		ActionKey:   req.ActionKey,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) softRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.SoftRemove(r.Context(), shared.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	restored, err := h.service.Restore(r.Context(), shared.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, restored)
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
