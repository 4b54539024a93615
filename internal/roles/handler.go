package roles

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

// Handler manages role endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(shared.RoleSuperadmin))
		r.Patch("/restore/{id}", h.restore)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(shared.RoleSuperadmin, shared.RoleAdmin))
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/soft-removed", h.listSoftRemoved)
		r.Get("/{id}", h.get)
		r.Get("/soft-removed/{id}", h.getSoftRemoved)
		r.Patch("/{id}", h.update)
		r.Put("/{id}/permissions", h.replacePermissions)
		r.Delete("/{id}", h.remove)
		r.Delete("/soft-remove/{id}", h.softRemove)
	})
}

type roleRequest struct {
	Name          string      `json:"name" validate:"required,max=100"`
	Value         string      `json:"value" validate:"required,max=100"`
	Description   string      `json:"description" validate:"max=255"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

type updateRoleRequest struct {
	Name          string      `json:"name" validate:"omitempty,max=100"`
	Value         string      `json:"value" validate:"omitempty,max=100"`
	Description   string      `json:"description" validate:"omitempty,max=255"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

type replacePermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), shared.PrincipalFromContext(r.Context()), Input{
		Name:          req.Name,
		Value:         req.Value,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
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

func (h *Handler) listSoftRemoved(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListSoftRemoved(r.Context())
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
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) getSoftRemoved(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetSoftRemoved(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), shared.PrincipalFromContext(r.Context()), id, Input{
		Name:          req.Name,
		Value:         req.Value,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req replacePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	updated, err := h.service.ReplacePermissions(r.Context(), shared.PrincipalFromContext(r.Context()), id, req.PermissionIDs)
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
