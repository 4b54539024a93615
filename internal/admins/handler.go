package admins

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helmsman-hq/helmsman/internal/platform/httpx"
	"github.com/helmsman-hq/helmsman/internal/rbac"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Handler manages admin account endpoints.
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

// MountRoutes registers admin routes. Profile endpoints carry no gate beyond
// authentication; everything else is permission-gated.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/profile", h.profile)
	r.Patch("/profile", h.updateProfile)

	r.With(h.rbac.RequirePermissions(shared.PermAdminCreate)).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermAdminView))
		r.Get("/", h.list)
		r.Get("/soft-removed", h.listSoftRemoved)
		r.Get("/{id}", h.get)
		r.Get("/soft-removed/{id}", h.getSoftRemoved)
	})
	r.With(h.rbac.RequirePermissions(shared.PermAdminUpdate)).Patch("/{id}", h.update)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermAdminDelete))
		r.Delete("/soft-remove/{id}", h.softRemove)
		r.Delete("/{id}", h.remove)
	})
	r.With(h.rbac.RequireRoles(shared.RoleSuperadmin)).Patch("/restore/{id}", h.restore)
}

type createRequest struct {
	IC        string     `json:"ic" validate:"required,max=20"`
	UserName  string     `json:"user_name" validate:"required,max=100"`
	FirstName string     `json:"first_name" validate:"required,max=100"`
	LastName  string     `json:"last_name" validate:"required,max=100"`
	Email     string     `json:"email" validate:"required,email,max=255"`
	Phone     string     `json:"phone" validate:"max=30"`
	Password  string     `json:"password" validate:"required,min=8,max=72"`
	RoleID    *uuid.UUID `json:"role_id"`
}

type updateRequest struct {
	IC        *string    `json:"ic" validate:"omitempty,max=20"`
	UserName  *string    `json:"user_name" validate:"omitempty,min=1,max=100"`
	FirstName *string    `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName  *string    `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email     *string    `json:"email" validate:"omitempty,email,max=255"`
	Phone     *string    `json:"phone" validate:"omitempty,max=30"`
	Password  *string    `json:"password" validate:"omitempty,min=8,max=72"`
	RoleID    *uuid.UUID `json:"role_id"`
}

type profileRequest struct {
	UserName  *string `json:"user_name" validate:"omitempty,min=1,max=100"`
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=72"`
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
		IC:        req.IC,
		UserName:  req.UserName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		RoleID:    req.RoleID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type listResponse struct {
	Data       []Admin           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	out, meta, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: out, Pagination: meta})
}

func (h *Handler) listSoftRemoved(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	out, meta, err := h.service.ListSoftRemoved(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: out, Pagination: meta})
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, perPage
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	admin, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, admin)
}

func (h *Handler) getSoftRemoved(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	admin, err := h.service.GetSoftRemoved(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, admin)
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
		IC:        req.IC,
		UserName:  req.UserName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		RoleID:    req.RoleID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	admin, err := h.service.Profile(r.Context(), shared.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, admin)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.UpdateProfile(r.Context(), shared.PrincipalFromContext(r.Context()), ProfileInput{
		UserName:  req.UserName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Password:  req.Password,
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
