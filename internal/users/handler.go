package users

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
)

// Unlocker clears a LOCKED account back to ACTIVE, including its failure
// counter. Implemented by the authentication service.
type Unlocker interface {
	Unlock(ctx context.Context, actorID, userID int64) error
}

// Handler wires HTTP endpoints for account administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	unlocker  Unlocker
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, unlocker Unlocker) *Handler {
	return &Handler{logger: logger, service: service, unlocker: unlocker, validator: validator.New()}
}

// MountRoutes registers user administration routes. Read routes go behind
// the view guard, mutations behind the manage guard.
func (h *Handler) MountRoutes(r chi.Router, view, manage func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(view)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(manage)
		r.Post("/", h.handleCreate)
		r.Patch("/{id}", h.handleUpdate)
		r.Post("/{id}/password", h.handleAdminResetPassword)
		r.Post("/{id}/unlock", h.handleUnlock)
		r.Post("/bulk/status", h.handleBulkStatus)
		r.Post("/bulk/role", h.handleBulkRole)
	})
}

type createRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required"`
	Password   string `json:"password" validate:"required,min=8"`
	Role       string `json:"role" validate:"required"`
	Department string `json:"department"`
}

type updateRequest struct {
	Name       *string `json:"name"`
	Role       *string `json:"role"`
	Status     *string `json:"status"`
	Department *string `json:"department"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

type bulkStatusRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"required,min=1"`
	Status  string  `json:"status" validate:"required"`
}

type bulkRoleRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"required,min=1"`
	Role    string  `json:"role" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for i := range list {
		out = append(out, publicUser(&list[i]))
	}
	httpx.OK(w, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, publicUser(user))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "email, name, password and role are required"))
		return
	}
	user, err := h.service.Create(r.Context(), req.Email, req.Name, req.Password, Role(req.Role), req.Department)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, publicUser(user))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	patch := Patch{Name: req.Name, Department: req.Department}
	if req.Role != nil {
		role := Role(*req.Role)
		patch.Role = &role
	}
	if req.Status != nil {
		status := Status(*req.Status)
		patch.Status = &status
	}
	user, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, publicUser(user))
}

func (h *Handler) handleAdminResetPassword(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "password must be at least 8 characters"))
		return
	}
	if err := h.service.AdminResetPassword(r.Context(), actor.UserID, id, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.unlocker.Unlock(r.Context(), actor.UserID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req bulkStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "user_ids and status are required"))
		return
	}
	results, err := h.service.BulkSetStatus(r.Context(), actor.UserID, req.UserIDs, Status(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, results)
}

func (h *Handler) handleBulkRole(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req bulkRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "user_ids and role are required"))
		return
	}
	results, err := h.service.BulkAssignRole(r.Context(), actor.UserID, req.UserIDs, Role(req.Role))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, results)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "invalid user id"))
		return 0, false
	}
	return id, true
}

// publicUser strips credential material from API responses.
func publicUser(u *User) map[string]any {
	return map[string]any{
		"id":                 u.ID,
		"email":              u.Email,
		"name":               u.Name,
		"role":               u.Role,
		"status":             u.Status,
		"department":         u.Department,
		"two_factor_enabled": u.TwoFactorEnabled,
		"created_at":         u.CreatedAt,
		"updated_at":         u.UpdatedAt,
	}
}
