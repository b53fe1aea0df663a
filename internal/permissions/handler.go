package permissions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// UserDirectory resolves a user's role for effective-permission queries.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

// Handler wires HTTP endpoints for custom permission management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	directory UserDirectory
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, directory UserDirectory) *Handler {
	return &Handler{logger: logger, service: service, directory: directory}
}

// MountRoutes registers permission routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/grants", h.handleGrant)
	r.Post("/grants/{id}/revoke", h.handleRevoke)
	r.Get("/users/{userID}/effective", h.handleEffective)
	r.Get("/users/{userID}/history", h.handleHistory)
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req GrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	req.GrantedBy = actor.UserID
	grant, err := h.service.Grant(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, grant)
}

type revokeBody struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	grantID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "invalid grant id"))
		return
	}
	var body revokeBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	err = h.service.Revoke(r.Context(), RevokeRequest{
		UserID:    body.UserID,
		GrantID:   grantID,
		RevokedBy: actor.UserID,
		Reason:    body.Reason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) handleEffective(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "invalid user id"))
		return
	}
	user, err := h.directory.GetByID(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var scope *ResourceScope
	if t := r.URL.Query().Get("resource_type"); t != "" {
		scope = &ResourceScope{Type: t, ID: r.URL.Query().Get("resource_id")}
	}
	perms, err := h.service.EffectivePermissions(r.Context(), userID, user.Role, scope)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"permissions": perms})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "invalid user id"))
		return
	}
	history, err := h.service.History(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, history)
}
