package invites

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// Handler wires HTTP endpoints for invitations. Accept is public; the
// management routes require the users:invite permission.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountManagementRoutes registers authenticated invitation routes.
func (h *Handler) MountManagementRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleSend)
	r.Post("/{id}/resend", h.handleResend)
	r.Post("/{id}/cancel", h.handleCancel)
}

// MountPublicRoutes registers the unauthenticated accept route.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/accept", h.handleAccept)
}

type sendRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

type acceptRequest struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "email and role are required"))
		return
	}
	invitation, err := h.service.SendInvitation(r.Context(), req.Email, users.Role(req.Role), actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, invitation)
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "invalid invitation id"))
		return
	}
	invitation, err := h.service.ResendInvitation(r.Context(), actor.UserID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, invitation)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "invalid invitation id"))
		return
	}
	if err := h.service.CancelInvitation(r.Context(), actor.UserID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "token and password are required"))
		return
	}
	user, err := h.service.AcceptInvitation(r.Context(), req.Token, req.Name, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, map[string]any{"id": user.ID, "email": user.Email, "role": user.Role})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := Status(raw)
		status = &s
	}
	list, err := h.service.ListInvitations(r.Context(), status)
	if err != nil {
		h.logger.Error("list invitations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, list)
}
