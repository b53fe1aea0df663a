package twofactor

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
)

// Handler wires HTTP endpoints for two-factor management. All routes
// require an authenticated actor.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers two-factor routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/enroll", h.handleEnroll)
	r.Post("/activate", h.handleActivate)
	r.Post("/disable", h.handleDisable)
}

type enrollRequest struct {
	Label string `json:"label,omitempty"`
}

type activateRequest struct {
	Secret      string   `json:"secret"`
	Code        string   `json:"code"`
	BackupCodes []string `json:"backup_codes"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req enrollRequest
	_ = httpx.DecodeJSON(r, &req)
	enrollment, err := h.service.Enroll(actor.UserID, actor.Email, req.Label)
	if err != nil {
		h.logger.Error("twofactor enroll", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, enrollment)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req activateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Secret == "" || req.Code == "" {
		httpx.RespondError(w, shared.E(shared.KindValidation, "secret and code are required"))
		return
	}
	if err := h.service.Activate(r.Context(), actor.UserID, req.Secret, req.Code, req.BackupCodes); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Disable(r.Context(), actor.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}
