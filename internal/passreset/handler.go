package passreset

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
)

// Handler wires HTTP endpoints for the password reset flow. All routes
// are unauthenticated by design and sit behind the rate limiter.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers password reset routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/request", h.handleRequest)
	r.Get("/verify", h.handleVerify)
	r.Post("/reset", h.handleReset)
}

type requestResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "a valid email is required"))
		return
	}
	if err := h.service.RequestReset(r.Context(), req.Email); err != nil {
		h.logger.Error("password reset request", slog.Any("error", err))
	}
	// Identical response whether or not the account exists.
	httpx.OK(w, nil)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpx.RespondError(w, shared.E(shared.KindValidation, "token is required"))
		return
	}
	userID, err := h.service.Verify(r.Context(), token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"user_id": userID})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "token and new_password are required"))
		return
	}
	if err := h.service.Reset(r.Context(), req.Token, req.NewPassword); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}
