package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Get("/me", h.handleMe)
		r.Post("/logout", h.handleLogout)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Code     string `json:"code,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userResponse struct {
	ID               int64  `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	Department       string `json:"department,omitempty"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "email and password are required"))
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password, req.Code)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          toUserResponse(result.User),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		httpx.RespondError(w, shared.E(shared.KindValidation, "refresh_token is required"))
		return
	}
	pair, err := h.service.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, pair)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, shared.E(shared.KindInvalidToken, "authentication required"))
		return
	}
	user, err := h.service.creds.GetByID(r.Context(), actor.UserID)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindInvalidToken, "authentication required"))
		return
	}
	httpx.OK(w, toUserResponse(user))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, shared.E(shared.KindInvalidToken, "authentication required"))
		return
	}
	if err := h.service.Logout(r.Context(), actor.UserID); err != nil {
		h.logger.Warn("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

// Authenticate resolves the bearer token and stores the actor in context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, shared.E(shared.KindInvalidToken, "authentication required"))
			return
		}
		user, claims, err := h.service.CurrentUser(r.Context(), token)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		actor := &shared.Actor{
			UserID:    user.ID,
			Email:     user.Email,
			Role:      string(user.Role),
			SessionID: claims.SessionID,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func toUserResponse(u *users.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             string(u.Role),
		Status:           string(u.Status),
		Department:       u.Department,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}
