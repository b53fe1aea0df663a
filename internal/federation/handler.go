package federation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// SyncScheduler queues a background directory sync.
type SyncScheduler interface {
	EnqueueDirectorySync(ctx context.Context, tenant string) error
}

// Handler wires HTTP endpoints for federation settings. All routes
// require the federation:manage permission.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	scheduler SyncScheduler
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, scheduler SyncScheduler) *Handler {
	return &Handler{logger: logger, service: service, scheduler: scheduler, validator: validator.New()}
}

// MountRoutes registers federation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/{tenant}/ldap", h.handleConfigure)
	r.Get("/{tenant}/ldap", h.handleGetConfig)
	r.Put("/{tenant}/sso", h.handleConfigureSSO)
	r.Get("/{tenant}/sso", h.handleGetSSO)
	r.Post("/{tenant}/test", h.handleTest)
	r.Post("/{tenant}/sync", h.handleSync)
	r.Get("/{tenant}/sync/history", h.handleSyncHistory)
}

type ldapRequest struct {
	Host         string `json:"host" validate:"required"`
	Port         int    `json:"port" validate:"required,min=1,max=65535"`
	UseTLS       bool   `json:"use_tls"`
	BindDN       string `json:"bind_dn" validate:"required"`
	BindPassword string `json:"bind_password"`
	BaseDN       string `json:"base_dn" validate:"required"`
	UserFilter   string `json:"user_filter"`
	EmailAttr    string `json:"email_attr"`
	NameAttr     string `json:"name_attr"`
	DeptAttr     string `json:"dept_attr"`
	DefaultRole  string `json:"default_role"`
	Enabled      bool   `json:"enabled"`
}

func (req ldapRequest) toConfig(tenant string) LDAPConfig {
	return LDAPConfig{
		Tenant:       tenant,
		Host:         req.Host,
		Port:         req.Port,
		UseTLS:       req.UseTLS,
		BindDN:       req.BindDN,
		BindPassword: req.BindPassword,
		BaseDN:       req.BaseDN,
		UserFilter:   req.UserFilter,
		EmailAttr:    req.EmailAttr,
		NameAttr:     req.NameAttr,
		DeptAttr:     req.DeptAttr,
		DefaultRole:  users.Role(req.DefaultRole),
		Enabled:      req.Enabled,
	}
}

type ssoRequest struct {
	Provider     string   `json:"provider" validate:"required"`
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret"`
	IssuerURL    string   `json:"issuer_url" validate:"omitempty,url"`
	RedirectURL  string   `json:"redirect_url" validate:"omitempty,url"`
	Scopes       []string `json:"scopes"`
	Enabled      bool     `json:"enabled"`
}

func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req ldapRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "host, port, bind_dn and base_dn are required"))
		return
	}
	cfg, err := h.service.Configure(r.Context(), actor.UserID, req.toConfig(chi.URLParam(r, "tenant")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, cfg)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetConfig(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, cfg)
}

func (h *Handler) handleConfigureSSO(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req ssoRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "provider and client_id are required"))
		return
	}
	cfg, err := h.service.ConfigureSSO(r.Context(), actor.UserID, SSOProviderConfig{
		Tenant:       chi.URLParam(r, "tenant"),
		Provider:     req.Provider,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		IssuerURL:    req.IssuerURL,
		RedirectURL:  req.RedirectURL,
		Scopes:       req.Scopes,
		Enabled:      req.Enabled,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, cfg)
}

func (h *Handler) handleGetSSO(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetSSOConfig(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, cfg)
}

// handleTest probes the submitted settings. Stored configuration is never
// touched, so an admin can validate changes before saving them.
func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	var req ldapRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "malformed request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "host, port, bind_dn and base_dn are required"))
		return
	}
	cfg := req.toConfig(chi.URLParam(r, "tenant"))
	if cfg.EmailAttr == "" {
		cfg.EmailAttr = "mail"
	}
	httpx.OK(w, h.service.TestConnection(r.Context(), cfg))
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	if h.scheduler != nil {
		if err := h.scheduler.EnqueueDirectorySync(r.Context(), tenant); err != nil {
			h.logger.Error("enqueue directory sync", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.OK(w, map[string]any{"queued": true, "tenant": tenant})
		return
	}
	result, err := h.service.SyncUsers(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, result)
}

func (h *Handler) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.SyncHistory(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, history)
}
