package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-pim/meridian/internal/auth"
	"github.com/meridian-pim/meridian/internal/federation"
	"github.com/meridian-pim/meridian/internal/invites"
	"github.com/meridian-pim/meridian/internal/observability"
	"github.com/meridian-pim/meridian/internal/passreset"
	"github.com/meridian-pim/meridian/internal/permissions"
	"github.com/meridian-pim/meridian/internal/ratelimit"
	"github.com/meridian-pim/meridian/internal/twofactor"
	"github.com/meridian-pim/meridian/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	TwoFactorHandler   *twofactor.Handler
	PassResetHandler   *passreset.Handler
	InvitesHandler     *invites.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *permissions.Handler
	FederationHandler  *federation.Handler
	PermMiddleware     permissions.Middleware
	Limiter            *ratelimit.Limiter
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	throttle := ratelimit.Middleware(params.Limiter)

	r.Route("/api/v1", func(r chi.Router) {
		// Public surface. Every unauthenticated mutation sits behind the
		// sliding-window limiter.
		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Route("/auth", params.AuthHandler.MountRoutes)
			r.Route("/password-reset", params.PassResetHandler.MountRoutes)
			r.Route("/invitations", params.InvitesHandler.MountPublicRoutes)
		})

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(params.AuthHandler.Authenticate)

			r.Route("/2fa", params.TwoFactorHandler.MountRoutes)

			r.Route("/users", func(r chi.Router) {
				params.UsersHandler.MountRoutes(r,
					params.PermMiddleware.RequireAny(permissions.PermUsersView, permissions.PermUsersManage),
					params.PermMiddleware.RequireAny(permissions.PermUsersManage),
				)
			})

			r.Route("/invitations/manage", func(r chi.Router) {
				r.Use(params.PermMiddleware.RequireAny(permissions.PermUsersInvite, permissions.PermUsersManage))
				params.InvitesHandler.MountManagementRoutes(r)
			})

			r.Route("/permissions", func(r chi.Router) {
				r.Use(params.PermMiddleware.RequireAny(permissions.PermPermissionsGrant))
				params.PermissionsHandler.MountRoutes(r)
			})

			r.Route("/federation", func(r chi.Router) {
				r.Use(params.PermMiddleware.RequireAny(permissions.PermFederationManage))
				params.FederationHandler.MountRoutes(r)
			})
		})
	})

	return r
}
