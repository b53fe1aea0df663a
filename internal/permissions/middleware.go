package permissions

import (
	"log/slog"
	"net/http"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// Middleware wires permission checks for HTTP handlers. The effective set
// combines the actor's role defaults with active custom grants.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the actor holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				httpx.Fail(w, http.StatusForbidden, "forbidden")
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), actor.UserID, users.Role(actor.Role), nil)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.Any("error", err))
				}
				httpx.Fail(w, http.StatusInternalServerError, "internal error")
				return
			}
			set := make(map[string]struct{}, len(granted))
			for _, p := range granted {
				set[p] = struct{}{}
			}
			for _, p := range perms {
				if _, ok := set[p]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Fail(w, http.StatusForbidden, "forbidden")
		})
	}
}
