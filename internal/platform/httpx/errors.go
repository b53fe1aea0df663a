package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/meridian-pim/meridian/internal/shared"
)

// statusForKind maps the closed error-kind taxonomy to HTTP statuses.
func statusForKind(kind shared.Kind) int {
	switch kind {
	case shared.KindInvalidCredentials, shared.KindInvalidToken, shared.KindInvalidRefresh:
		return http.StatusUnauthorized
	case shared.KindAccountLocked:
		return http.StatusForbidden
	case shared.KindRequiresTwoFactor:
		return http.StatusUnauthorized
	case shared.KindRateLimited:
		return http.StatusTooManyRequests
	case shared.KindNotFound, shared.KindPermissionNotFound:
		return http.StatusNotFound
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindInvitePending, shared.KindInviteUserExists, shared.KindInviteUsed,
		shared.KindConflict, shared.KindSyncInProgress, shared.KindTokenConsumed:
		return http.StatusConflict
	case shared.KindInviteExpired, shared.KindInviteInvalid, shared.KindTokenExpired:
		return http.StatusGone
	case shared.KindNotConfigured:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps a service error to the failure envelope. Errors without
// a kind are reported generically so internal detail never reaches callers.
func RespondError(w http.ResponseWriter, err error) {
	kind, ok := shared.KindOf(err)
	if !ok {
		Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	var shErr *shared.Error
	if errors.As(err, &shErr) && shErr.Kind == shared.KindRateLimited && shErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(shErr.RetryAfter.Seconds())+1))
	}
	Fail(w, statusForKind(kind), err.Error())
}
