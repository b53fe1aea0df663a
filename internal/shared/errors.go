package shared

import (
	"errors"
	"time"
)

// Kind identifies a class of failure that callers can branch on and the
// HTTP layer can map to a status code. The set is closed: services return
// one of these kinds or a plain error, never ad hoc strings.
type Kind string

const (
	KindInvalidCredentials Kind = "AUTH_INVALID_CREDENTIALS"
	KindAccountLocked      Kind = "AUTH_ACCOUNT_LOCKED"
	KindRequiresTwoFactor  Kind = "AUTH_REQUIRES_2FA"
	KindInvalidToken       Kind = "AUTH_INVALID_TOKEN"
	KindInvalidRefresh     Kind = "AUTH_INVALID_REFRESH"
	KindRateLimited        Kind = "RATE_LIMIT_EXCEEDED"
	KindTokenExpired       Kind = "TOKEN_EXPIRED"
	KindTokenConsumed      Kind = "TOKEN_CONSUMED"
	KindInvitePending      Kind = "INVITE_ALREADY_PENDING"
	KindInviteUserExists   Kind = "INVITE_USER_EXISTS"
	KindInviteExpired      Kind = "INVITE_EXPIRED"
	KindInviteInvalid      Kind = "INVITE_INVALID"
	KindInviteUsed         Kind = "INVITE_ALREADY_USED"
	KindPermissionNotFound Kind = "PERMISSION_NOT_FOUND"
	KindNotConfigured      Kind = "NOT_CONFIGURED"
	KindSyncInProgress     Kind = "SYNC_IN_PROGRESS"
	KindValidation         Kind = "VALIDATION_FAILED"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
)

// Error carries a Kind alongside a caller-safe message. Internal detail
// stays in logs, never in Message.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is set only for KindRateLimited.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is makes errors.Is match on Kind so sentinel comparison works across
// separately constructed instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// E builds a kinded error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf extracts the Kind from err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
