package permissions

import (
	"context"
	"time"
)

// RepositoryPort defines data access methods for permission grants.
type RepositoryPort interface {
	Insert(ctx context.Context, grant Grant) (*Grant, error)
	// FindActive returns the live grant matching (user, permission, scope),
	// if one exists.
	FindActive(ctx context.Context, userID int64, permission, resourceType, resourceID string, now time.Time) (*Grant, error)
	RefreshExpiry(ctx context.Context, id int64, expiresAt *time.Time) (*Grant, error)
	// Revoke stamps revocation fields on an active grant. Returns the
	// number of rows touched so the service can surface PERMISSION_NOT_FOUND.
	Revoke(ctx context.Context, userID, grantID, revokedBy int64, reason string, now time.Time) (int64, error)
	ActiveForUser(ctx context.Context, userID int64, now time.Time) ([]Grant, error)
	HistoryForUser(ctx context.Context, userID int64) ([]Grant, error)
}
