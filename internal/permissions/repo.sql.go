package permissions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pim/meridian/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const grantColumns = `id, user_id, permission, granted_by, granted_at, expires_at, resource_type, resource_id, revoked_at, revoked_by, reason, revoke_reason`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(&g.ID, &g.UserID, &g.Permission, &g.GrantedBy, &g.GrantedAt, &g.ExpiresAt,
		&g.ResourceType, &g.ResourceID, &g.RevokedAt, &g.RevokedBy, &g.Reason, &g.RevokeReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.KindNotFound, "grant not found")
		}
		return nil, err
	}
	return &g, nil
}

// Insert appends a new grant row.
func (r *Repository) Insert(ctx context.Context, grant Grant) (*Grant, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permission_grants (user_id, permission, granted_by, granted_at, expires_at, resource_type, resource_id, reason)
		 VALUES ($1, $2, $3, NOW(), $4, $5, $6, $7)
		 RETURNING `+grantColumns,
		grant.UserID, grant.Permission, grant.GrantedBy, grant.ExpiresAt, grant.ResourceType, grant.ResourceID, grant.Reason)
	return scanGrant(row)
}

// FindActive returns the live grant for (user, permission, scope).
func (r *Repository) FindActive(ctx context.Context, userID int64, permission, resourceType, resourceID string, now time.Time) (*Grant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM permission_grants
		 WHERE user_id = $1 AND permission = $2 AND resource_type = $3 AND resource_id = $4
		   AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $5)
		 ORDER BY id DESC LIMIT 1`,
		userID, permission, resourceType, resourceID, now)
	return scanGrant(row)
}

// RefreshExpiry updates the expiry on an existing grant.
func (r *Repository) RefreshExpiry(ctx context.Context, id int64, expiresAt *time.Time) (*Grant, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE permission_grants SET expires_at = $2 WHERE id = $1 RETURNING `+grantColumns,
		id, expiresAt)
	return scanGrant(row)
}

// Revoke stamps revocation fields on an active grant. The grant's
// original reason is left intact; the revocation reason has its own
// column so the audit trail keeps both.
func (r *Repository) Revoke(ctx context.Context, userID, grantID, revokedBy int64, reason string, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE permission_grants SET revoked_at = $4, revoked_by = $3, revoke_reason = $5
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $4)`,
		grantID, userID, revokedBy, now, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ActiveForUser returns all grants currently contributing to the user's
// effective permission set.
func (r *Repository) ActiveForUser(ctx context.Context, userID int64, now time.Time) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM permission_grants
		 WHERE user_id = $1 AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY id`,
		userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

// HistoryForUser returns the full append-only grant history.
func (r *Repository) HistoryForUser(ctx context.Context, userID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM permission_grants WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func collectGrants(rows pgx.Rows) ([]Grant, error) {
	var out []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Permission, &g.GrantedBy, &g.GrantedAt, &g.ExpiresAt,
			&g.ResourceType, &g.ResourceID, &g.RevokedAt, &g.RevokedBy, &g.Reason, &g.RevokeReason); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
