package invites

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pim/meridian/internal/platform/db"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const inviteColumns = `id, email, role, invited_by, status, token_hash, created_at, expires_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.Status, &inv.TokenHash, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.KindNotFound, "invitation not found")
		}
		return nil, err
	}
	return &inv, nil
}

// Create inserts a new PENDING invitation.
func (r *Repository) Create(ctx context.Context, invitation Invitation) (*Invitation, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO invitations (email, role, invited_by, status, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), $6)
		 RETURNING `+inviteColumns,
		invitation.Email, invitation.Role, invitation.InvitedBy, StatusPending, invitation.TokenHash, invitation.ExpiresAt)
	return scanInvitation(row)
}

// GetByID fetches an invitation by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Invitation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invitations WHERE id = $1`, id)
	return scanInvitation(row)
}

// GetByTokenHash fetches an invitation by token hash.
func (r *Repository) GetByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invitations WHERE token_hash = $1`, tokenHash)
	return scanInvitation(row)
}

// FindPendingByEmail returns the PENDING invitation for an email, if any.
func (r *Repository) FindPendingByEmail(ctx context.Context, email string) (*Invitation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+inviteColumns+` FROM invitations WHERE lower(email) = lower($1) AND status = $2 ORDER BY id DESC LIMIT 1`,
		email, StatusPending)
	return scanInvitation(row)
}

// UpdateToken regenerates the token and expiry for a PENDING invitation.
func (r *Repository) UpdateToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) (*Invitation, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE invitations SET token_hash = $2, expires_at = $3 WHERE id = $1 AND status = $4 RETURNING `+inviteColumns,
		id, tokenHash, expiresAt, StatusPending)
	return scanInvitation(row)
}

// MarkCancelled cancels a PENDING invitation.
func (r *Repository) MarkCancelled(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invitations SET status = $2 WHERE id = $1 AND status = $3`, id, StatusCancelled, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "invitation not found")
	}
	return nil
}

// AcceptAndCreateUser settles a live invitation and inserts the account
// in one transaction. The conditional update gates acceptance exactly
// once; a failed insert rolls the status flip back so the invitation
// stays PENDING.
func (r *Repository) AcceptAndCreateUser(ctx context.Context, tokenHash string, now time.Time, name, passwordHash string) (*Invitation, *users.User, error) {
	var invitation *Invitation
	var user users.User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE invitations SET status = $2 WHERE token_hash = $1 AND status = $3 AND expires_at > $4 RETURNING `+inviteColumns,
			tokenHash, StatusAccepted, StatusPending, now)
		inv, err := scanInvitation(row)
		if err != nil {
			return err
		}
		invitation = inv

		row = tx.QueryRow(ctx,
			`INSERT INTO users (email, name, password_hash, role, status, department, twofactor_enabled, twofactor_secret, backup_code_hashes, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, '', FALSE, '', '{}', NOW(), NOW())
			 RETURNING id, email, name, role, status, department, created_at, updated_at`,
			inv.Email, name, passwordHash, inv.Role, users.StatusActive)
		if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.Status,
			&user.Department, &user.CreatedAt, &user.UpdatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return shared.E(shared.KindConflict, "email already registered")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return invitation, &user, nil
}

// List returns invitations, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *Status) ([]Invitation, error) {
	query := `SELECT ` + inviteColumns + ` FROM invitations`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.Status, &inv.TokenHash, &inv.CreatedAt, &inv.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
