package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const userColumns = `id, email, name, password_hash, role, status, department, twofactor_enabled, twofactor_secret, backup_code_hashes, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.Status,
		&user.Department, &user.TwoFactorEnabled, &user.TwoFactorSecret, &user.BackupCodeHashes,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.KindNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

// GetByID fetches a user by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Create inserts a new user record.
func (r *Repository) Create(ctx context.Context, user User) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, role, status, department, twofactor_enabled, twofactor_secret, backup_code_hashes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 RETURNING `+userColumns,
		user.Email, user.Name, user.PasswordHash, user.Role, user.Status,
		user.Department, user.TwoFactorEnabled, user.TwoFactorSecret, user.BackupCodeHashes)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.E(shared.KindConflict, "email already registered")
		}
		return nil, err
	}
	return created, nil
}

// Update applies a partial update and returns the refreshed record.
func (r *Repository) Update(ctx context.Context, id int64, patch Patch) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET
			name = COALESCE($2, name),
			role = COALESCE($3, role),
			status = COALESCE($4, status),
			department = COALESCE($5, department),
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, patch.Name, patch.Role, patch.Status, patch.Department)
	return scanUser(row)
}

// SetPassword replaces the stored password hash.
func (r *Repository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	return r.execOne(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// SetStatus transitions an account's lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	return r.execOne(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

// SetTwoFactor stores the TOTP secret and hashed backup codes and flips the flag.
func (r *Repository) SetTwoFactor(ctx context.Context, id int64, secret string, backupCodeHashes []string) error {
	return r.execOne(ctx,
		`UPDATE users SET twofactor_enabled = TRUE, twofactor_secret = $2, backup_code_hashes = $3, updated_at = NOW() WHERE id = $1`,
		id, secret, backupCodeHashes)
}

// ClearTwoFactor removes all two-factor material.
func (r *Repository) ClearTwoFactor(ctx context.Context, id int64) error {
	return r.execOne(ctx,
		`UPDATE users SET twofactor_enabled = FALSE, twofactor_secret = '', backup_code_hashes = '{}', updated_at = NOW() WHERE id = $1`, id)
}

// ReplaceBackupCodes overwrites the remaining backup code hashes.
func (r *Repository) ReplaceBackupCodes(ctx context.Context, id int64, backupCodeHashes []string) error {
	return r.execOne(ctx,
		`UPDATE users SET backup_code_hashes = $2, updated_at = NOW() WHERE id = $1`, id, backupCodeHashes)
}

// List returns all users ordered by id.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.Status,
			&user.Department, &user.TwoFactorEnabled, &user.TwoFactorSecret, &user.BackupCodeHashes,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (r *Repository) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "user not found")
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
