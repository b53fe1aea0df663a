package federation

import (
	"context"
	"errors"

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

const ldapColumns = `id, tenant, host, port, use_tls, bind_dn, bind_password, base_dn, user_filter, email_attr, name_attr, dept_attr, default_role, enabled, created_at, updated_at`

func scanLDAP(row pgx.Row) (*LDAPConfig, error) {
	var cfg LDAPConfig
	err := row.Scan(
		&cfg.ID, &cfg.Tenant, &cfg.Host, &cfg.Port, &cfg.UseTLS, &cfg.BindDN, &cfg.BindPassword,
		&cfg.BaseDN, &cfg.UserFilter, &cfg.EmailAttr, &cfg.NameAttr, &cfg.DeptAttr,
		&cfg.DefaultRole, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.KindNotFound, "ldap configuration not found")
		}
		return nil, err
	}
	return &cfg, nil
}

// UpsertLDAP stores the tenant's connection profile. The tenant column is
// unique, so a re-configure replaces the previous profile in place.
func (r *Repository) UpsertLDAP(ctx context.Context, cfg LDAPConfig) (*LDAPConfig, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO ldap_configs (tenant, host, port, use_tls, bind_dn, bind_password, base_dn, user_filter, email_attr, name_attr, dept_attr, default_role, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		 ON CONFLICT (tenant) DO UPDATE SET
			host = EXCLUDED.host, port = EXCLUDED.port, use_tls = EXCLUDED.use_tls,
			bind_dn = EXCLUDED.bind_dn, bind_password = EXCLUDED.bind_password,
			base_dn = EXCLUDED.base_dn, user_filter = EXCLUDED.user_filter,
			email_attr = EXCLUDED.email_attr, name_attr = EXCLUDED.name_attr,
			dept_attr = EXCLUDED.dept_attr, default_role = EXCLUDED.default_role,
			enabled = EXCLUDED.enabled, updated_at = NOW()
		 RETURNING `+ldapColumns,
		cfg.Tenant, cfg.Host, cfg.Port, cfg.UseTLS, cfg.BindDN, cfg.BindPassword,
		cfg.BaseDN, cfg.UserFilter, cfg.EmailAttr, cfg.NameAttr, cfg.DeptAttr,
		cfg.DefaultRole, cfg.Enabled)
	return scanLDAP(row)
}

// GetLDAP fetches the tenant's connection profile.
func (r *Repository) GetLDAP(ctx context.Context, tenant string) (*LDAPConfig, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ldapColumns+` FROM ldap_configs WHERE tenant = $1`, tenant)
	return scanLDAP(row)
}

const ssoColumns = `id, tenant, provider, client_id, client_secret, issuer_url, redirect_url, scopes, enabled, created_at, updated_at`

func scanSSO(row pgx.Row) (*SSOProviderConfig, error) {
	var cfg SSOProviderConfig
	err := row.Scan(
		&cfg.ID, &cfg.Tenant, &cfg.Provider, &cfg.ClientID, &cfg.ClientSecret,
		&cfg.IssuerURL, &cfg.RedirectURL, &cfg.Scopes, &cfg.Enabled,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.KindNotFound, "sso configuration not found")
		}
		return nil, err
	}
	return &cfg, nil
}

// UpsertSSO stores the tenant's SSO provider settings, replacing any
// previous profile.
func (r *Repository) UpsertSSO(ctx context.Context, cfg SSOProviderConfig) (*SSOProviderConfig, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sso_configs (tenant, provider, client_id, client_secret, issuer_url, redirect_url, scopes, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 ON CONFLICT (tenant) DO UPDATE SET
			provider = EXCLUDED.provider, client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret, issuer_url = EXCLUDED.issuer_url,
			redirect_url = EXCLUDED.redirect_url, scopes = EXCLUDED.scopes,
			enabled = EXCLUDED.enabled, updated_at = NOW()
		 RETURNING `+ssoColumns,
		cfg.Tenant, cfg.Provider, cfg.ClientID, cfg.ClientSecret,
		cfg.IssuerURL, cfg.RedirectURL, cfg.Scopes, cfg.Enabled)
	return scanSSO(row)
}

// GetSSO fetches the tenant's SSO provider settings.
func (r *Repository) GetSSO(ctx context.Context, tenant string) (*SSOProviderConfig, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ssoColumns+` FROM sso_configs WHERE tenant = $1`, tenant)
	return scanSSO(row)
}

const syncLogColumns = `id, tenant, status, imported, updated, skipped, failed, message, started_at, finished_at`

// AppendSyncLog inserts one run record. Rows are never updated afterwards.
func (r *Repository) AppendSyncLog(ctx context.Context, entry SyncLog) (*SyncLog, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO directory_sync_logs (tenant, status, imported, updated, skipped, failed, message, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+syncLogColumns,
		entry.Tenant, entry.Status, entry.Imported, entry.Updated, entry.Skipped,
		entry.Failed, entry.Message, entry.StartedAt, entry.FinishedAt)
	var out SyncLog
	err := row.Scan(
		&out.ID, &out.Tenant, &out.Status, &out.Imported, &out.Updated, &out.Skipped,
		&out.Failed, &out.Message, &out.StartedAt, &out.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncHistory returns the most recent runs, newest first.
func (r *Repository) SyncHistory(ctx context.Context, tenant string, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+syncLogColumns+` FROM directory_sync_logs WHERE tenant = $1 ORDER BY started_at DESC LIMIT $2`,
		tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncLog
	for rows.Next() {
		var entry SyncLog
		if err := rows.Scan(
			&entry.ID, &entry.Tenant, &entry.Status, &entry.Imported, &entry.Updated,
			&entry.Skipped, &entry.Failed, &entry.Message, &entry.StartedAt, &entry.FinishedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
