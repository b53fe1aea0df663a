// Package federation delegates authentication and user sourcing to an
// external directory (LDAP) and stores SSO provider settings. Sync runs
// feed the local user store and leave an append-only trail.
package federation

import (
	"time"

	"github.com/meridian-pim/meridian/internal/users"
)

// LDAPConfig is the active directory connection profile for a tenant.
// One profile per tenant; re-configuring replaces it.
type LDAPConfig struct {
	ID           int64      `json:"id"`
	Tenant       string     `json:"tenant"`
	Host         string     `json:"host"`
	Port         int        `json:"port"`
	UseTLS       bool       `json:"use_tls"`
	BindDN       string     `json:"bind_dn"`
	BindPassword string     `json:"-"`
	BaseDN       string     `json:"base_dn"`
	UserFilter   string     `json:"user_filter"`
	EmailAttr    string     `json:"email_attr"`
	NameAttr     string     `json:"name_attr"`
	DeptAttr     string     `json:"dept_attr"`
	DefaultRole  users.Role `json:"default_role"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SSOProviderConfig holds settings for an external identity provider.
// Only the configuration and test-connection contract is supported here;
// the full protocol handshake lives outside this service.
type SSOProviderConfig struct {
	ID           int64     `json:"id"`
	Tenant       string    `json:"tenant"`
	Provider     string    `json:"provider"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"-"`
	IssuerURL    string    `json:"issuer_url"`
	RedirectURL  string    `json:"redirect_url"`
	Scopes       []string  `json:"scopes"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DirectoryEntry is one account as seen in the external directory.
type DirectoryEntry struct {
	Email      string
	Name       string
	Department string
}

// Sync run outcomes.
const (
	SyncStatusSuccess = "SUCCESS"
	SyncStatusFailed  = "FAILED"
)

// SyncLog is one append-only record of a sync run.
type SyncLog struct {
	ID         int64      `json:"id"`
	Tenant     string     `json:"tenant"`
	Status     string     `json:"status"`
	Imported   int        `json:"imported"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SyncResult reports the outcome of one sync run. A repeat run against an
// unchanged directory reports Imported=0 Updated=0.
type SyncResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// TestResult is the outcome of a connection probe against submitted
// settings. The probe never touches stored configuration.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
