package users

import "time"

// Role is the coarse access level assigned to every account.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEditor   Role = "EDITOR"
	RoleReviewer Role = "REVIEWER"
	RoleViewer   Role = "VIEWER"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleReviewer, RoleViewer:
		return true
	}
	return false
}

// Status is the lifecycle state of an account. Accounts are never hard
// deleted; they transition to DEACTIVATED instead.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusSuspended   Status = "SUSPENDED"
	StatusLocked      Status = "LOCKED"
	StatusDeactivated Status = "DEACTIVATED"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusLocked, StatusDeactivated:
		return true
	}
	return false
}

// User represents an identity record.
type User struct {
	ID               int64
	Email            string
	Name             string
	PasswordHash     string
	Role             Role
	Status           Status
	Department       string
	TwoFactorEnabled bool
	TwoFactorSecret  string
	BackupCodeHashes []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Patch describes a partial update. Nil fields are left untouched.
type Patch struct {
	Name       *string
	Role       *Role
	Status     *Status
	Department *string
}

// BulkResult reports the outcome of one user's mutation within a batch.
type BulkResult struct {
	UserID int64  `json:"user_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}
