package permissions

import (
	"time"

	"github.com/meridian-pim/meridian/internal/users"
)

// Permission names used across the product surface.
const (
	PermCatalogView      = "catalog:view"
	PermCatalogEdit      = "catalog:edit"
	PermCatalogReview    = "catalog:review"
	PermCatalogPublish   = "catalog:publish"
	PermUsersView        = "users:view"
	PermUsersManage      = "users:manage"
	PermUsersInvite      = "users:invite"
	PermPermissionsGrant = "permissions:manage"
	PermSettingsManage   = "settings:manage"
	PermFederationManage = "federation:manage"
)

// roleDefaults maps each role to its built-in permission set.
var roleDefaults = map[users.Role][]string{
	users.RoleViewer: {PermCatalogView},
	users.RoleReviewer: {
		PermCatalogView, PermCatalogReview,
	},
	users.RoleEditor: {
		PermCatalogView, PermCatalogEdit, PermCatalogReview,
	},
	users.RoleAdmin: {
		PermCatalogView, PermCatalogEdit, PermCatalogReview, PermCatalogPublish,
		PermUsersView, PermUsersManage, PermUsersInvite,
		PermPermissionsGrant, PermSettingsManage, PermFederationManage,
	},
}

// RoleDefaults returns a copy of the built-in permission set for a role.
func RoleDefaults(role users.Role) []string {
	defaults := roleDefaults[role]
	out := make([]string, len(defaults))
	copy(out, defaults)
	return out
}

// Grant is an append-only audit record of a custom permission layered
// over role defaults. Revocation sets RevokedAt; rows are never deleted.
type Grant struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	Permission   string     `json:"permission"`
	GrantedBy    int64      `json:"granted_by"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	Reason       string     `json:"reason"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Active reports whether the grant contributes to effective permissions
// at the given instant.
func (g Grant) Active(now time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// GrantRequest carries the parameters for a new grant.
type GrantRequest struct {
	UserID       int64      `json:"user_id"`
	Permission   string     `json:"permission"`
	GrantedBy    int64      `json:"-"`
	Reason       string     `json:"reason"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
}

// RevokeRequest carries the parameters for a revocation.
type RevokeRequest struct {
	UserID    int64  `json:"user_id"`
	GrantID   int64  `json:"grant_id"`
	RevokedBy int64  `json:"-"`
	Reason    string `json:"reason"`
}

// ResourceScope optionally narrows an effective-permission query to one
// resource.
type ResourceScope struct {
	Type string
	ID   string
}
