package invites

import (
	"time"

	"github.com/meridian-pim/meridian/internal/users"
)

// Status is the lifecycle state of an invitation. ACCEPTED, CANCELLED and
// EXPIRED are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Invitation represents a pending or settled invite.
type Invitation struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Role      users.Role `json:"role"`
	InvitedBy int64      `json:"invited_by"`
	Status    Status     `json:"status"`
	TokenHash string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// EffectiveStatus derives the presented status at read time: a PENDING
// invitation past its expiry reports EXPIRED without a background sweep.
func (i Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && now.After(i.ExpiresAt) {
		return StatusExpired
	}
	return i.Status
}
