package invites

import (
	"context"
	"time"

	"github.com/meridian-pim/meridian/internal/users"
)

// RepositoryPort defines data access methods for invitations.
type RepositoryPort interface {
	Create(ctx context.Context, invitation Invitation) (*Invitation, error)
	GetByID(ctx context.Context, id int64) (*Invitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	FindPendingByEmail(ctx context.Context, email string) (*Invitation, error)
	UpdateToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) (*Invitation, error)
	MarkCancelled(ctx context.Context, id int64) error
	// AcceptAndCreateUser flips a live PENDING invitation to ACCEPTED and
	// inserts the account in one transaction. The conditional update is the
	// exactly-once gate: concurrent calls with the same token see at most
	// one success. A failed account insert rolls the whole transaction back,
	// leaving the invitation PENDING and the token valid for retry. Returns
	// NOT_FOUND when no live row matches and CONFLICT when the email is
	// already registered.
	AcceptAndCreateUser(ctx context.Context, tokenHash string, now time.Time, name, passwordHash string) (*Invitation, *users.User, error)
	List(ctx context.Context, status *Status) ([]Invitation, error)
}
