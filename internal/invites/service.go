package invites

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pim/meridian/internal/auth"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// UserDirectory is the slice of the user service the invite flow needs.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
}

// Mailer dispatches invitation emails.
type Mailer interface {
	EnqueueInvitation(ctx context.Context, email, token string) error
}

// Service manages the invitation lifecycle. Expiry is computed lazily at
// read time, never by a background sweep.
type Service struct {
	repo     RepositoryPort
	users    UserDirectory
	mailer   Mailer
	logger   *slog.Logger
	activity shared.ActivityRecorder
	ttl      time.Duration
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, directory UserDirectory, mailer Mailer, logger *slog.Logger, activity shared.ActivityRecorder, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if activity == nil {
		activity = shared.NopActivityRecorder{}
	}
	return &Service{repo: repo, users: directory, mailer: mailer, logger: logger, activity: activity, ttl: ttl, now: time.Now}
}

// SendInvitation creates a PENDING invitation and dispatches the email.
// The returned invitation never carries the raw token.
func (s *Service) SendInvitation(ctx context.Context, email string, role users.Role, invitedBy int64) (*Invitation, error) {
	email = users.NormalizeEmail(email)
	if email == "" {
		return nil, shared.E(shared.KindValidation, "email required")
	}
	if !role.Valid() {
		return nil, shared.E(shared.KindValidation, "unknown role")
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, shared.E(shared.KindInviteUserExists, "a user with this email already exists")
	}
	if existing, err := s.repo.FindPendingByEmail(ctx, email); err == nil {
		if existing.EffectiveStatus(s.now()) == StatusPending {
			return nil, shared.E(shared.KindInvitePending, "an invitation for this email is already pending")
		}
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	invitation, err := s.repo.Create(ctx, Invitation{
		Email:     email,
		Role:      role,
		InvitedBy: invitedBy,
		TokenHash: auth.HashToken(token),
		ExpiresAt: s.now().UTC().Add(s.ttl),
	})
	if err != nil {
		return nil, err
	}
	if err := s.mailer.EnqueueInvitation(ctx, email, token); err != nil && s.logger != nil {
		s.logger.Warn("enqueue invitation mail", slog.Any("error", err))
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: invitedBy, Action: "invite.send", Entity: "invitation", EntityID: email,
		Meta: map[string]any{"role": string(role)},
	})
	return invitation, nil
}

// ResendInvitation regenerates the token and expiry without changing the
// invitation's identity or role.
func (s *Service) ResendInvitation(ctx context.Context, actorID, id int64) (*Invitation, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusPending {
		return nil, shared.E(shared.KindConflict, "only pending invitations can be resent")
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	invitation, err := s.repo.UpdateToken(ctx, id, auth.HashToken(token), s.now().UTC().Add(s.ttl))
	if err != nil {
		return nil, err
	}
	if err := s.mailer.EnqueueInvitation(ctx, invitation.Email, token); err != nil && s.logger != nil {
		s.logger.Warn("enqueue invitation mail", slog.Any("error", err))
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: "invite.resend", Entity: "invitation", EntityID: strconv.FormatInt(id, 10),
	})
	return invitation, nil
}

// CancelInvitation cancels a PENDING invitation. Accepted invitations
// cannot be cancelled.
func (s *Service) CancelInvitation(ctx context.Context, actorID, id int64) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == StatusAccepted {
		return shared.E(shared.KindInviteUsed, "invitation already accepted")
	}
	if err := s.repo.MarkCancelled(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: "invite.cancel", Entity: "invitation", EntityID: strconv.FormatInt(id, 10),
	})
	return nil
}

// AcceptInvitation settles a live invitation and creates the account with
// the invitation's role, both in one transaction: acceptance is
// exactly-once, and a failed account insert (the email was registered
// between send and accept) rolls back so the invitation stays PENDING.
func (s *Service) AcceptInvitation(ctx context.Context, token, name, password string) (*users.User, error) {
	if len(password) < 8 {
		return nil, shared.E(shared.KindValidation, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	tokenHash := auth.HashToken(token)
	invitation, user, err := s.repo.AcceptAndCreateUser(ctx, tokenHash, s.now().UTC(), name, string(hash))
	if err != nil {
		if shared.IsKind(err, shared.KindNotFound) {
			return nil, s.classifyAcceptFailure(ctx, tokenHash)
		}
		return nil, err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: user.ID, Action: "invite.accept", Entity: "invitation", EntityID: invitation.Email,
	})
	return user, nil
}

// ListInvitations returns invitations with lazily derived statuses,
// optionally filtered by the presented status.
func (s *Service) ListInvitations(ctx context.Context, status *Status) ([]Invitation, error) {
	var fetch *Status
	// EXPIRED rows are stored as PENDING; filter after deriving.
	if status != nil && *status != StatusExpired {
		fetch = status
	}
	list, err := s.repo.List(ctx, fetch)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Invitation, 0, len(list))
	for _, inv := range list {
		inv.Status = inv.EffectiveStatus(now)
		if status != nil && inv.Status != *status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// classifyAcceptFailure explains why the conditional accept matched no row.
func (s *Service) classifyAcceptFailure(ctx context.Context, tokenHash string) error {
	invitation, err := s.repo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return shared.E(shared.KindInviteInvalid, "invitation token is not valid")
	}
	switch invitation.EffectiveStatus(s.now()) {
	case StatusAccepted:
		return shared.E(shared.KindInviteUsed, "invitation has already been accepted")
	case StatusExpired:
		return shared.E(shared.KindInviteExpired, "invitation has expired")
	default:
		return shared.E(shared.KindInviteInvalid, "invitation token is not valid")
	}
}
