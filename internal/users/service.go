package users

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-pim/meridian/internal/shared"
)

// bulkConcurrency bounds the fan-out of batch mutations.
const bulkConcurrency = 8

// Service handles user account business logic. It is the credential store
// the identity services read from and write into.
type Service struct {
	repo     RepositoryPort
	activity shared.ActivityRecorder
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, activity shared.ActivityRecorder) *Service {
	if activity == nil {
		activity = shared.NopActivityRecorder{}
	}
	return &Service{repo: repo, activity: activity}
}

// NormalizeEmail lowercases and trims an address. Uniqueness is
// case-insensitive across the whole system.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail fetches a user by normalized email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// GetByID fetches a user by id.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Create registers a new account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, email, name, password string, role Role, department string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, shared.E(shared.KindValidation, "email required")
	}
	if !role.Valid() {
		return nil, shared.E(shared.KindValidation, "unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.Create(ctx, User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Status:       StatusActive,
		Department:   department,
	})
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: user.ID, Action: "user.create", Entity: "user", EntityID: email,
	})
	return user, nil
}

// Update applies a partial update to the account.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*User, error) {
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, shared.E(shared.KindValidation, "unknown role")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, shared.E(shared.KindValidation, "unknown status")
	}
	return s.repo.Update(ctx, id, patch)
}

// AdminResetPassword replaces a user's password on their behalf.
func (s *Service) AdminResetPassword(ctx context.Context, actorID, userID int64, newPassword string) error {
	if len(newPassword) < 8 {
		return shared.E(shared.KindValidation, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: "user.password.admin_reset", Entity: "user", EntityID: itoa(userID),
	})
	return nil
}

// SetStatus transitions an account's lifecycle state. Unlocking a LOCKED
// account goes through here with StatusActive.
func (s *Service) SetStatus(ctx context.Context, actorID, userID int64, status Status) error {
	if !status.Valid() {
		return shared.E(shared.KindValidation, "unknown status")
	}
	if err := s.repo.SetStatus(ctx, userID, status); err != nil {
		return err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: "user.status." + strings.ToLower(string(status)), Entity: "user", EntityID: itoa(userID),
	})
	return nil
}

// BulkSetStatus transitions many accounts. The batch is not atomic as a
// whole: each user's change stands or fails on its own, and the result
// reports per-user outcomes. Cancellation stops scheduling new items but
// committed changes stay committed.
func (s *Service) BulkSetStatus(ctx context.Context, actorID int64, userIDs []int64, status Status) ([]BulkResult, error) {
	if !status.Valid() {
		return nil, shared.E(shared.KindValidation, "unknown status")
	}
	return s.bulk(ctx, userIDs, func(ctx context.Context, id int64) error {
		return s.SetStatus(ctx, actorID, id, status)
	})
}

// BulkAssignRole changes the role for many accounts with per-user outcomes.
func (s *Service) BulkAssignRole(ctx context.Context, actorID int64, userIDs []int64, role Role) ([]BulkResult, error) {
	if !role.Valid() {
		return nil, shared.E(shared.KindValidation, "unknown role")
	}
	return s.bulk(ctx, userIDs, func(ctx context.Context, id int64) error {
		_, err := s.repo.Update(ctx, id, Patch{Role: &role})
		if err == nil {
			s.activity.Record(ctx, shared.ActivityEvent{
				ActorID: actorID, Action: "user.role.assign", Entity: "user", EntityID: itoa(id),
				Meta: map[string]any{"role": string(role)},
			})
		}
		return err
	})
}

func (s *Service) bulk(ctx context.Context, userIDs []int64, op func(context.Context, int64) error) ([]BulkResult, error) {
	results := make([]BulkResult, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, id := range userIDs {
		g.Go(func() error {
			results[i] = BulkResult{UserID: id, OK: true}
			if err := gctx.Err(); err != nil {
				results[i] = BulkResult{UserID: id, Error: "cancelled"}
				return nil
			}
			if err := op(gctx, id); err != nil {
				results[i] = BulkResult{UserID: id, Error: err.Error()}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
