// Package passreset implements the single-use password reset token
// lifecycle. Tokens live in redis with a TTL; only their hash is stored.
package passreset

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pim/meridian/internal/auth"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// CredentialStore is the slice of the user directory this service needs.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	SetPassword(ctx context.Context, id int64, passwordHash string) error
}

// Mailer dispatches the reset email. Delivery runs outside any lock and
// its failure does not invalidate the token.
type Mailer interface {
	EnqueuePasswordReset(ctx context.Context, email, token string) error
}

type resetRecord struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// Service manages reset tokens. One live token per email: a new request
// supersedes the outstanding one.
type Service struct {
	repo     CredentialStore
	store    auth.TokenStore
	mailer   Mailer
	logger   *slog.Logger
	activity shared.ActivityRecorder
	ttl      time.Duration
}

// NewService constructs a Service.
func NewService(repo CredentialStore, store auth.TokenStore, mailer Mailer, logger *slog.Logger, activity shared.ActivityRecorder, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if activity == nil {
		activity = shared.NopActivityRecorder{}
	}
	return &Service{repo: repo, store: store, mailer: mailer, logger: logger, activity: activity, ttl: ttl}
}

// RequestReset issues a reset token when the email belongs to an account.
// It reports success either way so the endpoint cannot be used to probe
// which addresses exist.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = users.NormalizeEmail(email)
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return nil
	}
	hash := auth.HashToken(token)

	// Supersede any outstanding token for this email before storing the
	// new one, so at most one token validates at a time.
	if oldHash, err := s.store.Get(ctx, "email:"+email); err == nil {
		_ = s.store.Delete(ctx, "token:"+string(oldHash))
	}

	payload, err := json.Marshal(resetRecord{UserID: user.ID, Email: email})
	if err != nil {
		return nil
	}
	if err := s.store.Put(ctx, "token:"+hash, payload, s.ttl); err != nil {
		s.logf("store reset token", err)
		return nil
	}
	if err := s.store.Put(ctx, "email:"+email, []byte(hash), s.ttl); err != nil {
		s.logf("store reset pointer", err)
	}

	if err := s.mailer.EnqueuePasswordReset(ctx, email, token); err != nil {
		s.logf("enqueue reset mail", err)
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: user.ID, Action: "passreset.request", Entity: "user", EntityID: email,
	})
	return nil
}

// Verify checks a token without consuming it. Unknown, consumed and
// expired tokens are indistinguishable to the caller.
func (s *Service) Verify(ctx context.Context, token string) (int64, error) {
	payload, err := s.store.Get(ctx, "token:"+auth.HashToken(token))
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			return 0, shared.E(shared.KindTokenExpired, "reset token is invalid or expired")
		}
		return 0, err
	}
	var rec resetRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return 0, shared.E(shared.KindTokenExpired, "reset token is invalid or expired")
	}
	return rec.UserID, nil
}

// Consume removes the token, exactly once. Call it only after the
// password mutation has succeeded so a failed write leaves the token
// valid for retry.
func (s *Service) Consume(ctx context.Context, token string) error {
	payload, err := s.store.Consume(ctx, "token:"+auth.HashToken(token))
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			return shared.E(shared.KindTokenConsumed, "reset token already used or expired")
		}
		return err
	}
	var rec resetRecord
	if json.Unmarshal(payload, &rec) == nil && rec.Email != "" {
		_ = s.store.Delete(ctx, "email:"+rec.Email)
	}
	return nil
}

// Reset performs verify, password mutation, then consume, in that order.
func (s *Service) Reset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return shared.E(shared.KindValidation, "password must be at least 8 characters")
	}
	userID, err := s.Verify(ctx, token)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	if err := s.Consume(ctx, token); err != nil {
		return err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: userID, Action: "passreset.complete", Entity: "user", EntityID: formatID(userID),
	})
	return nil
}

func (s *Service) logf(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
