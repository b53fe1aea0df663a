package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// CredentialStore is the slice of the user directory the authentication
// flow needs.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	GetByID(ctx context.Context, id int64) (*users.User, error)
	SetStatus(ctx context.Context, actorID, userID int64, status users.Status) error
}

// CodeVerifier gates login completion for accounts with two-factor enabled.
type CodeVerifier interface {
	VerifyCode(ctx context.Context, userID int64, secret, code string) error
	ConsumeBackupCode(ctx context.Context, user *users.User, code string) (bool, error)
}

// Config carries authentication tunables.
type Config struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	LockoutThreshold int
	LockoutWindow    time.Duration
}

// Service orchestrates login, token rotation, identity lookup and logout.
type Service struct {
	creds     CredentialStore
	issuer    *Issuer
	store     TokenStore
	rdb       *redis.Client
	twoFactor CodeVerifier
	activity  shared.ActivityRecorder
	cfg       Config
}

// NewService constructs a Service.
func NewService(creds CredentialStore, issuer *Issuer, store TokenStore, rdb *redis.Client, twoFactor CodeVerifier, activity shared.ActivityRecorder, cfg Config) *Service {
	if activity == nil {
		activity = shared.NopActivityRecorder{}
	}
	if cfg.LockoutThreshold <= 0 {
		cfg.LockoutThreshold = 5
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = 15 * time.Minute
	}
	return &Service{creds: creds, issuer: issuer, store: store, rdb: rdb, twoFactor: twoFactor, activity: activity, cfg: cfg}
}

// Login validates credentials and, when the account has two-factor
// enabled, the supplied TOTP or backup code. Repeated failures within the
// lockout window transition the account to LOCKED; a locked account fails
// regardless of password correctness until explicitly unlocked.
func (s *Service) Login(ctx context.Context, email, password, twoFactorCode string) (*LoginResult, error) {
	email = users.NormalizeEmail(email)

	user, err := s.creds.GetByEmail(ctx, email)
	if err != nil {
		return nil, shared.E(shared.KindInvalidCredentials, "invalid email or password")
	}
	if user.Status == users.StatusLocked {
		s.recordLogin(ctx, user.ID, email, false, "account locked")
		return nil, shared.E(shared.KindAccountLocked, "account is locked")
	}
	if user.Status != users.StatusActive {
		s.recordLogin(ctx, user.ID, email, false, "account inactive")
		return nil, shared.E(shared.KindInvalidCredentials, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.registerFailure(ctx, user, email)
	}
	if user.TwoFactorEnabled {
		if twoFactorCode == "" {
			return nil, shared.E(shared.KindRequiresTwoFactor, "two-factor code required")
		}
		if err := s.twoFactor.VerifyCode(ctx, user.ID, user.TwoFactorSecret, twoFactorCode); err != nil {
			used, backupErr := s.twoFactor.ConsumeBackupCode(ctx, user, twoFactorCode)
			if backupErr != nil || !used {
				return nil, s.registerFailure(ctx, user, email)
			}
		}
	}

	s.clearFailures(ctx, email)

	result, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, user.ID, email, true, "")
	return result, nil
}

// RefreshTokens rotates an access/refresh pair. The old refresh token is
// consumed atomically, so two concurrent uses of the same token yield
// exactly one success.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	hash := HashToken(refreshToken)
	payload, err := s.store.Consume(ctx, "refresh:"+hash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, shared.E(shared.KindInvalidRefresh, "refresh token is invalid or already used")
		}
		return nil, err
	}
	var rec refreshRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, shared.E(shared.KindInvalidRefresh, "refresh token is invalid or already used")
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, shared.E(shared.KindInvalidRefresh, "refresh token expired")
	}

	sessPayload, err := s.store.Get(ctx, "session:"+rec.SessionID)
	if err != nil {
		return nil, shared.E(shared.KindInvalidRefresh, "session no longer active")
	}
	var sess session
	if err := json.Unmarshal(sessPayload, &sess); err != nil {
		return nil, shared.E(shared.KindInvalidRefresh, "session no longer active")
	}

	user, err := s.creds.GetByID(ctx, rec.UserID)
	if err != nil || user.Status != users.StatusActive {
		return nil, shared.E(shared.KindInvalidRefresh, "account no longer active")
	}

	pair, err := s.issuePair(ctx, user, rec.SessionID, rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// CurrentUser resolves the account behind a bearer access token. Tokens
// for sessions that have been logged out fail even before JWT expiry.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*users.User, *Claims, error) {
	claims, err := s.issuer.Parse(accessToken)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.store.Get(ctx, "session:"+claims.SessionID); err != nil {
		return nil, nil, shared.E(shared.KindInvalidToken, "session no longer active")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, nil, shared.E(shared.KindInvalidToken, "invalid access token")
	}
	user, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, shared.E(shared.KindInvalidToken, "invalid access token")
	}
	return user, claims, nil
}

// Logout invalidates all of the actor's live sessions.
func (s *Service) Logout(ctx context.Context, actorID int64) error {
	setKey := s.userSessionsKey(actorID)
	sessionIDs, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, sid := range sessionIDs {
		payload, err := s.store.Get(ctx, "session:"+sid)
		if err == nil {
			var sess session
			if json.Unmarshal(payload, &sess) == nil && sess.RefreshHash != "" {
				_ = s.store.Delete(ctx, "refresh:"+sess.RefreshHash)
			}
		}
		_ = s.store.Delete(ctx, "session:"+sid)
	}
	_ = s.rdb.Del(ctx, setKey).Err()
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: "auth.logout", Entity: "user", EntityID: formatID(actorID),
	})
	return nil
}

// Unlock clears a LOCKED account back to ACTIVE and resets its failure count.
func (s *Service) Unlock(ctx context.Context, actorID, userID int64) error {
	user, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.creds.SetStatus(ctx, actorID, userID, users.StatusActive); err != nil {
		return err
	}
	s.clearFailures(ctx, user.Email)
	return nil
}

func (s *Service) openSession(ctx context.Context, user *users.User) (*LoginResult, error) {
	sessionID := uuid.NewString()
	expiresAt := time.Now().UTC().Add(s.cfg.RefreshTTL)

	pair, err := s.issuePair(ctx, user, sessionID, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.SAdd(ctx, s.userSessionsKey(user.ID), sessionID).Err(); err != nil {
		return nil, err
	}
	_ = s.rdb.Expire(ctx, s.userSessionsKey(user.ID), s.cfg.RefreshTTL)

	return &LoginResult{TokenPair: *pair, User: user}, nil
}

// issuePair mints a fresh access/refresh pair and repoints the session at
// the new refresh hash.
func (s *Service) issuePair(ctx context.Context, user *users.User, sessionID string, expiresAt time.Time) (*TokenPair, error) {
	refreshToken, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshHash := HashToken(refreshToken)
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil, shared.E(shared.KindInvalidRefresh, "session expired")
	}

	recPayload, err := json.Marshal(refreshRecord{UserID: user.ID, SessionID: sessionID, ExpiresAt: expiresAt})
	if err != nil {
		return nil, err
	}
	sessPayload, err := json.Marshal(session{UserID: user.ID, RefreshHash: refreshHash, ExpiresAt: expiresAt})
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, "refresh:"+refreshHash, recPayload, ttl); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, "session:"+sessionID, sessPayload, ttl); err != nil {
		return nil, err
	}

	accessToken, err := s.issuer.Sign(user, sessionID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// registerFailure bumps the per-account failure counter and locks the
// account once the threshold is crossed inside the window.
func (s *Service) registerFailure(ctx context.Context, user *users.User, email string) error {
	key := shared.LoginFailureKey(email)
	count, err := s.rdb.Incr(ctx, key).Result()
	if err == nil && count == 1 {
		_ = s.rdb.Expire(ctx, key, s.cfg.LockoutWindow).Err()
	}
	s.recordLogin(ctx, user.ID, email, false, fmt.Sprintf("failure %d", count))
	if err == nil && count >= int64(s.cfg.LockoutThreshold) {
		if lockErr := s.creds.SetStatus(ctx, user.ID, user.ID, users.StatusLocked); lockErr == nil {
			return shared.E(shared.KindAccountLocked, "account is locked")
		}
	}
	return shared.E(shared.KindInvalidCredentials, "invalid email or password")
}

func (s *Service) clearFailures(ctx context.Context, email string) {
	_ = s.rdb.Del(ctx, shared.LoginFailureKey(email)).Err()
}

func (s *Service) recordLogin(ctx context.Context, userID int64, email string, success bool, detail string) {
	action := "auth.login.failure"
	if success {
		action = "auth.login.success"
	}
	meta := map[string]any{}
	if detail != "" {
		meta["detail"] = detail
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: userID, Action: action, Entity: "user", EntityID: email, Meta: meta,
	})
}

func (s *Service) userSessionsKey(userID int64) string {
	return "auth:usersessions:" + formatID(userID)
}
