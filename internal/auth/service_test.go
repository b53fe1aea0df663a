package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pim/meridian/internal/auth"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

type stubCreds struct {
	mu      sync.Mutex
	byEmail map[string]*users.User
	byID    map[int64]*users.User
}

func newStubCreds(list ...*users.User) *stubCreds {
	s := &stubCreds{byEmail: map[string]*users.User{}, byID: map[int64]*users.User{}}
	for _, u := range list {
		s.byEmail[u.Email] = u
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubCreds) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "user not found")
	}
	copied := *u
	return &copied, nil
}

func (s *stubCreds) GetByID(ctx context.Context, id int64) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "user not found")
	}
	copied := *u
	return &copied, nil
}

func (s *stubCreds) SetStatus(ctx context.Context, actorID, userID int64, status users.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return shared.E(shared.KindNotFound, "user not found")
	}
	u.Status = status
	return nil
}

type stubVerifier struct {
	codeErr   error
	backupHit bool
}

func (s *stubVerifier) VerifyCode(ctx context.Context, userID int64, secret, code string) error {
	return s.codeErr
}

func (s *stubVerifier) ConsumeBackupCode(ctx context.Context, user *users.User, code string) (bool, error) {
	return s.backupHit, nil
}

func activeUser(t *testing.T, id int64, email, password string) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &users.User{
		ID: id, Email: email, PasswordHash: string(hash),
		Role: users.RoleEditor, Status: users.StatusActive,
	}
}

func newAuthService(t *testing.T, creds *stubCreds, verifier auth.CodeVerifier) *auth.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	issuer := auth.NewIssuer("test-secret", 15*time.Minute)
	store := auth.NewRedisTokenStore(rdb, "auth")
	if verifier == nil {
		verifier = &stubVerifier{}
	}
	return auth.NewService(creds, issuer, store, rdb, verifier, nil, auth.Config{
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       time.Hour,
		LockoutThreshold: 5,
		LockoutWindow:    15 * time.Minute,
	})
}

func TestLoginIssuesTokenPair(t *testing.T) {
	creds := newStubCreds(activeUser(t, 1, "ana@meridian.test", "correct-horse-1"))
	svc := newAuthService(t, creds, nil)

	result, err := svc.Login(context.Background(), "Ana@Meridian.test", "correct-horse-1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	user, claims, err := svc.CurrentUser(context.Background(), result.AccessToken)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("expected user 1, got %d", user.ID)
	}
	if claims.SessionID == "" {
		t.Fatal("expected session id in claims")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	creds := newStubCreds(activeUser(t, 1, "ana@meridian.test", "correct-horse-1"))
	svc := newAuthService(t, creds, nil)

	_, err := svc.Login(context.Background(), "ana@meridian.test", "wrong", "")
	if !shared.IsKind(err, shared.KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginLockoutAfterThreshold(t *testing.T) {
	creds := newStubCreds(activeUser(t, 1, "ana@meridian.test", "correct-horse-1"))
	svc := newAuthService(t, creds, nil)

	for i := 0; i < 4; i++ {
		if _, err := svc.Login(context.Background(), "ana@meridian.test", "wrong", ""); !shared.IsKind(err, shared.KindInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	// Fifth failure crosses the threshold.
	if _, err := svc.Login(context.Background(), "ana@meridian.test", "wrong", ""); !shared.IsKind(err, shared.KindAccountLocked) {
		t.Fatalf("expected account locked on fifth failure, got %v", err)
	}
	// The correct password no longer helps.
	if _, err := svc.Login(context.Background(), "ana@meridian.test", "correct-horse-1", ""); !shared.IsKind(err, shared.KindAccountLocked) {
		t.Fatalf("expected locked account to reject correct password, got %v", err)
	}
}

func TestUnlockRestoresLogin(t *testing.T) {
	creds := newStubCreds(activeUser(t, 1, "ana@meridian.test", "correct-horse-1"))
	svc := newAuthService(t, creds, nil)

	for i := 0; i < 5; i++ {
		_, _ = svc.Login(context.Background(), "ana@meridian.test", "wrong", "")
	}
	if creds.byID[1].Status != users.StatusLocked {
		t.Fatalf("expected LOCKED, got %s", creds.byID[1].Status)
	}

	if err := svc.Unlock(context.Background(), 99, 1); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := svc.Login(context.Background(), "ana@meridian.test", "correct-horse-1", ""); err != nil {
		t.Fatalf("login after unlock: %v", err)
	}
}

func TestLoginRequiresTwoFactorCode(t *testing.T) {
	user := activeUser(t, 1, "ana@meridian.test", "correct-horse-1")
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = "SECRET"
	creds := newStubCreds(user)
	svc := newAuthService(t, creds, &stubVerifier{codeErr: shared.E(shared.KindInvalidCredentials, "bad code")})

	_, err := svc.Login(context.Background(), "ana@meridian.test", "correct-horse-1", "")
	if !shared.IsKind(err, shared.KindRequiresTwoFactor) {
		t.Fatalf("expected 2fa required, got %v", err)
	}
	_, err = svc.Login(context.Background(), "ana@meridian.test", "correct-horse-1", "000000")
	if !shared.IsKind(err, shared.KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials for bad code, got %v", err)
	}
}

func TestLoginAcceptsBackupCodeFallback(t *testing.T) {
	user := activeUser(t, 1, "ana@meridian.test", "correct-horse-1")
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = "SECRET"
	creds := newStubCreds(user)
	svc := newAuthService(t, creds, &stubVerifier{
		codeErr:   shared.E(shared.KindInvalidCredentials, "bad code"),
		backupHit: true,
	})

	if _, err := svc.Login(context.Background(), "ana@meridian.test", "correct-horse-1", "abc123def4"); err != nil {
		t.Fatalf("login with backup code: %v", err)
	}
}

func TestRefreshRotationExactlyOnce(t *testing.T) {
	creds := newStubCreds(activeUser(t, 1, "ana@meridian.test", "correct-horse-1"))
	svc := newAuthService(t, creds, nil)

	result, err := svc.Login(context.Background(), "ana@meridian.test", "correct-horse-1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	successes := make(chan *auth.TokenPair, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pair, err := svc.RefreshTokens(context.Background(), result.RefreshToken); err == nil {
				successes <- pair
			}
		}()
	}
	wg.Wait()
	close(successes)

	var winners []*auth.TokenPair
	for pair := range successes {
		winners = append(winners, pair)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", len(winners))
	}

	// The retired token never authenticates again.
	if _, err := svc.RefreshTokens(context.Background(), result.RefreshToken); !shared.IsKind(err, shared.KindInvalidRefresh) {
		t.Fatalf("expected invalid refresh for rotated token, got %v", err)
	}
	// The winner's replacement still works.
	if _, err := svc.RefreshTokens(context.Background(), winners[0].RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestLogoutInvalidatesSessions(t *testing.T) {
	creds := newStubCreds(activeUser(t, 1, "ana@meridian.test", "correct-horse-1"))
	svc := newAuthService(t, creds, nil)

	result, err := svc.Login(context.Background(), "ana@meridian.test", "correct-horse-1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(context.Background(), 1); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := svc.CurrentUser(context.Background(), result.AccessToken); !shared.IsKind(err, shared.KindInvalidToken) {
		t.Fatalf("expected dead session after logout, got %v", err)
	}
	if _, err := svc.RefreshTokens(context.Background(), result.RefreshToken); !shared.IsKind(err, shared.KindInvalidRefresh) {
		t.Fatalf("expected dead refresh after logout, got %v", err)
	}
}
