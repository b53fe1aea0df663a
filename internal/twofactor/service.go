// Package twofactor implements TOTP enrollment and verification. The
// service computes secrets and codes; persisting them is the caller's job
// through the credential store.
package twofactor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

const (
	backupCodeCount = 10
	totpPeriod      = 30
	// replayTTL covers the current step plus the accepted skew on both sides.
	replayTTL = 3 * totpPeriod * time.Second
)

// Enrollment is the material handed to a user starting two-factor setup.
// Nothing here is authoritative until the setup code is verified and the
// credential store persists it.
type Enrollment struct {
	Secret      string   `json:"secret"`
	QRPayload   string   `json:"qr_payload"`
	BackupCodes []string `json:"backup_codes"`
}

// CredentialWriter is the slice of the user directory this service writes.
type CredentialWriter interface {
	SetTwoFactor(ctx context.Context, id int64, secret string, backupCodeHashes []string) error
	ClearTwoFactor(ctx context.Context, id int64) error
	ReplaceBackupCodes(ctx context.Context, id int64, backupCodeHashes []string) error
}

// Service implements the two-factor state machine.
type Service struct {
	repo       CredentialWriter
	rdb        *redis.Client
	issuerName string
}

// NewService constructs a Service.
func NewService(repo CredentialWriter, rdb *redis.Client, issuerName string) *Service {
	if issuerName == "" {
		issuerName = "Meridian PIM"
	}
	return &Service{repo: repo, rdb: rdb, issuerName: issuerName}
}

// Enroll generates a fresh secret, its otpauth provisioning URL and a set
// of single-use backup codes. The account stays in pending state until
// Activate verifies a code minted from this secret.
func (s *Service) Enroll(userID int64, email, label string) (*Enrollment, error) {
	issuer := s.issuerName
	if label != "" {
		issuer = label
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, err
	}
	codes, err := newBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), QRPayload: key.URL(), BackupCodes: codes}, nil
}

// Activate verifies the setup code against the pending secret and, on
// success, persists the secret and hashed backup codes, completing the
// transition to ENABLED.
func (s *Service) Activate(ctx context.Context, userID int64, secret, code string, backupCodes []string) error {
	if err := s.VerifyCode(ctx, userID, secret, code); err != nil {
		return err
	}
	hashes := make([]string, 0, len(backupCodes))
	for _, c := range backupCodes {
		hash, err := bcrypt.GenerateFromPassword([]byte(c), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hashes = append(hashes, string(hash))
	}
	return s.repo.SetTwoFactor(ctx, userID, secret, hashes)
}

// VerifyCode checks a time-based code, tolerating one step of clock skew
// on either side. A code already accepted within its step is rejected to
// block replay.
func (s *Service) VerifyCode(ctx context.Context, userID int64, secret, code string) error {
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period: totpPeriod,
		Skew:   1,
		Digits: otp.DigitsSix,
	})
	if err != nil || !valid {
		return shared.E(shared.KindInvalidCredentials, "invalid two-factor code")
	}
	replayKey := fmt.Sprintf("twofactor:used:%d:%s", userID, code)
	fresh, err := s.rdb.SetNX(ctx, replayKey, 1, replayTTL).Result()
	if err != nil {
		return err
	}
	if !fresh {
		return shared.E(shared.KindInvalidCredentials, "two-factor code already used")
	}
	return nil
}

// Disable clears the secret and backup codes, returning to DISABLED.
func (s *Service) Disable(ctx context.Context, userID int64) error {
	return s.repo.ClearTwoFactor(ctx, userID)
}

// ConsumeBackupCode burns a matching backup code. Consuming one
// invalidates only that code; the rest stay usable.
func (s *Service) ConsumeBackupCode(ctx context.Context, user *users.User, code string) (bool, error) {
	for i, hash := range user.BackupCodeHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			remaining := make([]string, 0, len(user.BackupCodeHashes)-1)
			remaining = append(remaining, user.BackupCodeHashes[:i]...)
			remaining = append(remaining, user.BackupCodeHashes[i+1:]...)
			if err := s.repo.ReplaceBackupCodes(ctx, user.ID, remaining); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func newBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		b := make([]byte, 5)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		codes = append(codes, hex.EncodeToString(b))
	}
	return codes, nil
}
