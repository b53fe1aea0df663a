package twofactor_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/twofactor"
	"github.com/meridian-pim/meridian/internal/users"
)

type stubWriter struct {
	secret     string
	codeHashes []string
	cleared    bool
	replacedTo []string
}

func (s *stubWriter) SetTwoFactor(ctx context.Context, id int64, secret string, backupCodeHashes []string) error {
	s.secret = secret
	s.codeHashes = backupCodeHashes
	return nil
}

func (s *stubWriter) ClearTwoFactor(ctx context.Context, id int64) error {
	s.cleared = true
	return nil
}

func (s *stubWriter) ReplaceBackupCodes(ctx context.Context, id int64, backupCodeHashes []string) error {
	s.replacedTo = backupCodeHashes
	return nil
}

func newTwoFactorService(t *testing.T) (*twofactor.Service, *stubWriter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	writer := &stubWriter{}
	return twofactor.NewService(writer, rdb, "Meridian PIM"), writer
}

func TestEnrollProducesMaterial(t *testing.T) {
	svc, _ := newTwoFactorService(t)

	enrollment, err := svc.Enroll(1, "ana@meridian.test", "")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if enrollment.Secret == "" {
		t.Fatal("expected a secret")
	}
	if enrollment.QRPayload == "" {
		t.Fatal("expected an otpauth provisioning payload")
	}
	if len(enrollment.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(enrollment.BackupCodes))
	}
	seen := map[string]bool{}
	for _, c := range enrollment.BackupCodes {
		if seen[c] {
			t.Fatalf("duplicate backup code %q", c)
		}
		seen[c] = true
	}
}

func TestActivatePersistsHashedCodes(t *testing.T) {
	svc, writer := newTwoFactorService(t)

	enrollment, err := svc.Enroll(1, "ana@meridian.test", "")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := svc.Activate(context.Background(), 1, enrollment.Secret, code, enrollment.BackupCodes); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if writer.secret != enrollment.Secret {
		t.Fatal("expected secret persisted")
	}
	if len(writer.codeHashes) != len(enrollment.BackupCodes) {
		t.Fatalf("expected %d hashes, got %d", len(enrollment.BackupCodes), len(writer.codeHashes))
	}
	for i, hash := range writer.codeHashes {
		if hash == enrollment.BackupCodes[i] {
			t.Fatal("backup codes must not be stored in plaintext")
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(enrollment.BackupCodes[i])) != nil {
			t.Fatalf("hash %d does not match its code", i)
		}
	}
}

func TestActivateRejectsWrongCode(t *testing.T) {
	svc, writer := newTwoFactorService(t)

	enrollment, err := svc.Enroll(1, "ana@meridian.test", "")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	err = svc.Activate(context.Background(), 1, enrollment.Secret, "000000", enrollment.BackupCodes)
	if !shared.IsKind(err, shared.KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if writer.secret != "" {
		t.Fatal("nothing may be persisted on a failed activation")
	}
}

func TestVerifyCodeRejectsReplay(t *testing.T) {
	svc, _ := newTwoFactorService(t)

	enrollment, err := svc.Enroll(1, "ana@meridian.test", "")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := svc.VerifyCode(context.Background(), 1, enrollment.Secret, code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	err = svc.VerifyCode(context.Background(), 1, enrollment.Secret, code)
	if !shared.IsKind(err, shared.KindInvalidCredentials) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestConsumeBackupCodeIsSingleUse(t *testing.T) {
	svc, writer := newTwoFactorService(t)

	code := "abc123def4"
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	otherHash, err := bcrypt.GenerateFromPassword([]byte("zzz999yyy8"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &users.User{ID: 1, BackupCodeHashes: []string{string(hash), string(otherHash)}}

	used, err := svc.ConsumeBackupCode(context.Background(), user, code)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !used {
		t.Fatal("expected the code to match")
	}
	if len(writer.replacedTo) != 1 {
		t.Fatalf("expected one remaining hash, got %d", len(writer.replacedTo))
	}

	// The store now holds only the remaining hash; a second use must miss.
	user.BackupCodeHashes = writer.replacedTo
	used, err = svc.ConsumeBackupCode(context.Background(), user, code)
	if err != nil {
		t.Fatalf("consume again: %v", err)
	}
	if used {
		t.Fatal("a burned backup code must not match again")
	}
}

func TestDisableClearsMaterial(t *testing.T) {
	svc, writer := newTwoFactorService(t)
	if err := svc.Disable(context.Background(), 1); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if !writer.cleared {
		t.Fatal("expected credential material cleared")
	}
}
