package users_test

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

type stubUserRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*users.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{nextID: 1, rows: map[int64]*users.User{}}
}

func (r *stubUserRepo) seed(u users.User) *users.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.ID = r.nextID
	r.nextID++
	r.rows[u.ID] = &u
	copied := u
	return &copied
}

func (r *stubUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == email {
			copied := *row
			return &copied, nil
		}
	}
	return nil, shared.E(shared.KindNotFound, "user not found")
}

func (r *stubUserRepo) GetByID(ctx context.Context, id int64) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "user not found")
	}
	copied := *row
	return &copied, nil
}

func (r *stubUserRepo) Create(ctx context.Context, user users.User) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == user.Email {
			return nil, shared.E(shared.KindConflict, "email already registered")
		}
	}
	user.ID = r.nextID
	r.nextID++
	r.rows[user.ID] = &user
	copied := user
	return &copied, nil
}

func (r *stubUserRepo) Update(ctx context.Context, id int64, patch users.Patch) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "user not found")
	}
	if patch.Name != nil {
		row.Name = *patch.Name
	}
	if patch.Role != nil {
		row.Role = *patch.Role
	}
	if patch.Status != nil {
		row.Status = *patch.Status
	}
	if patch.Department != nil {
		row.Department = *patch.Department
	}
	copied := *row
	return &copied, nil
}

func (r *stubUserRepo) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return shared.E(shared.KindNotFound, "user not found")
	}
	row.PasswordHash = passwordHash
	return nil
}

func (r *stubUserRepo) SetStatus(ctx context.Context, id int64, status users.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return shared.E(shared.KindNotFound, "user not found")
	}
	row.Status = status
	return nil
}

func (r *stubUserRepo) SetTwoFactor(ctx context.Context, id int64, secret string, backupCodeHashes []string) error {
	return nil
}

func (r *stubUserRepo) ClearTwoFactor(ctx context.Context, id int64) error {
	return nil
}

func (r *stubUserRepo) ReplaceBackupCodes(ctx context.Context, id int64, backupCodeHashes []string) error {
	return nil
}

func (r *stubUserRepo) List(ctx context.Context) ([]users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]users.User, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, *row)
	}
	return out, nil
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Ana@Meridian.TEST ": "ana@meridian.test",
		"bo@meridian.test":     "bo@meridian.test",
		"  ":                   "",
	}
	for in, want := range cases {
		if got := users.NormalizeEmail(in); got != want {
			t.Fatalf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateNormalizesAndHashes(t *testing.T) {
	repo := newStubUserRepo()
	svc := users.NewService(repo, nil)

	user, err := svc.Create(context.Background(), "  Ana@Meridian.TEST ", "Ana", "password-123", users.RoleEditor, "Catalog")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Email != "ana@meridian.test" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Status != users.StatusActive {
		t.Fatalf("expected new accounts active, got %s", user.Status)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password-123")) != nil {
		t.Fatal("stored hash does not match the password")
	}

	// Differently-cased duplicates collide.
	if _, err := svc.Create(context.Background(), "ANA@meridian.test", "Ana 2", "password-123", users.RoleViewer, ""); !shared.IsKind(err, shared.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc := users.NewService(newStubUserRepo(), nil)
	if _, err := svc.Create(context.Background(), "x@meridian.test", "X", "password-123", users.Role("SUPERUSER"), ""); !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestUpdateValidatesRoleAndStatus(t *testing.T) {
	repo := newStubUserRepo()
	seeded := repo.seed(users.User{Email: "ana@meridian.test", Role: users.RoleViewer, Status: users.StatusActive})
	svc := users.NewService(repo, nil)

	badRole := users.Role("SUPERUSER")
	if _, err := svc.Update(context.Background(), seeded.ID, users.Patch{Role: &badRole}); !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	badStatus := users.Status("FROZEN")
	if _, err := svc.Update(context.Background(), seeded.ID, users.Patch{Status: &badStatus}); !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	role := users.RoleAdmin
	updated, err := svc.Update(context.Background(), seeded.ID, users.Patch{Role: &role})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Role != users.RoleAdmin {
		t.Fatalf("expected role change applied, got %s", updated.Role)
	}
}

func TestAdminResetPassword(t *testing.T) {
	repo := newStubUserRepo()
	seeded := repo.seed(users.User{Email: "ana@meridian.test", Role: users.RoleViewer, Status: users.StatusActive})
	svc := users.NewService(repo, nil)

	if err := svc.AdminResetPassword(context.Background(), 9, seeded.ID, "short"); !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if err := svc.AdminResetPassword(context.Background(), 9, seeded.ID, "fresh-password-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stored, err := repo.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("fresh-password-1")) != nil {
		t.Fatal("stored hash does not match the new password")
	}
}

func TestBulkSetStatusReportsPerUserOutcomes(t *testing.T) {
	repo := newStubUserRepo()
	a := repo.seed(users.User{Email: "a@meridian.test", Role: users.RoleViewer, Status: users.StatusActive})
	b := repo.seed(users.User{Email: "b@meridian.test", Role: users.RoleViewer, Status: users.StatusActive})
	svc := users.NewService(repo, nil)

	results, err := svc.BulkSetStatus(context.Background(), 9, []int64{a.ID, 404, b.ID}, users.StatusDeactivated)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(results))
	}
	byID := map[int64]users.BulkResult{}
	for _, res := range results {
		byID[res.UserID] = res
	}
	if !byID[a.ID].OK || !byID[b.ID].OK {
		t.Fatalf("expected existing users to succeed, got %+v", results)
	}
	if byID[404].OK || byID[404].Error == "" {
		t.Fatalf("expected the missing user to fail with a message, got %+v", byID[404])
	}

	// A bad id never fails the rest of the batch.
	for _, id := range []int64{a.ID, b.ID} {
		stored, err := repo.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if stored.Status != users.StatusDeactivated {
			t.Fatalf("expected user %d deactivated, got %s", id, stored.Status)
		}
	}
}

func TestBulkAssignRole(t *testing.T) {
	repo := newStubUserRepo()
	a := repo.seed(users.User{Email: "a@meridian.test", Role: users.RoleViewer, Status: users.StatusActive})
	b := repo.seed(users.User{Email: "b@meridian.test", Role: users.RoleViewer, Status: users.StatusActive})
	svc := users.NewService(repo, nil)

	if _, err := svc.BulkAssignRole(context.Background(), 9, []int64{a.ID}, users.Role("SUPERUSER")); !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	results, err := svc.BulkAssignRole(context.Background(), 9, []int64{a.ID, b.ID}, users.RoleReviewer)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	for _, res := range results {
		if !res.OK {
			t.Fatalf("expected success for %d, got %+v", res.UserID, res)
		}
	}
	stored, err := repo.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Role != users.RoleReviewer {
		t.Fatalf("expected role assigned, got %s", stored.Role)
	}
}
