package permissions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/permissions"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

type stubGrantRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*permissions.Grant
}

func newStubGrantRepo() *stubGrantRepo {
	return &stubGrantRepo{nextID: 1, rows: map[int64]*permissions.Grant{}}
}

func (r *stubGrantRepo) Insert(ctx context.Context, grant permissions.Grant) (*permissions.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grant.ID = r.nextID
	r.nextID++
	grant.GrantedAt = time.Now().UTC()
	r.rows[grant.ID] = &grant
	copied := grant
	return &copied, nil
}

func (r *stubGrantRepo) FindActive(ctx context.Context, userID int64, permission, resourceType, resourceID string, now time.Time) (*permissions.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.Permission == permission &&
			row.ResourceType == resourceType && row.ResourceID == resourceID && row.Active(now) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, shared.E(shared.KindNotFound, "grant not found")
}

func (r *stubGrantRepo) RefreshExpiry(ctx context.Context, id int64, expiresAt *time.Time) (*permissions.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "grant not found")
	}
	row.ExpiresAt = expiresAt
	copied := *row
	return &copied, nil
}

func (r *stubGrantRepo) Revoke(ctx context.Context, userID, grantID, revokedBy int64, reason string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[grantID]
	if !ok || row.UserID != userID || !row.Active(now) {
		return 0, nil
	}
	row.RevokedAt = &now
	row.RevokedBy = &revokedBy
	row.RevokeReason = reason
	return 1, nil
}

func (r *stubGrantRepo) ActiveForUser(ctx context.Context, userID int64, now time.Time) ([]permissions.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []permissions.Grant
	for _, row := range r.rows {
		if row.UserID == userID && row.Active(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *stubGrantRepo) HistoryForUser(ctx context.Context, userID int64) ([]permissions.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []permissions.Grant
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func contains(list []string, want string) bool {
	for _, p := range list {
		if p == want {
			return true
		}
	}
	return false
}

func TestGrantRequiresReason(t *testing.T) {
	svc := permissions.NewService(newStubGrantRepo(), nil)

	_, err := svc.Grant(context.Background(), permissions.GrantRequest{
		UserID: 1, Permission: permissions.PermUsersInvite, GrantedBy: 9,
	})
	if !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation failure without reason, got %v", err)
	}

	err = svc.Revoke(context.Background(), permissions.RevokeRequest{UserID: 1, GrantID: 1, RevokedBy: 9})
	if !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation failure without reason, got %v", err)
	}
}

func TestRepeatGrantDoesNotStack(t *testing.T) {
	repo := newStubGrantRepo()
	svc := permissions.NewService(repo, nil)

	req := permissions.GrantRequest{
		UserID: 1, Permission: permissions.PermUsersInvite, GrantedBy: 9, Reason: "coverage",
	}
	first, err := svc.Grant(context.Background(), req)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	later := time.Now().UTC().Add(48 * time.Hour)
	req.ExpiresAt = &later
	second, err := svc.Grant(context.Background(), req)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected refresh of grant %d, got new grant %d", first.ID, second.ID)
	}

	effective, err := svc.EffectivePermissions(context.Background(), 1, users.RoleViewer, nil)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	count := 0
	for _, p := range effective {
		if p == permissions.PermUsersInvite {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected the permission exactly once, got %d", count)
	}
}

func TestEffectiveExcludesExpiredGrant(t *testing.T) {
	repo := newStubGrantRepo()
	svc := permissions.NewService(repo, nil)

	past := time.Now().UTC().Add(-time.Hour)
	repo.rows[1] = &permissions.Grant{
		ID: 1, UserID: 1, Permission: permissions.PermUsersInvite,
		GrantedBy: 9, Reason: "expired", ExpiresAt: &past,
	}
	repo.nextID = 2

	effective, err := svc.EffectivePermissions(context.Background(), 1, users.RoleEditor, nil)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if contains(effective, permissions.PermUsersInvite) {
		t.Fatal("expired grant must not contribute")
	}
	if !contains(effective, permissions.PermCatalogEdit) {
		t.Fatal("role defaults must remain")
	}
}

func TestRevokeRemovesGrantKeepsHistory(t *testing.T) {
	repo := newStubGrantRepo()
	svc := permissions.NewService(repo, nil)

	grant, err := svc.Grant(context.Background(), permissions.GrantRequest{
		UserID: 1, Permission: permissions.PermCatalogPublish, GrantedBy: 9, Reason: "launch",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	err = svc.Revoke(context.Background(), permissions.RevokeRequest{
		UserID: 1, GrantID: grant.ID, RevokedBy: 9, Reason: "launch done",
	})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}

	effective, err := svc.EffectivePermissions(context.Background(), 1, users.RoleViewer, nil)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if contains(effective, permissions.PermCatalogPublish) {
		t.Fatal("revoked grant must not contribute")
	}

	history, err := svc.History(context.Background(), 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].RevokedAt == nil {
		t.Fatalf("expected revocation preserved in history, got %+v", history)
	}
	if history[0].Reason != "launch" {
		t.Fatalf("revocation must not overwrite the grant reason, got %q", history[0].Reason)
	}
	if history[0].RevokeReason != "launch done" {
		t.Fatalf("expected revocation reason recorded, got %q", history[0].RevokeReason)
	}

	err = svc.Revoke(context.Background(), permissions.RevokeRequest{
		UserID: 1, GrantID: grant.ID, RevokedBy: 9, Reason: "again",
	})
	if !shared.IsKind(err, shared.KindPermissionNotFound) {
		t.Fatalf("expected revoking twice to fail, got %v", err)
	}
}

func TestResourceScopedGrant(t *testing.T) {
	repo := newStubGrantRepo()
	svc := permissions.NewService(repo, nil)

	_, err := svc.Grant(context.Background(), permissions.GrantRequest{
		UserID: 1, Permission: permissions.PermCatalogEdit, GrantedBy: 9, Reason: "one catalog only",
		ResourceType: "catalog", ResourceID: "42",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	global, err := svc.EffectivePermissions(context.Background(), 1, users.RoleViewer, nil)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if contains(global, permissions.PermCatalogEdit) {
		t.Fatal("scoped grant must not apply globally")
	}

	scoped, err := svc.EffectivePermissions(context.Background(), 1, users.RoleViewer, &permissions.ResourceScope{Type: "catalog", ID: "42"})
	if err != nil {
		t.Fatalf("effective scoped: %v", err)
	}
	if !contains(scoped, permissions.PermCatalogEdit) {
		t.Fatal("scoped grant must apply to its resource")
	}
}
