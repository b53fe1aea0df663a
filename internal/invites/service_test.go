package invites_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/invites"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

type stubDirectory struct {
	mu      sync.Mutex
	byEmail map[string]*users.User
	nextID  int64
}

func newStubDirectory(existing ...string) *stubDirectory {
	d := &stubDirectory{byEmail: map[string]*users.User{}, nextID: 1}
	for _, email := range existing {
		d.register(email)
	}
	return d
}

func (d *stubDirectory) register(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[email] = &users.User{ID: d.nextID, Email: email}
	d.nextID++
}

func (d *stubDirectory) remove(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byEmail, email)
}

func (d *stubDirectory) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byEmail[email]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "user not found")
	}
	copied := *u
	return &copied, nil
}

func (d *stubDirectory) insert(email, name string, role users.Role) (*users.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[email]; ok {
		return nil, shared.E(shared.KindConflict, "email already registered")
	}
	u := &users.User{ID: d.nextID, Email: email, Name: name, Role: role, Status: users.StatusActive}
	d.nextID++
	d.byEmail[email] = u
	copied := *u
	return &copied, nil
}

type stubInviteRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*invites.Invitation
	users  *stubDirectory
}

func newStubInviteRepo(dir *stubDirectory) *stubInviteRepo {
	return &stubInviteRepo{nextID: 1, rows: map[int64]*invites.Invitation{}, users: dir}
}

func (r *stubInviteRepo) Create(ctx context.Context, invitation invites.Invitation) (*invites.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invitation.ID = r.nextID
	r.nextID++
	invitation.Status = invites.StatusPending
	invitation.CreatedAt = time.Now().UTC()
	r.rows[invitation.ID] = &invitation
	copied := invitation
	return &copied, nil
}

func (r *stubInviteRepo) GetByID(ctx context.Context, id int64) (*invites.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "invitation not found")
	}
	copied := *row
	return &copied, nil
}

func (r *stubInviteRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*invites.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == tokenHash {
			copied := *row
			return &copied, nil
		}
	}
	return nil, shared.E(shared.KindNotFound, "invitation not found")
}

func (r *stubInviteRepo) FindPendingByEmail(ctx context.Context, email string) (*invites.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == email && row.Status == invites.StatusPending {
			copied := *row
			return &copied, nil
		}
	}
	return nil, shared.E(shared.KindNotFound, "invitation not found")
}

func (r *stubInviteRepo) UpdateToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) (*invites.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != invites.StatusPending {
		return nil, shared.E(shared.KindNotFound, "invitation not found")
	}
	row.TokenHash = tokenHash
	row.ExpiresAt = expiresAt
	copied := *row
	return &copied, nil
}

func (r *stubInviteRepo) MarkCancelled(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != invites.StatusPending {
		return shared.E(shared.KindNotFound, "invitation not found")
	}
	row.Status = invites.StatusCancelled
	return nil
}

// AcceptAndCreateUser matches the transactional contract: the status flip
// and the account insert succeed or fail together.
func (r *stubInviteRepo) AcceptAndCreateUser(ctx context.Context, tokenHash string, now time.Time, name, passwordHash string) (*invites.Invitation, *users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == tokenHash && row.Status == invites.StatusPending && row.ExpiresAt.After(now) {
			user, err := r.users.insert(row.Email, name, row.Role)
			if err != nil {
				return nil, nil, err
			}
			row.Status = invites.StatusAccepted
			copied := *row
			return &copied, user, nil
		}
	}
	return nil, nil, shared.E(shared.KindNotFound, "invitation not found")
}

func (r *stubInviteRepo) List(ctx context.Context, status *invites.Status) ([]invites.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invites.Invitation
	for _, row := range r.rows {
		if status != nil && row.Status != *status {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

type inviteMailer struct {
	mu     sync.Mutex
	tokens []string
}

func (m *inviteMailer) EnqueueInvitation(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	return nil
}

func newInviteService(t *testing.T, repo *stubInviteRepo, dir *stubDirectory) (*invites.Service, *inviteMailer) {
	t.Helper()
	mailer := &inviteMailer{}
	return invites.NewService(repo, dir, mailer, nil, nil, 7*24*time.Hour), mailer
}

func TestSendInvitationRejectsDuplicates(t *testing.T) {
	dir := newStubDirectory("taken@meridian.test")
	repo := newStubInviteRepo(dir)
	svc, _ := newInviteService(t, repo, dir)

	if _, err := svc.SendInvitation(context.Background(), "taken@meridian.test", users.RoleEditor, 9); !shared.IsKind(err, shared.KindInviteUserExists) {
		t.Fatalf("expected user-exists rejection, got %v", err)
	}

	if _, err := svc.SendInvitation(context.Background(), "new@meridian.test", users.RoleEditor, 9); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.SendInvitation(context.Background(), "new@meridian.test", users.RoleEditor, 9); !shared.IsKind(err, shared.KindInvitePending) {
		t.Fatalf("expected pending rejection, got %v", err)
	}
}

func TestAcceptInvitationCreatesUserOnce(t *testing.T) {
	dir := newStubDirectory()
	repo := newStubInviteRepo(dir)
	svc, mailer := newInviteService(t, repo, dir)

	if _, err := svc.SendInvitation(context.Background(), "new@meridian.test", users.RoleReviewer, 9); err != nil {
		t.Fatalf("send: %v", err)
	}
	token := mailer.tokens[0]

	user, err := svc.AcceptInvitation(context.Background(), token, "New Person", "password-123")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if user.Role != users.RoleReviewer {
		t.Fatalf("expected invitation role carried over, got %s", user.Role)
	}

	if _, err := svc.AcceptInvitation(context.Background(), token, "New Person", "password-123"); !shared.IsKind(err, shared.KindInviteUsed) {
		t.Fatalf("expected second accept to fail as already used, got %v", err)
	}
}

func TestAcceptFailureLeavesInvitationPending(t *testing.T) {
	dir := newStubDirectory()
	repo := newStubInviteRepo(dir)
	svc, mailer := newInviteService(t, repo, dir)

	invitation, err := svc.SendInvitation(context.Background(), "late@meridian.test", users.RoleEditor, 9)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	// The email gets registered between send and accept.
	dir.register("late@meridian.test")

	if _, err := svc.AcceptInvitation(context.Background(), mailer.tokens[0], "Late", "password-123"); !shared.IsKind(err, shared.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	row, err := repo.GetByID(context.Background(), invitation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Status != invites.StatusPending {
		t.Fatalf("failed account creation must not burn the invitation, got %s", row.Status)
	}

	// Once the conflicting account is gone, the same token still works.
	dir.remove("late@meridian.test")
	if _, err := svc.AcceptInvitation(context.Background(), mailer.tokens[0], "Late", "password-123"); err != nil {
		t.Fatalf("accept after conflict cleared: %v", err)
	}
}

func TestAcceptExpiredInvitation(t *testing.T) {
	dir := newStubDirectory()
	repo := newStubInviteRepo(dir)
	svc, mailer := newInviteService(t, repo, dir)

	if _, err := svc.SendInvitation(context.Background(), "late@meridian.test", users.RoleViewer, 9); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Force the stored row past its expiry.
	repo.mu.Lock()
	for _, row := range repo.rows {
		row.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
	repo.mu.Unlock()

	if _, err := svc.AcceptInvitation(context.Background(), mailer.tokens[0], "Late", "password-123"); !shared.IsKind(err, shared.KindInviteExpired) {
		t.Fatalf("expected expired rejection, got %v", err)
	}
}

func TestAcceptUnknownToken(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newInviteService(t, newStubInviteRepo(dir), dir)
	if _, err := svc.AcceptInvitation(context.Background(), "no-such-token", "X", "password-123"); !shared.IsKind(err, shared.KindInviteInvalid) {
		t.Fatalf("expected invalid token rejection, got %v", err)
	}
}

func TestResendRegeneratesToken(t *testing.T) {
	dir := newStubDirectory()
	repo := newStubInviteRepo(dir)
	svc, mailer := newInviteService(t, repo, dir)

	invitation, err := svc.SendInvitation(context.Background(), "new@meridian.test", users.RoleEditor, 9)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.ResendInvitation(context.Background(), 9, invitation.ID); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(mailer.tokens) != 2 || mailer.tokens[0] == mailer.tokens[1] {
		t.Fatal("expected a fresh token on resend")
	}

	// The original token no longer matches anything.
	if _, err := svc.AcceptInvitation(context.Background(), mailer.tokens[0], "X", "password-123"); !shared.IsKind(err, shared.KindInviteInvalid) {
		t.Fatalf("expected retired token to fail, got %v", err)
	}
	if _, err := svc.AcceptInvitation(context.Background(), mailer.tokens[1], "X", "password-123"); err != nil {
		t.Fatalf("accept with fresh token: %v", err)
	}
}

func TestCancelAcceptedInvitationFails(t *testing.T) {
	dir := newStubDirectory()
	repo := newStubInviteRepo(dir)
	svc, mailer := newInviteService(t, repo, dir)

	invitation, err := svc.SendInvitation(context.Background(), "new@meridian.test", users.RoleEditor, 9)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.AcceptInvitation(context.Background(), mailer.tokens[0], "X", "password-123"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.CancelInvitation(context.Background(), 9, invitation.ID); !shared.IsKind(err, shared.KindInviteUsed) {
		t.Fatalf("expected cancel of accepted invite to fail, got %v", err)
	}
}

func TestListDerivesExpiredStatus(t *testing.T) {
	dir := newStubDirectory()
	repo := newStubInviteRepo(dir)
	svc, _ := newInviteService(t, repo, dir)

	if _, err := svc.SendInvitation(context.Background(), "old@meridian.test", users.RoleViewer, 9); err != nil {
		t.Fatalf("send: %v", err)
	}
	repo.mu.Lock()
	for _, row := range repo.rows {
		row.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	}
	repo.mu.Unlock()

	expired := invites.StatusExpired
	list, err := svc.ListInvitations(context.Background(), &expired)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Status != invites.StatusExpired {
		t.Fatalf("expected one EXPIRED invitation, got %+v", list)
	}

	pending := invites.StatusPending
	list, err = svc.ListInvitations(context.Background(), &pending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expired invitations must not present as PENDING, got %+v", list)
	}
}
