package permissions

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

// Service layers time-bounded custom grants over role defaults.
type Service struct {
	repo     RepositoryPort
	activity shared.ActivityRecorder
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, activity shared.ActivityRecorder) *Service {
	if activity == nil {
		activity = shared.NopActivityRecorder{}
	}
	return &Service{repo: repo, activity: activity, now: time.Now}
}

// Grant records a custom permission. Granting while an unexpired,
// unrevoked grant for the same (permission, scope) exists refreshes its
// expiry instead of stacking a second active row, so permission checks
// never double-count. A non-empty reason is mandatory.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*Grant, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, shared.E(shared.KindValidation, "a reason is required for every grant")
	}
	if strings.TrimSpace(req.Permission) == "" {
		return nil, shared.E(shared.KindValidation, "permission is required")
	}
	now := s.now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, shared.E(shared.KindValidation, "expires_at must be in the future")
	}

	existing, err := s.repo.FindActive(ctx, req.UserID, req.Permission, req.ResourceType, req.ResourceID, now)
	if err == nil {
		refreshed, err := s.repo.RefreshExpiry(ctx, existing.ID, req.ExpiresAt)
		if err != nil {
			return nil, err
		}
		s.record(ctx, req.GrantedBy, "permission.grant.refresh", req)
		return refreshed, nil
	}
	if !shared.IsKind(err, shared.KindNotFound) {
		return nil, err
	}

	grant, err := s.repo.Insert(ctx, Grant{
		UserID:       req.UserID,
		Permission:   req.Permission,
		GrantedBy:    req.GrantedBy,
		ExpiresAt:    req.ExpiresAt,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Reason:       req.Reason,
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, req.GrantedBy, "permission.grant", req)
	return grant, nil
}

// Revoke stamps revocation fields on an active grant; history is kept.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) error {
	if strings.TrimSpace(req.Reason) == "" {
		return shared.E(shared.KindValidation, "a reason is required for every revocation")
	}
	touched, err := s.repo.Revoke(ctx, req.UserID, req.GrantID, req.RevokedBy, req.Reason, s.now().UTC())
	if err != nil {
		return err
	}
	if touched == 0 {
		return shared.E(shared.KindPermissionNotFound, "no matching active grant")
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: req.RevokedBy, Action: "permission.revoke", Entity: "permission_grant",
		EntityID: strconv.FormatInt(req.GrantID, 10),
		Meta:     map[string]any{"user_id": req.UserID, "reason": req.Reason},
	})
	return nil
}

// EffectivePermissions returns the sorted union of role defaults and
// active custom grants, optionally filtered to a resource scope. Grants
// scoped to a resource only apply when the query asks about that resource.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64, role users.Role, scope *ResourceScope) ([]string, error) {
	set := make(map[string]struct{})
	for _, p := range RoleDefaults(role) {
		set[p] = struct{}{}
	}
	grants, err := s.repo.ActiveForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.ResourceType != "" {
			if scope == nil || scope.Type != g.ResourceType || scope.ID != g.ResourceID {
				continue
			}
		}
		set[g.Permission] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// History returns the append-only grant trail for a user.
func (s *Service) History(ctx context.Context, userID int64) ([]Grant, error) {
	return s.repo.HistoryForUser(ctx, userID)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, req GrantRequest) {
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: action, Entity: "permission_grant",
		EntityID: strconv.FormatInt(req.UserID, 10),
		Meta:     map[string]any{"permission": req.Permission, "reason": req.Reason},
	})
}
