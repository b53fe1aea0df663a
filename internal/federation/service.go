package federation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/unicode/norm"

	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
)

const (
	syncLockTTL      = 10 * time.Minute
	searchAttempts   = 3
	searchBackoff    = 500 * time.Millisecond
	syncHistoryLimit = 50
)

// UserWriter is the slice of the user service that sync writes through.
type UserWriter interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	Create(ctx context.Context, email, name, password string, role users.Role, department string) (*users.User, error)
	Update(ctx context.Context, id int64, patch users.Patch) (*users.User, error)
}

// Service manages directory federation: connection profiles, delegated
// authentication and scheduled user sync.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	directory Directory
	userSvc   UserWriter
	rdb       *redis.Client
	activity  shared.ActivityRecorder
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo RepositoryPort, directory Directory, userSvc UserWriter, rdb *redis.Client, activity shared.ActivityRecorder) *Service {
	if activity == nil {
		activity = shared.NopActivityRecorder{}
	}
	return &Service{
		logger:    logger,
		repo:      repo,
		directory: directory,
		userSvc:   userSvc,
		rdb:       rdb,
		activity:  activity,
		now:       time.Now,
	}
}

// Configure validates and stores the tenant's LDAP profile.
func (s *Service) Configure(ctx context.Context, actorID int64, cfg LDAPConfig) (*LDAPConfig, error) {
	if strings.TrimSpace(cfg.Tenant) == "" {
		return nil, shared.E(shared.KindValidation, "tenant is required")
	}
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 {
		return nil, shared.E(shared.KindValidation, "host and port are required")
	}
	if strings.TrimSpace(cfg.BaseDN) == "" {
		return nil, shared.E(shared.KindValidation, "base_dn is required")
	}
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(objectClass=person)"
	}
	if cfg.EmailAttr == "" {
		cfg.EmailAttr = "mail"
	}
	if cfg.NameAttr == "" {
		cfg.NameAttr = "cn"
	}
	if cfg.DeptAttr == "" {
		cfg.DeptAttr = "department"
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = users.RoleViewer
	}
	if !cfg.DefaultRole.Valid() {
		return nil, shared.E(shared.KindValidation, "unknown default role")
	}
	stored, err := s.repo.UpsertLDAP(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: "federation.ldap.configure", Entity: "ldap_config", EntityID: cfg.Tenant,
	})
	return stored, nil
}

// ConfigureSSO validates and stores the tenant's SSO provider settings.
func (s *Service) ConfigureSSO(ctx context.Context, actorID int64, cfg SSOProviderConfig) (*SSOProviderConfig, error) {
	if strings.TrimSpace(cfg.Tenant) == "" {
		return nil, shared.E(shared.KindValidation, "tenant is required")
	}
	if strings.TrimSpace(cfg.Provider) == "" || strings.TrimSpace(cfg.ClientID) == "" {
		return nil, shared.E(shared.KindValidation, "provider and client_id are required")
	}
	stored, err := s.repo.UpsertSSO(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, shared.ActivityEvent{
		ActorID: actorID, Action: "federation.sso.configure", Entity: "sso_config", EntityID: cfg.Tenant,
	})
	return stored, nil
}

// GetConfig returns the stored LDAP profile for the tenant.
func (s *Service) GetConfig(ctx context.Context, tenant string) (*LDAPConfig, error) {
	return s.repo.GetLDAP(ctx, tenant)
}

// GetSSOConfig returns the stored SSO settings for the tenant.
func (s *Service) GetSSOConfig(ctx context.Context, tenant string) (*SSOProviderConfig, error) {
	return s.repo.GetSSO(ctx, tenant)
}

// Authenticate verifies credentials against the external directory and
// returns the matching local account, provisioning one on first login.
func (s *Service) Authenticate(ctx context.Context, tenant, email, password string) (*users.User, error) {
	cfg, err := s.activeConfig(ctx, tenant)
	if err != nil {
		return nil, err
	}
	email = users.NormalizeEmail(email)
	if err := s.directory.Bind(ctx, *cfg, email, password); err != nil {
		return nil, err
	}
	user, err := s.userSvc.GetByEmail(ctx, email)
	if shared.IsKind(err, shared.KindNotFound) {
		return s.userSvc.Create(ctx, email, email, randomSecret(), cfg.DefaultRole, "")
	}
	return user, err
}

// TestConnection probes the submitted settings without touching stored
// configuration.
func (s *Service) TestConnection(ctx context.Context, cfg LDAPConfig) TestResult {
	if err := s.directory.Ping(ctx, cfg); err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{Success: true, Message: "connection established"}
}

// SyncUsers pulls the directory snapshot and upserts local accounts by
// email. Runs for the same tenant are serialized through a redis lock; a
// second invocation while one is running fails with SYNC_IN_PROGRESS.
// Re-running against an unchanged directory imports and updates nothing.
func (s *Service) SyncUsers(ctx context.Context, tenant string) (*SyncResult, error) {
	cfg, err := s.activeConfig(ctx, tenant)
	if err != nil {
		return nil, err
	}

	lockKey := shared.DirectorySyncLockKey(tenant)
	acquired, err := s.rdb.SetNX(ctx, lockKey, "1", syncLockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, shared.E(shared.KindSyncInProgress, "a directory sync is already running for this tenant")
	}
	// Release with a detached context so cancellation does not leak the lock.
	defer s.rdb.Del(context.WithoutCancel(ctx), lockKey)

	started := s.now().UTC()
	entries, err := s.searchWithRetry(ctx, *cfg)
	if err != nil {
		s.appendLog(ctx, SyncLog{
			Tenant: tenant, Status: SyncStatusFailed, Message: err.Error(),
			StartedAt: started, FinishedAt: ptrTime(s.now().UTC()),
		})
		return nil, err
	}

	result := s.applyEntries(ctx, *cfg, entries)

	finished := s.now().UTC()
	s.appendLog(ctx, SyncLog{
		Tenant: tenant, Status: SyncStatusSuccess,
		Imported: result.Imported, Updated: result.Updated,
		Skipped: result.Skipped, Failed: result.Failed,
		StartedAt: started, FinishedAt: &finished,
	})
	s.activity.Record(ctx, shared.ActivityEvent{
		Action: "federation.sync", Entity: "ldap_config", EntityID: tenant,
		Meta: map[string]any{
			"imported": result.Imported, "updated": result.Updated,
			"skipped": result.Skipped, "failed": result.Failed,
		},
	})
	return result, nil
}

// SyncHistory lists recent sync runs, newest first.
func (s *Service) SyncHistory(ctx context.Context, tenant string) ([]SyncLog, error) {
	return s.repo.SyncHistory(ctx, tenant, syncHistoryLimit)
}

func (s *Service) activeConfig(ctx context.Context, tenant string) (*LDAPConfig, error) {
	cfg, err := s.repo.GetLDAP(ctx, tenant)
	if shared.IsKind(err, shared.KindNotFound) {
		return nil, shared.E(shared.KindNotConfigured, "directory federation is not configured")
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, shared.E(shared.KindNotConfigured, "directory federation is disabled")
	}
	return cfg, nil
}

func (s *Service) searchWithRetry(ctx context.Context, cfg LDAPConfig) ([]DirectoryEntry, error) {
	var lastErr error
	backoff := searchBackoff
	for attempt := 1; attempt <= searchAttempts; attempt++ {
		entries, err := s.directory.Search(ctx, cfg)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		s.logger.Warn("directory search failed",
			slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt == searchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

// applyEntries upserts directory entries one by one. Cancellation stops
// scheduling further entries; already-written accounts stay written.
func (s *Service) applyEntries(ctx context.Context, cfg LDAPConfig, entries []DirectoryEntry) *SyncResult {
	result := &SyncResult{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Skipped++
			continue
		}
		email := users.NormalizeEmail(entry.Email)
		if email == "" {
			result.Skipped++
			continue
		}
		name := norm.NFC.String(strings.TrimSpace(entry.Name))
		dept := norm.NFC.String(strings.TrimSpace(entry.Department))

		existing, err := s.userSvc.GetByEmail(ctx, email)
		switch {
		case shared.IsKind(err, shared.KindNotFound):
			if _, err := s.userSvc.Create(ctx, email, name, randomSecret(), cfg.DefaultRole, dept); err != nil {
				result.Failed++
				s.logger.Warn("sync create failed", slog.String("email", email), slog.Any("error", err))
				continue
			}
			result.Imported++
		case err != nil:
			result.Failed++
			s.logger.Warn("sync lookup failed", slog.String("email", email), slog.Any("error", err))
		default:
			patch := users.Patch{}
			if existing.Name != name && name != "" {
				patch.Name = &name
			}
			if existing.Department != dept {
				patch.Department = &dept
			}
			if patch.Name == nil && patch.Department == nil {
				result.Skipped++
				continue
			}
			if _, err := s.userSvc.Update(ctx, existing.ID, patch); err != nil {
				result.Failed++
				s.logger.Warn("sync update failed", slog.String("email", email), slog.Any("error", err))
				continue
			}
			result.Updated++
		}
	}
	return result
}

func (s *Service) appendLog(ctx context.Context, entry SyncLog) {
	if _, err := s.repo.AppendSyncLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("append sync log", slog.Any("error", err))
	}
}

// randomSecret seeds the local password hash for directory-provisioned
// accounts; those accounts authenticate through the directory, never with
// this value.
func randomSecret() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
