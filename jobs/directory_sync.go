package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-pim/meridian/internal/federation"
	"github.com/meridian-pim/meridian/internal/shared"
)

// DirectorySyncJob runs a directory user sync for one tenant.
type DirectorySyncJob struct {
	Service *federation.Service
	Logger  *slog.Logger
}

// NewDirectorySyncJob initialises the directory sync handler.
func NewDirectorySyncJob(service *federation.Service, logger *slog.Logger) *DirectorySyncJob {
	return &DirectorySyncJob{Service: service, Logger: logger}
}

// Handle executes one federation:sync task. An already-running sync for
// the tenant and a missing configuration both end the task without retry;
// retrying would just hit the same condition.
func (j *DirectorySyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("directory sync: handler not configured")
	}
	var payload DirectorySyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	result, err := j.Service.SyncUsers(ctx, payload.Tenant)
	if err != nil {
		if shared.IsKind(err, shared.KindSyncInProgress) || shared.IsKind(err, shared.KindNotConfigured) {
			j.Logger.Info("directory sync skipped",
				slog.String("tenant", payload.Tenant), slog.Any("reason", err))
			return nil
		}
		j.Logger.Error("directory sync failed",
			slog.String("tenant", payload.Tenant), slog.Any("error", err))
		return err
	}
	j.Logger.Info("directory sync finished",
		slog.String("tenant", payload.Tenant),
		slog.Int("imported", result.Imported),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return nil
}
