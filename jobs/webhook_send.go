package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-pim/meridian/internal/notify"
)

// WebhookSendJob posts queued operational notifications.
type WebhookSendJob struct {
	Dispatcher *notify.WebhookDispatcher
	Logger     *slog.Logger
}

// NewWebhookSendJob initialises the webhook delivery handler.
func NewWebhookSendJob(dispatcher *notify.WebhookDispatcher, logger *slog.Logger) *WebhookSendJob {
	return &WebhookSendJob{Dispatcher: dispatcher, Logger: logger}
}

// Handle processes one webhook:send task.
func (j *WebhookSendJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dispatcher == nil {
		return errors.New("webhook send: handler not configured")
	}
	var payload SendWebhookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := j.Dispatcher.Send(ctx, payload.Text); err != nil {
		j.Logger.Warn("webhook delivery failed", slog.Any("error", err))
		return err
	}
	return nil
}
