package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"

	"github.com/hibiken/asynq"

	"github.com/meridian-pim/meridian/internal/notify"
)

// MailSendJob delivers queued transactional email over SMTP.
type MailSendJob struct {
	Mailer *notify.SMTPMailer
	Logger *slog.Logger
}

// NewMailSendJob initialises the mail delivery handler.
func NewMailSendJob(mailer *notify.SMTPMailer, logger *slog.Logger) *MailSendJob {
	return &MailSendJob{Mailer: mailer, Logger: logger}
}

// Handle processes one mail:send task. Delivery errors are returned so
// Asynq retries with backoff; malformed payloads are dropped.
func (j *MailSendJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("mail send: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := j.Mailer.Send(ctx, notify.Message{To: payload.To, Subject: payload.Subject, Body: payload.Body}); err != nil {
		j.Logger.Warn("mail delivery failed", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	return nil
}

// MailDispatcher implements the mailer ports of the identity services by
// enqueuing mail:send tasks. The raw token travels only inside the task
// payload and the message body, never through logs.
type MailDispatcher struct {
	Client  *Client
	BaseURL string
}

// EnqueuePasswordReset queues the reset email.
func (d *MailDispatcher) EnqueuePasswordReset(ctx context.Context, email, token string) error {
	msg := notify.PasswordResetMessage(email, d.BaseURL+"/reset-password?token="+url.QueryEscape(token))
	_, err := d.Client.EnqueueSendEmail(ctx, SendEmailPayload{To: msg.To, Subject: msg.Subject, Body: msg.Body})
	return err
}

// EnqueueInvitation queues the invite email.
func (d *MailDispatcher) EnqueueInvitation(ctx context.Context, email, token string) error {
	msg := notify.InvitationMessage(email, d.BaseURL+"/accept-invitation?token="+url.QueryEscape(token))
	_, err := d.Client.EnqueueSendEmail(ctx, SendEmailPayload{To: msg.To, Subject: msg.Subject, Body: msg.Body})
	return err
}
