// Package jobs runs background work through Asynq: transactional mail,
// webhook delivery and scheduled directory syncs.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSendWebhook is the task type for operational webhook posts.
	TaskTypeSendWebhook = "webhook:send"
	// TaskTypeDirectorySync is the task type for directory user syncs.
	TaskTypeDirectorySync = "federation:sync"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// SendWebhookPayload describes one webhook message.
type SendWebhookPayload struct {
	Text string `json:"text"`
}

// NewSendWebhookTask constructs an Asynq task.
func NewSendWebhookTask(payload SendWebhookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendWebhook, data), nil
}

// DirectorySyncPayload names the tenant whose directory is synced.
type DirectorySyncPayload struct {
	Tenant string `json:"tenant"`
}

// NewDirectorySyncTask constructs an Asynq task.
func NewDirectorySyncTask(payload DirectorySyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDirectorySync, data), nil
}
