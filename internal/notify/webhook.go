package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookDispatcher posts Slack/Teams-style JSON payloads to a configured
// endpoint. Delivery is operational signaling only; callers treat failure
// as non-fatal.
type WebhookDispatcher struct {
	client *http.Client
	url    string
}

// NewWebhookDispatcher constructs a dispatcher. An empty url disables it.
func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
}

// Enabled reports whether an endpoint is configured.
func (d *WebhookDispatcher) Enabled() bool {
	return d.url != ""
}

// Send posts one text message.
func (d *WebhookDispatcher) Send(ctx context.Context, text string) error {
	if !d.Enabled() {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("post webhook: unexpected status %d", res.StatusCode)
	}
	return nil
}
