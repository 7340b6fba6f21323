package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dukex/querygate/pkg/events"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook posts a short text message to a chat incoming-webhook URL.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}

	return &Webhook{url: url, client: client}
}

// Message renders the chat text for an event.
func Message(event events.RequestEvent) string {
	switch event.Type {
	case events.RequestSubmitted:
		return fmt.Sprintf("Request %s for %s is waiting for approval (team %s)", event.RequestID, event.InstanceName, event.Team)
	case events.RequestExecuted:
		return fmt.Sprintf("Request %s on %s executed successfully", event.RequestID, event.InstanceName)
	case events.RequestFailed:
		return fmt.Sprintf("Request %s on %s failed", event.RequestID, event.InstanceName)
	case events.RequestRejected:
		if event.Reason != "" {
			return fmt.Sprintf("Request %s was rejected: %s", event.RequestID, event.Reason)
		}

		return fmt.Sprintf("Request %s was rejected", event.RequestID)
	default:
		return fmt.Sprintf("Request %s: %s", event.RequestID, event.Type)
	}
}

func (w *Webhook) Notify(ctx context.Context, event events.RequestEvent) error {
	body, err := json.Marshal(map[string]string{"text": Message(event)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	return nil
}
