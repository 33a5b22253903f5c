// Package notify pushes pipeline events (new content, quiet providers) to an
// optional webhook. Without a webhook URL events only reach the log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event topics emitted by the ingest pipeline.
const (
	TopicIngestUpdate = "ingest:update"
	TopicIngestQuiet  = "ingest:quiet"
	TopicItemRouted   = "item:routed"
)

// Notifier publishes a pipeline event. Implementations must not block the
// pipeline on delivery failures.
type Notifier interface {
	Push(ctx context.Context, topic string, payload map[string]any)
}

// New returns a webhook notifier when a URL is configured, otherwise a
// log-only notifier.
func New(webhookURL string, httpClient *http.Client) Notifier {
	if webhookURL == "" {
		return &LogNotifier{}
	}
	return &WebhookNotifier{url: webhookURL, httpClient: httpClient}
}

// LogNotifier writes events to the log and nothing else.
type LogNotifier struct{}

func (n *LogNotifier) Push(ctx context.Context, topic string, payload map[string]any) {
	slog.Debug("Event", "topic", topic, "payload", payload)
}

// WebhookNotifier POSTs events as JSON to a configured endpoint. Delivery is
// best effort; failures are logged and dropped.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func (n *WebhookNotifier) Push(ctx context.Context, topic string, payload map[string]any) {
	body, err := json.Marshal(map[string]any{
		"event": topic,
		"extra": payload,
	})
	if err != nil {
		slog.Error("Failed to encode event", "topic", topic, "error", err)
		return
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", n.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to create event request", "topic", topic, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to deliver event", "topic", topic, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("Failed to deliver event", "topic", topic,
			"error", fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}
}
