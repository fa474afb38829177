package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrikvak/singq/internal/models"
	"golang.org/x/sync/errgroup"
)

// webhookEnvelope wraps the event with its topic for webhook consumers.
type webhookEnvelope struct {
	Topic     string                      `json:"topic"`
	Timestamp string                      `json:"timestamp"`
	Payload   *models.ReorderAppliedEvent `json:"payload"`
}

// WebhookBroadcaster POSTs reorder events to configured URLs. Delivery
// runs in a background goroutine so the apply response never waits on
// subscriber delivery.
type WebhookBroadcaster struct {
	urls   []string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookBroadcaster creates a webhook broadcaster. Returns nil if
// no URLs are configured.
func NewWebhookBroadcaster(urls []string, logger *slog.Logger) *WebhookBroadcaster {
	if len(urls) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookBroadcaster{
		urls:   urls,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// ReorderApplied implements Broadcaster. The passed context belongs to
// the apply request and may end before delivery completes, so dispatch
// detaches from it.
func (wb *WebhookBroadcaster) ReorderApplied(_ context.Context, ev *models.ReorderAppliedEvent) {
	if wb == nil {
		return
	}
	go wb.send(ev)
}

// send delivers the event to all configured URLs in parallel.
func (wb *WebhookBroadcaster) send(ev *models.ReorderAppliedEvent) {
	envelope := &webhookEnvelope{
		Topic:     models.BroadcastTopic,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   ev,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		wb.logger.Error("broadcast: marshal event", "error", err)
		return
	}

	var g errgroup.Group
	for _, url := range wb.urls {
		g.Go(func() error {
			if err := wb.post(url, data); err != nil {
				wb.logger.Warn("broadcast: delivery failed", "url", url, "event_id", ev.EventID, "error", err)
			} else {
				wb.logger.Debug("broadcast: delivered", "url", url, "event_id", ev.EventID)
			}
			return nil
		})
	}
	g.Wait()
}

// post sends a single webhook POST with retry (up to 2 retries).
func (wb *WebhookBroadcaster) post(url string, data []byte) error {
	const maxRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "singq/1.0")

		resp, err := wb.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * time.Second)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr // don't retry 4xx
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}

	return lastErr
}
