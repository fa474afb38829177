package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/patrikvak/singq/internal/models"
)

// DefaultNATSSubject is the subject prefix for reorder events; the
// event id is appended as the final token.
const DefaultNATSSubject = "queue.reorder_applied"

// NATSBroadcaster publishes reorder events to a NATS subject, one
// subject token per event id so clients can subscribe per event.
type NATSBroadcaster struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSBroadcaster connects to the NATS server. An empty subject
// falls back to DefaultNATSSubject.
func NewNATSBroadcaster(url, subject string, logger *slog.Logger) (*NATSBroadcaster, error) {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("singq"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSBroadcaster{conn: conn, subject: subject, logger: logger}, nil
}

// ReorderApplied implements Broadcaster. Publish is non-blocking; a
// failed publish is logged and dropped.
func (nb *NATSBroadcaster) ReorderApplied(_ context.Context, ev *models.ReorderAppliedEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		nb.logger.Error("broadcast: marshal event", "error", err)
		return
	}

	subject := fmt.Sprintf("%s.%d", nb.subject, ev.EventID)
	if err := nb.conn.Publish(subject, data); err != nil {
		nb.logger.Warn("broadcast: nats publish failed", "subject", subject, "error", err)
	}
}

// Close drains and closes the connection.
func (nb *NATSBroadcaster) Close() {
	if nb.conn != nil {
		nb.conn.Close()
	}
}
