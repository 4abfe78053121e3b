package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// natsEvent is the JSON payload published for each notification
type natsEvent struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RunID     string    `json:"run_id,omitempty"`
	NewAlerts int       `json:"new_alerts"`
	SentAt    time.Time `json:"sent_at"`
}

// publisher is the subset of *nats.Conn the notifier uses
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSNotifier publishes notifications as JSON events on a subject
type NATSNotifier struct {
	conn    publisher
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// NewNATSNotifier connects to the NATS server at url
func NewNATSNotifier(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	nc, err := nats.Connect(url,
		nats.Name("casalert"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return newNATSNotifier(nc, subject, logger), nil
}

func newNATSNotifier(conn publisher, subject string, logger *slog.Logger) *NATSNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NATSNotifier{conn: conn, subject: subject, logger: logger, now: time.Now}
}

// Notify publishes the event and waits for the server to acknowledge the flush
func (n *NATSNotifier) Notify(ctx context.Context, note Notification) error {
	sentAt := note.SentAt
	if sentAt.IsZero() {
		sentAt = n.now()
	}
	data, err := json.Marshal(natsEvent{
		Title:     note.Title,
		Message:   note.Message,
		RunID:     note.RunID,
		NewAlerts: note.NewAlerts,
		SentAt:    sentAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.subject, err)
	}
	// FlushWithContext refuses contexts without a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	n.logger.Debug("published notification", "subject", n.subject, "run_id", note.RunID)
	return nil
}

// Close closes the NATS connection
func (n *NATSNotifier) Close() {
	n.conn.Close()
}
