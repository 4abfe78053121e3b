// Package notify tells people (and other services) about the outcome of a run.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/steveyegge/casalert/internal/config"
)

// Notification is one message about a run
type Notification struct {
	Title   string
	Message string

	RunID     string
	NewAlerts int
	SentAt    time.Time
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards every notification
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, Notification) error { return nil }

// Multi fans a notification out to every notifier and joins their errors
type Multi []Notifier

// Notify delivers to all notifiers even when some fail
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer is implemented by notifiers holding a connection
type Closer interface {
	Close()
}

// New builds the notifiers enabled in cfg. The returned close function releases
// any connections and is always safe to call.
func New(cfg config.NotifyConfig, logger *slog.Logger) (Notifier, func(), error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "notify")
	noClose := func() {}

	if !cfg.Enabled {
		logger.Info("notifications are disabled")
		return Nop{}, noClose, nil
	}

	var notifiers Multi
	closers := []Closer{}
	if cfg.Desktop {
		notifiers = append(notifiers, NewDesktopNotifier(cfg.Sound, logger))
	}
	if cfg.NATS.URL != "" {
		n, err := NewNATSNotifier(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return nil, noClose, err
		}
		notifiers = append(notifiers, n)
		closers = append(closers, n)
	}

	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	switch len(notifiers) {
	case 0:
		return Nop{}, closeAll, nil
	case 1:
		return notifiers[0], closeAll, nil
	}
	return notifiers, closeAll, nil
}
