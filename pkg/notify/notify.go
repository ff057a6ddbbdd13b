// Package notify delivers operator-facing notifications about failover
// attempts and their outcomes.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shavakan/db-failover/pkg/logging"
)

var notifyLog = logging.WithComponent(logging.LogTypeNotify, "dispatch")

// Severity orders notifications by operator urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is one operator-facing message about the cluster.
type Notification struct {
	Severity   Severity  `json:"severity"`
	Title      string    `json:"title"`
	Detail     string    `json:"detail,omitempty"`
	Region     string    `json:"region,omitempty"`
	EventID    string    `json:"event_id,omitempty"`
	Generation int64     `json:"generation"`
	At         time.Time `json:"at"`
}

// Notifier delivers a notification over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every channel. Delivery is best effort:
// a dead channel is logged and skipped, never allowed to stall or abort a
// failover in progress.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a best-effort dispatcher over the given channels.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Name identifies the dispatcher in logs.
func (m *Multi) Name() string { return "multi" }

// Notify sends to every channel, always returning nil.
func (m *Multi) Notify(ctx context.Context, n Notification) error {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			notifyLog.Warn("notification delivery failed",
				slog.String(logging.KeyChannel, notifier.Name()),
				slog.String(logging.KeySeverity, string(n.Severity)),
				slog.String(logging.KeyError, err.Error()))
			continue
		}
		notifyLog.Debug("notification delivered",
			slog.String(logging.KeyChannel, notifier.Name()),
			slog.String(logging.KeySeverity, string(n.Severity)))
	}
	return nil
}

// Ensure Multi implements Notifier.
var _ Notifier = (*Multi)(nil)
