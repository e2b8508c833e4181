// Package notification surfaces user-facing notifications for new alerts,
// escalations and newly opened incidents. The Dispatcher applies severity
// thresholds, deduplication, rate limiting and auto-dismiss before handing a
// notification to a Notifier back-end.
package notification

import (
	"context"
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
)

// Kind classifies a notification.
type Kind string

const (
	KindAlert      Kind = "alert"
	KindIncident   Kind = "incident"
	KindEscalation Kind = "escalation"
)

// Notification is one surfaced message.
type Notification struct {
	Kind      Kind
	Tag       string
	Title     string
	Body      string
	Severity  monitoring.Severity
	SourceID  string
	CreatedAt time.Time
}

// Notifier is the platform side-channel that displays notifications.
type Notifier interface {
	// Permission asks the platform whether notifications may be shown.
	Permission(ctx context.Context) (bool, error)
	// Show displays a notification. A later Show with the same tag replaces
	// the earlier one.
	Show(ctx context.Context, title, body, tag string) error
	// Dismiss removes the notification with tag if it is still shown.
	Dismiss(tag string)
}

// History persists dispatched notifications.
type History interface {
	Save(ctx context.Context, n *Notification) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func alertTag(id string) string { return id }

func incidentTag(id string) string { return "incident:" + id }
