package model

import "time"

type NotificationType string

const (
	NotifReminder     NotificationType = "reminder"
	NotifDailyDigest  NotificationType = "daily_digest"
	NotifRecurringDue NotificationType = "recurring_due"
)

// Notification is the in-app record, the guaranteed-delivery channel.
// Rows older than 30 days are eligible for purge.
type Notification struct {
	ID      string
	OwnerID string

	Type  NotificationType
	Title string
	Body  string

	RelatedTaskID string

	Read      bool
	CreatedAt time.Time
}

// PushSubscriber is a best-effort delivery target. The engine only writes
// to it, except to mark staleness on delivery failure.
type PushSubscriber struct {
	ID      string
	OwnerID string

	// EndpointHandle is opaque to the engine; the push driver interprets it.
	EndpointHandle string

	// Keys holds opaque encryption material for drivers that need it.
	Keys string

	Stale      bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}
