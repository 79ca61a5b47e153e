package model

import "time"

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderSnoozed   ReminderStatus = "snoozed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder schedules a notification at FireAt. Snoozing never mutates
// FireAt in place: the original transitions to snoozed (terminal) and a
// fresh pending reminder carries the new fire time.
type Reminder struct {
	ID     string
	TaskID string

	// OccurrenceID is set when the reminder is bound to a specific
	// instance of a recurring task.
	OccurrenceID *string

	OwnerID string

	// FireAt is an absolute UTC instant: dueInstant + OffsetMinutes.
	FireAt time.Time

	// OffsetMinutes is negative ("before due").
	OffsetMinutes int

	Status       ReminderStatus
	SentAt       *time.Time
	SnoozedUntil *time.Time

	CreatedAt time.Time
}
