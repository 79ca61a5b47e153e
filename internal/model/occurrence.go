package model

import "time"

type OccurrenceStatus string

const (
	OccurrencePending   OccurrenceStatus = "pending"
	OccurrenceCompleted OccurrenceStatus = "completed"
	OccurrenceSkipped   OccurrenceStatus = "skipped"
)

// Occurrence is one concrete dated instance of a recurring task.
// (TaskID, Date) is unique: the engine never materializes two instances
// for the same date.
type Occurrence struct {
	ID      string
	TaskID  string
	OwnerID string // denormalized for owner-scoped listing

	// Date is a calendar date (UTC midnight, no time-of-day).
	Date time.Time

	Status      OccurrenceStatus
	CompletedAt *time.Time

	// Detached marks an occurrence that a thisOnly edit converted into a
	// standalone task. The row stays so the date cannot re-materialize,
	// but it is excluded from listings and digests.
	Detached bool

	CreatedAt time.Time
}
