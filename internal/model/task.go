package model

import "time"

// Task is the engine's view of a task row. Plain CRUD on tasks lives
// outside the engine; these are the fields recurrence and reminders need.
type Task struct {
	ID      string
	OwnerID string

	Title string
	Notes string

	// DueAt is the absolute due instant, if the task has one.
	DueAt *time.Time

	// Rule is nil for non-recurring tasks.
	Rule *RecurrenceRule

	// AnchorDate is the date (UTC midnight) the rule expands from.
	// An allFuture edit moves it forward.
	AnchorDate time.Time

	// OccurrencesGenerated counts every occurrence ever materialized for
	// this series, across the whole series lifetime. It is what
	// after_count end policies are measured against.
	OccurrencesGenerated int

	// SeriesStopped blocks further backfill once a manual stop happened.
	SeriesStopped bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Task) Recurring() bool { return t.Rule != nil }
