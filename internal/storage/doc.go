// Package storage persists the engine's entities in SQLite.
//
// Conventions:
//   - ids are uuid v4 strings, generated here on insert when absent
//   - absolute instants are stored as unix milliseconds (INTEGER)
//   - calendar dates are stored as "2006-01-02" TEXT at UTC
//   - recurrence rules are stored as JSON TEXT
//
// The one genuinely shared mutation is ClaimDueReminders: a single
// UPDATE..RETURNING statement, so two concurrent firing loops can never
// both claim the same reminder.
package storage
