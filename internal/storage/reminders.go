package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"remindd/internal/model"
)

type reminderRow struct {
	ID            string  `db:"id"`
	TaskID        string  `db:"task_id"`
	OccurrenceID  *string `db:"occurrence_id"`
	OwnerID       string  `db:"owner_id"`
	FireAt        int64   `db:"fire_at"`
	OffsetMinutes int     `db:"offset_minutes"`
	Status        string  `db:"status"`
	SentAt        *int64  `db:"sent_at"`
	SnoozedUntil  *int64  `db:"snoozed_until"`
	CreatedAt     int64   `db:"created_at"`
}

func (r reminderRow) toModel() *model.Reminder {
	return &model.Reminder{
		ID:            r.ID,
		TaskID:        r.TaskID,
		OccurrenceID:  r.OccurrenceID,
		OwnerID:       r.OwnerID,
		FireAt:        fromMilli(r.FireAt),
		OffsetMinutes: r.OffsetMinutes,
		Status:        model.ReminderStatus(r.Status),
		SentAt:        fromMilliPtr(r.SentAt),
		SnoozedUntil:  fromMilliPtr(r.SnoozedUntil),
		CreatedAt:     fromMilli(r.CreatedAt),
	}
}

func (s *Store) InsertReminder(ctx context.Context, r *model.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = model.ReminderPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, task_id, occurrence_id, owner_id, fire_at,
			offset_minutes, status, sent_at, snoozed_until, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.TaskID, strPtr(r.OccurrenceID), r.OwnerID, milli(r.FireAt),
		r.OffsetMinutes, string(r.Status), milliPtr(r.SentAt), milliPtr(r.SnoozedUntil), milli(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (s *Store) GetReminder(ctx context.Context, id string) (*model.Reminder, error) {
	var r reminderRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM reminders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r.toModel(), nil
}

func (s *Store) ListTaskReminders(ctx context.Context, taskID string) ([]*model.Reminder, error) {
	var rows []reminderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM reminders WHERE task_id = ? ORDER BY fire_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task reminders: %w", err)
	}
	return reminderModels(rows), nil
}

func (s *Store) ListOwnerReminders(ctx context.Context, ownerID string) ([]*model.Reminder, error) {
	var rows []reminderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM reminders WHERE owner_id = ? ORDER BY fire_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner reminders: %w", err)
	}
	return reminderModels(rows), nil
}

func reminderModels(rows []reminderRow) []*model.Reminder {
	out := make([]*model.Reminder, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

// CountActiveReminders backs the per-task reminder cap. Everything but
// cancelled rows counts: a fired or snoozed reminder does not free a slot.
func (s *Store) CountActiveReminders(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM reminders WHERE task_id = ? AND status != ?`,
		taskID, string(model.ReminderCancelled))
	if err != nil {
		return 0, fmt.Errorf("count active reminders: %w", err)
	}
	return n, nil
}

func (s *Store) SetReminderStatus(ctx context.Context, id string, status model.ReminderStatus, snoozedUntil *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, snoozed_until = COALESCE(?, snoozed_until) WHERE id = ?`,
		string(status), milliPtr(snoozedUntil), id)
	if err != nil {
		return fmt.Errorf("set reminder status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateReminderFireAt recomputes a pending reminder after its task's due
// time changed. Fired and cancelled reminders keep their history.
func (s *Store) UpdateReminderFireAt(ctx context.Context, id string, fireAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET fire_at = ? WHERE id = ? AND status = ?`,
		milli(fireAt), id, string(model.ReminderPending))
	if err != nil {
		return fmt.Errorf("update reminder fire_at: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReminder removes a reminder owned by ownerID.
func (s *Store) DeleteReminder(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelTaskReminders transitions every pending reminder of a task to
// cancelled. Already-claimed reminders are left alone: a claimed reminder
// is delivered even if its task disappears a moment later.
func (s *Store) CancelTaskReminders(ctx context.Context, taskID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ? WHERE task_id = ? AND status = ?`,
		string(model.ReminderCancelled), taskID, string(model.ReminderPending))
	if err != nil {
		return 0, fmt.Errorf("cancel task reminders: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClaimDueReminders atomically claims pending reminders with
// fire_at <= asOf: the rows transition to sent in the same statement that
// returns them, so two concurrent firing loops never double-fire.
// Results are ordered by fire_at ascending.
func (s *Store) ClaimDueReminders(ctx context.Context, asOf time.Time, limit int) ([]*model.Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []reminderRow
	err := s.db.SelectContext(ctx, &rows, `
		UPDATE reminders SET status = ?, sent_at = ?
		WHERE id IN (
			SELECT id FROM reminders
			WHERE status = ? AND fire_at <= ?
			ORDER BY fire_at, id
			LIMIT ?
		)
		RETURNING *`,
		string(model.ReminderSent), milli(asOf),
		string(model.ReminderPending), milli(asOf), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	out := reminderModels(rows)
	// RETURNING does not guarantee ordering.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
