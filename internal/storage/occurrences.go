package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remindd/internal/model"
)

type occurrenceRow struct {
	ID          string `db:"id"`
	TaskID      string `db:"task_id"`
	OwnerID     string `db:"owner_id"`
	Date        string `db:"date"`
	Status      string `db:"status"`
	CompletedAt *int64 `db:"completed_at"`
	Detached    bool   `db:"detached"`
	CreatedAt   int64  `db:"created_at"`
}

func (r occurrenceRow) toModel() (*model.Occurrence, error) {
	d, err := fromDateStr(r.Date)
	if err != nil {
		return nil, fmt.Errorf("occurrence %s: decoding date: %w", r.ID, err)
	}
	return &model.Occurrence{
		ID:          r.ID,
		TaskID:      r.TaskID,
		OwnerID:     r.OwnerID,
		Date:        d,
		Status:      model.OccurrenceStatus(r.Status),
		CompletedAt: fromMilliPtr(r.CompletedAt),
		Detached:    r.Detached,
		CreatedAt:   fromMilli(r.CreatedAt),
	}, nil
}

// InsertOccurrence materializes one dated instance. It reports whether a
// row was actually created: re-materializing an existing (task, date) is
// a no-op, not an error.
func (s *Store) InsertOccurrence(ctx context.Context, o *model.Occurrence) (bool, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if o.Status == "" {
		o.Status = model.OccurrencePending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO occurrences (id, task_id, owner_id, date, status, completed_at, detached, created_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (task_id, date) DO NOTHING`,
		o.ID, o.TaskID, o.OwnerID, dateStr(o.Date), string(o.Status),
		milliPtr(o.CompletedAt), o.Detached, milli(o.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert occurrence: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) GetOccurrence(ctx context.Context, id string) (*model.Occurrence, error) {
	var r occurrenceRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM occurrences WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence: %w", err)
	}
	return r.toModel()
}

// ListOccurrences returns an owner's non-detached occurrences with dates
// in [from, to], ordered by date.
func (s *Store) ListOccurrences(ctx context.Context, ownerID string, from, to time.Time) ([]*model.Occurrence, error) {
	var rows []occurrenceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM occurrences
		WHERE owner_id = ? AND detached = 0 AND date >= ? AND date <= ?
		ORDER BY date, task_id`,
		ownerID, dateStr(from), dateStr(to))
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	return occurrenceModels(rows)
}

func (s *Store) ListTaskOccurrences(ctx context.Context, taskID string) ([]*model.Occurrence, error) {
	var rows []occurrenceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM occurrences WHERE task_id = ? ORDER BY date`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task occurrences: %w", err)
	}
	return occurrenceModels(rows)
}

func occurrenceModels(rows []occurrenceRow) ([]*model.Occurrence, error) {
	out := make([]*model.Occurrence, 0, len(rows))
	for _, r := range rows {
		o, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// OccurrenceFrontier returns the latest materialized date for a series.
// ok is false when nothing has been materialized yet.
func (s *Store) OccurrenceFrontier(ctx context.Context, taskID string) (time.Time, bool, error) {
	var d sql.NullString
	err := s.db.GetContext(ctx, &d, `SELECT MAX(date) FROM occurrences WHERE task_id = ?`, taskID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("occurrence frontier: %w", err)
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, false, nil
	}
	t, err := fromDateStr(d.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *Store) SetOccurrenceStatus(ctx context.Context, id string, status model.OccurrenceStatus, completedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE occurrences SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), milliPtr(completedAt), id)
	if err != nil {
		return fmt.Errorf("set occurrence status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DetachOccurrence marks a row as converted to a standalone task. The row
// stays so its date can never re-materialize.
func (s *Store) DetachOccurrence(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE occurrences SET detached = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("detach occurrence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePendingAfter drops not-yet-decided occurrences strictly after the
// given date so an allFuture edit can regenerate them under new fields.
func (s *Store) DeletePendingAfter(ctx context.Context, taskID string, after time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM occurrences
		WHERE task_id = ? AND date > ? AND status = ? AND detached = 0`,
		taskID, dateStr(after), string(model.OccurrencePending))
	if err != nil {
		return 0, fmt.Errorf("delete pending occurrences: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DueItem is one digest line: an occurrence joined with its task title.
type DueItem struct {
	OccurrenceID string `db:"occurrence_id"`
	TaskID       string `db:"task_id"`
	Title        string `db:"title"`
	Date         string `db:"date"`
}

// ListDueOn returns an owner's pending occurrences on one calendar date,
// with task titles, for digest aggregation.
func (s *Store) ListDueOn(ctx context.Context, ownerID string, date time.Time) ([]DueItem, error) {
	var items []DueItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT o.id AS occurrence_id, o.task_id AS task_id, t.title AS title, o.date AS date
		FROM occurrences o
		JOIN tasks t ON t.id = o.task_id
		WHERE o.owner_id = ? AND o.date = ? AND o.status = ? AND o.detached = 0
		ORDER BY t.title`,
		ownerID, dateStr(date), string(model.OccurrencePending))
	if err != nil {
		return nil, fmt.Errorf("list due occurrences: %w", err)
	}
	return items, nil
}
