package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remindd/internal/model"
)

type taskRow struct {
	ID                   string  `db:"id"`
	OwnerID              string  `db:"owner_id"`
	Title                string  `db:"title"`
	Notes                string  `db:"notes"`
	DueAt                *int64  `db:"due_at"`
	Rule                 *string `db:"rule"`
	AnchorDate           *string `db:"anchor_date"`
	OccurrencesGenerated int     `db:"occurrences_generated"`
	SeriesStopped        bool    `db:"series_stopped"`
	CreatedAt            int64   `db:"created_at"`
	UpdatedAt            int64   `db:"updated_at"`
}

func (r taskRow) toModel() (*model.Task, error) {
	t := &model.Task{
		ID:                   r.ID,
		OwnerID:              r.OwnerID,
		Title:                r.Title,
		Notes:                r.Notes,
		DueAt:                fromMilliPtr(r.DueAt),
		OccurrencesGenerated: r.OccurrencesGenerated,
		SeriesStopped:        r.SeriesStopped,
		CreatedAt:            fromMilli(r.CreatedAt),
		UpdatedAt:            fromMilli(r.UpdatedAt),
	}
	if r.Rule != nil && *r.Rule != "" {
		var rule model.RecurrenceRule
		if err := json.Unmarshal([]byte(*r.Rule), &rule); err != nil {
			return nil, fmt.Errorf("task %s: decoding rule: %w", r.ID, err)
		}
		t.Rule = &rule
	}
	if r.AnchorDate != nil && *r.AnchorDate != "" {
		d, err := fromDateStr(*r.AnchorDate)
		if err != nil {
			return nil, fmt.Errorf("task %s: decoding anchor: %w", r.ID, err)
		}
		t.AnchorDate = d
	}
	return t, nil
}

func encodeRule(rule *model.RecurrenceRule) (any, error) {
	if rule == nil {
		return nil, nil
	}
	b, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("encoding rule: %w", err)
	}
	return string(b), nil
}

func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	ruleJSON, err := encodeRule(t.Rule)
	if err != nil {
		return err
	}
	var anchor any
	if !t.AnchorDate.IsZero() {
		anchor = dateStr(t.AnchorDate)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, title, notes, due_at, rule, anchor_date,
			occurrences_generated, series_stopped, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OwnerID, t.Title, t.Notes, milliPtr(t.DueAt), ruleJSON, anchor,
		t.OccurrencesGenerated, t.SeriesStopped, milli(t.CreatedAt), milli(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var r taskRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return r.toModel()
}

func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	t.UpdatedAt = time.Now()

	ruleJSON, err := encodeRule(t.Rule)
	if err != nil {
		return err
	}
	var anchor any
	if !t.AnchorDate.IsZero() {
		anchor = dateStr(t.AnchorDate)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title=?, notes=?, due_at=?, rule=?, anchor_date=?,
			occurrences_generated=?, series_stopped=?, updated_at=?
		WHERE id = ?`,
		t.Title, t.Notes, milliPtr(t.DueAt), ruleJSON, anchor,
		t.OccurrencesGenerated, t.SeriesStopped, milli(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes the task row; occurrences and reminders cascade via
// foreign keys. Callers cancel non-fired reminders first so the firing
// loop sees a clean state transition, not a race.
func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns an owner's tasks, oldest first.
func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]*model.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM tasks WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]*model.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListActiveSeries returns recurring tasks whose series has not been
// manually stopped. The horizon refresh job walks this set.
func (s *Store) ListActiveSeries(ctx context.Context) ([]*model.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM tasks WHERE rule IS NOT NULL AND series_stopped = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active series: %w", err)
	}
	out := make([]*model.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
