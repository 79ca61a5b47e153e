package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindd/internal/model"
	"remindd/internal/occurrence"
	"remindd/internal/series"
	"remindd/internal/storage"
	"remindd/pkg/logx"
)

var (
	ErrTitleRequired = errors.New("app: task title is required")
	ErrNotFound      = errors.New("app: not found")
)

// Engine is the facade callers use: owner-scoped task CRUD plus access
// to the scheduling services.
type Engine struct {
	app *App
}

// CreateTask creates a task; a non-nil rule also starts its series and
// materializes the initial window.
func (e *Engine) CreateTask(ctx context.Context, ownerID, title, notes string, dueAt *time.Time, rule *model.RecurrenceRule) (*model.Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrTitleRequired
	}
	now := e.app.clk.Now()
	t := &model.Task{
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(title),
		Notes:     notes,
		DueAt:     dueAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.app.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	if rule != nil {
		if err := e.app.occ.StartSeries(ctx, t.ID, rule); err != nil {
			// Leave the task in place; the caller can retry the rule.
			return t, err
		}
		t, err := e.app.store.GetTask(ctx, t.ID)
		return t, err
	}
	return t, nil
}

func (e *Engine) GetTask(ctx context.Context, ownerID, id string) (*model.Task, error) {
	t, err := e.app.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return t, nil
}

func (e *Engine) ListTasks(ctx context.Context, ownerID string) ([]*model.Task, error) {
	return e.app.store.ListTasks(ctx, ownerID)
}

// UpdateTask edits a non-recurring task's fields. Edits that touch a
// series go through ApplyEdit with an explicit scope instead.
func (e *Engine) UpdateTask(ctx context.Context, ownerID, id string, title, notes *string, dueAt *time.Time) (*model.Task, error) {
	t, err := e.GetTask(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		if strings.TrimSpace(*title) == "" {
			return nil, ErrTitleRequired
		}
		t.Title = strings.TrimSpace(*title)
	}
	if notes != nil {
		t.Notes = *notes
	}
	if dueAt != nil {
		t.DueAt = dueAt
	}
	if err := e.app.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	if dueAt != nil {
		if err := e.app.rem.RecomputeForTask(ctx, t.ID); err != nil {
			e.app.log.Warn("reminder recompute after due change failed",
				logx.String("task", t.ID), logx.Err(err))
		}
	}
	return t, nil
}

// DeleteTask removes a task and everything hanging off it: pending
// reminders are cancelled first, then the row cascades over occurrences
// and reminder history.
func (e *Engine) DeleteTask(ctx context.Context, ownerID, id string) error {
	if _, err := e.GetTask(ctx, ownerID, id); err != nil {
		return err
	}
	if err := e.app.rem.CancelForTask(ctx, id); err != nil {
		return err
	}
	if err := e.app.store.DeleteTask(ctx, ownerID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	e.app.log.Info("task deleted", logx.String("owner", ownerID), logx.String("task", id))
	return nil
}

// ---- recurrence ----

func (e *Engine) StartSeries(ctx context.Context, ownerID, taskID string, rule *model.RecurrenceRule) error {
	if _, err := e.GetTask(ctx, ownerID, taskID); err != nil {
		return err
	}
	return e.app.occ.StartSeries(ctx, taskID, rule)
}

func (e *Engine) StopSeries(ctx context.Context, ownerID, taskID string, mode occurrence.StopMode, onDate time.Time, afterCount int) error {
	return e.app.occ.StopSeries(ctx, ownerID, taskID, mode, onDate, afterCount)
}

func (e *Engine) CompleteOccurrence(ctx context.Context, ownerID, occurrenceID string) error {
	return e.app.occ.Complete(ctx, ownerID, occurrenceID)
}

func (e *Engine) SkipOccurrence(ctx context.Context, ownerID, occurrenceID string) error {
	return e.app.occ.Skip(ctx, ownerID, occurrenceID)
}

func (e *Engine) ListOccurrences(ctx context.Context, ownerID string, from, to time.Time) ([]*model.Occurrence, error) {
	return e.app.occ.ListRange(ctx, ownerID, from, to)
}

func (e *Engine) ApplyEdit(ctx context.Context, ownerID, occurrenceID string, changes series.Changes, scope series.Scope) (*model.Task, error) {
	return e.app.series.ApplyEdit(ctx, ownerID, occurrenceID, changes, scope)
}

// ---- reminders ----

func (e *Engine) CreateReminder(ctx context.Context, ownerID, taskID string, occurrenceID *string, offsetMinutes *int) (*model.Reminder, error) {
	return e.app.rem.Create(ctx, ownerID, taskID, occurrenceID, offsetMinutes)
}

func (e *Engine) ListReminders(ctx context.Context, ownerID, taskID string) ([]*model.Reminder, error) {
	return e.app.rem.List(ctx, ownerID, taskID)
}

func (e *Engine) DeleteReminder(ctx context.Context, ownerID, id string) error {
	return e.app.rem.Delete(ctx, ownerID, id)
}

func (e *Engine) SnoozeReminder(ctx context.Context, ownerID, id string, minutes int) (*model.Reminder, error) {
	return e.app.rem.Snooze(ctx, ownerID, id, minutes)
}

// ---- notifications ----

func (e *Engine) ListNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit, offset int) ([]*model.Notification, error) {
	return e.app.disp.ListNotifications(ctx, ownerID, unreadOnly, limit, offset)
}

func (e *Engine) CountUnread(ctx context.Context, ownerID string) (int, error) {
	return e.app.disp.CountUnread(ctx, ownerID)
}

func (e *Engine) MarkNotificationRead(ctx context.Context, ownerID, id string) error {
	return e.app.disp.MarkRead(ctx, ownerID, id)
}

func (e *Engine) MarkAllNotificationsRead(ctx context.Context, ownerID string) (int64, error) {
	return e.app.disp.MarkAllRead(ctx, ownerID)
}

func (e *Engine) DeleteNotification(ctx context.Context, ownerID, id string) error {
	return e.app.disp.DeleteNotification(ctx, ownerID, id)
}

// ---- preferences ----

func (e *Engine) GetPrefs(ctx context.Context, ownerID string) (*model.SchedulingPrefs, error) {
	return e.app.prefs.Get(ctx, ownerID)
}

func (e *Engine) UpdatePrefs(ctx context.Context, p *model.SchedulingPrefs) error {
	return e.app.prefs.Update(ctx, p)
}

// ---- push subscribers ----

func (e *Engine) AddPushSubscriber(ctx context.Context, sub *model.PushSubscriber) error {
	return e.app.store.InsertSubscriber(ctx, sub)
}

func (e *Engine) RemovePushSubscriber(ctx context.Context, ownerID, id string) error {
	return e.app.store.DeleteSubscriber(ctx, ownerID, id)
}
