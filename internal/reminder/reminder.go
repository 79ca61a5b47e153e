// Package reminder computes fire times from due instants and reminder
// offsets, owns the reminder state machine, and claims due reminders for
// the firing loop.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindd/internal/clock"
	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/pkg/logx"
)

// MaxPerTask caps non-cancelled reminders on one task. Firing or
// snoozing a reminder does not free a slot; only deletion does.
const MaxPerTask = 5

var (
	ErrNotFound         = errors.New("reminder: not found")
	ErrTooManyReminders = errors.New("reminder: per-task reminder cap reached")
	ErrFireAtPast       = errors.New("reminder: fire time already in the past")
	ErrBadOffset        = errors.New("reminder: offset must be negative minutes before due")
	ErrNoOffset         = errors.New("reminder: no offset given and owner has no default")
	ErrNoDueTime        = errors.New("reminder: task has no due time")
	ErrNotSnoozable     = errors.New("reminder: only pending or sent reminders can be snoozed")
)

// Store is the persistence surface this service needs.
type Store interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	GetOccurrence(ctx context.Context, id string) (*model.Occurrence, error)

	InsertReminder(ctx context.Context, r *model.Reminder) error
	GetReminder(ctx context.Context, id string) (*model.Reminder, error)
	ListTaskReminders(ctx context.Context, taskID string) ([]*model.Reminder, error)
	ListOwnerReminders(ctx context.Context, ownerID string) ([]*model.Reminder, error)
	CountActiveReminders(ctx context.Context, taskID string) (int, error)
	SetReminderStatus(ctx context.Context, id string, status model.ReminderStatus, snoozedUntil *time.Time) error
	UpdateReminderFireAt(ctx context.Context, id string, fireAt time.Time) error
	DeleteReminder(ctx context.Context, ownerID, id string) error
	CancelTaskReminders(ctx context.Context, taskID string) (int64, error)
	ClaimDueReminders(ctx context.Context, asOf time.Time, limit int) ([]*model.Reminder, error)
}

// Prefs supplies the owner's timezone and default offset.
type Prefs interface {
	Get(ctx context.Context, ownerID string) (*model.SchedulingPrefs, error)
	Location(ctx context.Context, ownerID string) (*time.Location, error)
}

// Dispatcher receives claimed reminders from the firing loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, r *model.Reminder) error
}

type Config struct {
	// BatchSize bounds one firing-loop claim.
	BatchSize int
	// DispatchTimeout bounds one dispatch so a slow push endpoint cannot
	// stall later reminders.
	DispatchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	return c
}

type Service struct {
	cfg   Config
	store Store
	prefs Prefs
	disp  Dispatcher
	clk   clock.Clock
	log   logx.Logger
	bus   eventbus.Bus
}

func New(cfg Config, store Store, prefs Prefs, disp Dispatcher, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{cfg: cfg.withDefaults(), store: store, prefs: prefs, disp: disp, clk: clk, log: log, bus: bus}
}

// Create computes fireAt = dueInstant + offset and persists the reminder.
// It rejects synchronously when the per-task cap is reached, the offset is
// not negative, or the fire time is already past.
func (s *Service) Create(ctx context.Context, ownerID, taskID string, occurrenceID *string, offsetMinutes *int) (*model.Reminder, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, ErrNotFound
	}

	offset, err := s.resolveOffset(ctx, ownerID, offsetMinutes)
	if err != nil {
		return nil, err
	}

	due, err := s.dueInstant(ctx, task, occurrenceID)
	if err != nil {
		return nil, err
	}

	fireAt := due.Add(time.Duration(offset) * time.Minute)
	if !fireAt.After(s.clk.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrFireAtPast, fireAt.UTC().Format(time.RFC3339))
	}

	n, err := s.store.CountActiveReminders(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if n >= MaxPerTask {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyReminders, MaxPerTask)
	}

	r := &model.Reminder{
		TaskID:        taskID,
		OccurrenceID:  occurrenceID,
		OwnerID:       ownerID,
		FireAt:        fireAt.UTC(),
		OffsetMinutes: offset,
		Status:        model.ReminderPending,
	}
	if err := s.store.InsertReminder(ctx, r); err != nil {
		return nil, err
	}
	s.log.Debug("reminder created",
		logx.String("reminder", r.ID),
		logx.String("task", taskID),
		logx.Time("fire_at", r.FireAt),
		logx.Int("offset_min", offset))
	return r, nil
}

func (s *Service) resolveOffset(ctx context.Context, ownerID string, offsetMinutes *int) (int, error) {
	if offsetMinutes == nil {
		p, err := s.prefs.Get(ctx, ownerID)
		if err != nil {
			return 0, err
		}
		offsetMinutes = p.DefaultReminderOffsetMinutes
	}
	if offsetMinutes == nil {
		return 0, ErrNoOffset
	}
	if *offsetMinutes >= 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadOffset, *offsetMinutes)
	}
	return *offsetMinutes, nil
}

// dueInstant resolves what the reminder offset applies to. Plain tasks
// use their due time directly. Occurrence-bound reminders combine the
// occurrence's calendar date with the task's due time-of-day in the
// owner's timezone; a task without a due time means start of that day.
func (s *Service) dueInstant(ctx context.Context, task *model.Task, occurrenceID *string) (time.Time, error) {
	if occurrenceID == nil {
		if task.DueAt == nil {
			return time.Time{}, ErrNoDueTime
		}
		return *task.DueAt, nil
	}

	occ, err := s.store.GetOccurrence(ctx, *occurrenceID)
	if err != nil {
		return time.Time{}, err
	}
	if occ.TaskID != task.ID || occ.OwnerID != task.OwnerID {
		return time.Time{}, ErrNotFound
	}

	loc, err := s.prefs.Location(ctx, task.OwnerID)
	if err != nil {
		return time.Time{}, err
	}
	return combineDateAndTime(occ.Date, task.DueAt, loc), nil
}

// combineDateAndTime places the task's due time-of-day on the
// occurrence's date, in the owner's timezone.
func combineDateAndTime(date time.Time, dueAt *time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	hour, minute, sec := 0, 0, 0
	if dueAt != nil {
		hour, minute, sec = dueAt.In(loc).Clock()
	}
	return time.Date(y, m, d, hour, minute, sec, 0, loc)
}

// List returns every reminder on a task the owner can see.
func (s *Service) List(ctx context.Context, ownerID, taskID string) ([]*model.Reminder, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return s.store.ListTaskReminders(ctx, taskID)
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.store.DeleteReminder(ctx, ownerID, id)
}

// Snooze closes the original reminder as snoozed (terminal, history
// preserved) and schedules a brand-new reminder at now + minutes. The
// original's fireAt is never mutated.
func (s *Service) Snooze(ctx context.Context, ownerID, id string, minutes int) (*model.Reminder, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("reminder: snooze minutes must be positive, got %d", minutes)
	}
	orig, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if orig.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if orig.Status != model.ReminderPending && orig.Status != model.ReminderSent {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotSnoozable, id, orig.Status)
	}

	until := s.clk.Now().Add(time.Duration(minutes) * time.Minute).UTC()
	if err := s.store.SetReminderStatus(ctx, id, model.ReminderSnoozed, &until); err != nil {
		return nil, err
	}

	// The replacement bypasses the cap: it stands in for the reminder
	// that just went terminal.
	next := &model.Reminder{
		TaskID:        orig.TaskID,
		OccurrenceID:  orig.OccurrenceID,
		OwnerID:       orig.OwnerID,
		FireAt:        until,
		OffsetMinutes: orig.OffsetMinutes,
		Status:        model.ReminderPending,
	}
	if err := s.store.InsertReminder(ctx, next); err != nil {
		return nil, err
	}
	s.log.Debug("reminder snoozed",
		logx.String("original", id),
		logx.String("replacement", next.ID),
		logx.Time("fire_at", until))
	return next, nil
}

// CancelForTask transitions all pending reminders of a task to cancelled.
// Part of the task-deletion cascade.
func (s *Service) CancelForTask(ctx context.Context, taskID string) error {
	n, err := s.store.CancelTaskReminders(ctx, taskID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Debug("reminders cancelled", logx.String("task", taskID), logx.Int64("count", n))
	}
	return nil
}

// RecomputeForTask recomputes fireAt on pending reminders after the
// task's due time changed. fireAt is derived state: dueInstant + offset.
func (s *Service) RecomputeForTask(ctx context.Context, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	reminders, err := s.store.ListTaskReminders(ctx, taskID)
	if err != nil {
		return err
	}
	for _, r := range reminders {
		if r.Status != model.ReminderPending {
			continue
		}
		due, err := s.dueInstant(ctx, task, r.OccurrenceID)
		if err != nil {
			if errors.Is(err, ErrNoDueTime) {
				continue // due time removed; leave the reminder as scheduled
			}
			return err
		}
		fireAt := due.Add(time.Duration(r.OffsetMinutes) * time.Minute).UTC()
		if fireAt.Equal(r.FireAt) {
			continue
		}
		if err := s.store.UpdateReminderFireAt(ctx, r.ID, fireAt); err != nil {
			return err
		}
	}
	return nil
}

