// Package occurrence owns materialized occurrence rows and their status
// state machine. Expansion is hybrid: a bounded forward window at series
// start, then exactly one backfill per consumed occurrence, so storage
// stays O(window) per active series regardless of series age.
package occurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindd/internal/clock"
	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/internal/recurrence"
	"remindd/pkg/logx"
)

var (
	ErrNotRecurring = errors.New("occurrence: task has no recurrence rule")
	ErrNotPending   = errors.New("occurrence: occurrence already decided")
	ErrNotFound     = errors.New("occurrence: not found")
)

// DefaultWindowDays is the forward materialization window.
const DefaultWindowDays = 30

// StopMode selects how a series terminates.
type StopMode string

const (
	StopImmediate  StopMode = "immediate"
	StopOnDate     StopMode = "on_date"
	StopAfterCount StopMode = "after_count"
)

// Store is the persistence surface this service needs.
type Store interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, t *model.Task) error
	ListActiveSeries(ctx context.Context) ([]*model.Task, error)

	InsertOccurrence(ctx context.Context, o *model.Occurrence) (bool, error)
	GetOccurrence(ctx context.Context, id string) (*model.Occurrence, error)
	ListOccurrences(ctx context.Context, ownerID string, from, to time.Time) ([]*model.Occurrence, error)
	OccurrenceFrontier(ctx context.Context, taskID string) (time.Time, bool, error)
	SetOccurrenceStatus(ctx context.Context, id string, status model.OccurrenceStatus, completedAt *time.Time) error
	DeletePendingAfter(ctx context.Context, taskID string, after time.Time) (int64, error)
}

type Service struct {
	store Store
	clk   clock.Clock
	log   logx.Logger
	bus   eventbus.Bus

	windowDays int
}

func New(store Store, clk clock.Clock, log logx.Logger, bus eventbus.Bus, windowDays int) *Service {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Service{store: store, clk: clk, log: log, bus: bus, windowDays: windowDays}
}

// StartSeries validates and installs a recurrence rule on a task, anchors
// it, and materializes the initial forward window.
func (s *Service) StartSeries(ctx context.Context, taskID string, rule *model.RecurrenceRule) error {
	if err := recurrence.Validate(rule); err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	anchor := recurrence.DateOf(s.clk.Now())
	if task.DueAt != nil {
		anchor = recurrence.DateOf(*task.DueAt)
	}

	task.Rule = rule
	task.AnchorDate = anchor
	task.OccurrencesGenerated = 0
	task.SeriesStopped = false
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return err
	}

	n, err := s.MaterializeThrough(ctx, taskID, s.horizon())
	if err != nil {
		return err
	}
	s.log.Info("series started",
		logx.String("task", taskID),
		logx.String("anchor", anchor.Format(time.DateOnly)),
		logx.Int("materialized", n))
	return nil
}

// MaterializeThrough ensures every occurrence up to horizon exists.
// Re-materializing an existing date is a no-op; a series already at its
// end policy is a no-op too, not an error.
func (s *Service) MaterializeThrough(ctx context.Context, taskID string, horizon time.Time) (int, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if !task.Recurring() {
		return 0, ErrNotRecurring
	}
	if task.SeriesStopped {
		return 0, nil
	}

	remaining := s.remaining(task)
	if remaining == 0 {
		return 0, nil
	}

	inserted := 0
	for _, d := range recurrence.Expand(task.Rule, task.AnchorDate, task.AnchorDate, horizon) {
		if remaining == 0 {
			break
		}
		ok, err := s.store.InsertOccurrence(ctx, &model.Occurrence{
			TaskID:  task.ID,
			OwnerID: task.OwnerID,
			Date:    d,
			Status:  model.OccurrencePending,
		})
		if err != nil {
			return inserted, err
		}
		if !ok {
			continue // date already materialized
		}
		inserted++
		task.OccurrencesGenerated++
		if remaining > 0 {
			remaining--
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.EventOccurrenceMaterialized, Data: OccurrenceEvent{
			TaskID: task.ID, OwnerID: task.OwnerID, Date: d,
		}})
	}

	if inserted > 0 {
		if err := s.store.UpdateTask(ctx, task); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// Complete transitions a pending occurrence to completed and backfills
// exactly one occurrence past the series frontier.
func (s *Service) Complete(ctx context.Context, ownerID, occurrenceID string) error {
	return s.decide(ctx, ownerID, occurrenceID, model.OccurrenceCompleted)
}

// Skip transitions a pending occurrence to skipped; like Complete, it
// consumes the occurrence and backfills one.
func (s *Service) Skip(ctx context.Context, ownerID, occurrenceID string) error {
	return s.decide(ctx, ownerID, occurrenceID, model.OccurrenceSkipped)
}

func (s *Service) decide(ctx context.Context, ownerID, occurrenceID string, status model.OccurrenceStatus) error {
	occ, err := s.store.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return err
	}
	if occ.OwnerID != ownerID {
		return ErrNotFound
	}
	if occ.Status != model.OccurrencePending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, occurrenceID, occ.Status)
	}

	var completedAt *time.Time
	if status == model.OccurrenceCompleted {
		now := s.clk.Now()
		completedAt = &now
	}
	if err := s.store.SetOccurrenceStatus(ctx, occurrenceID, status, completedAt); err != nil {
		return err
	}

	evt := eventbus.EventOccurrenceCompleted
	if status == model.OccurrenceSkipped {
		evt = eventbus.EventOccurrenceSkipped
	}
	s.bus.Publish(eventbus.Event{Type: evt, Data: OccurrenceEvent{
		TaskID: occ.TaskID, OwnerID: occ.OwnerID, Date: occ.Date,
	}})

	// Consuming an occurrence extends the window by one.
	task, err := s.store.GetTask(ctx, occ.TaskID)
	if err != nil {
		return err
	}
	return s.backfillOne(ctx, task)
}

// backfillOne materializes the single next date past the current
// frontier. At-end-policy series make this a no-op.
func (s *Service) backfillOne(ctx context.Context, task *model.Task) error {
	if !task.Recurring() || task.SeriesStopped {
		return nil
	}
	if s.remaining(task) == 0 {
		return nil
	}

	frontier, ok, err := s.store.OccurrenceFrontier(ctx, task.ID)
	if err != nil {
		return err
	}
	if !ok {
		frontier = task.AnchorDate.AddDate(0, 0, -1)
	}

	next, ok := recurrence.Next(task.Rule, task.AnchorDate, frontier)
	if !ok {
		return nil // end date exhausted
	}

	inserted, err := s.store.InsertOccurrence(ctx, &model.Occurrence{
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		Date:    next,
		Status:  model.OccurrencePending,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	task.OccurrencesGenerated++
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.EventOccurrenceMaterialized, Data: OccurrenceEvent{
		TaskID: task.ID, OwnerID: task.OwnerID, Date: next,
	}})
	return nil
}

// StopSeries prevents further backfill. Immediate stops now; on_date
// installs an end date and trims pending occurrences past it; after_count
// caps the series at n ever-generated occurrences.
func (s *Service) StopSeries(ctx context.Context, ownerID, taskID string, mode StopMode, onDate time.Time, afterCount int) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.OwnerID != ownerID {
		return ErrNotFound
	}
	if !task.Recurring() {
		return ErrNotRecurring
	}

	switch mode {
	case StopImmediate:
		task.SeriesStopped = true
	case StopOnDate:
		d := recurrence.DateOf(onDate)
		task.Rule.End = model.EndPolicy{Kind: model.EndOnDate, Date: &d}
		if _, err := s.store.DeletePendingAfter(ctx, taskID, d); err != nil {
			return err
		}
	case StopAfterCount:
		if afterCount < 1 {
			return recurrence.ErrConflictingEnd
		}
		task.Rule.End = model.EndPolicy{Kind: model.EndAfterCount, Count: afterCount}
	default:
		return fmt.Errorf("occurrence: unknown stop mode %q", mode)
	}

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.EventSeriesStopped, Data: OccurrenceEvent{
		TaskID: task.ID, OwnerID: task.OwnerID,
	}})
	s.log.Info("series stopped", logx.String("task", taskID), logx.String("mode", string(mode)))
	return nil
}

// ListRange returns an owner's occurrences for a date range.
func (s *Service) ListRange(ctx context.Context, ownerID string, from, to time.Time) ([]*model.Occurrence, error) {
	return s.store.ListOccurrences(ctx, ownerID, recurrence.DateOf(from), recurrence.DateOf(to))
}

// RefreshHorizons re-materializes the forward window for every active
// series. Run daily in the background so long-idle series keep a full
// window even when nothing is being completed.
func (s *Service) RefreshHorizons(ctx context.Context) error {
	tasks, err := s.store.ListActiveSeries(ctx)
	if err != nil {
		return err
	}
	horizon := s.horizon()
	total := 0
	for _, t := range tasks {
		n, err := s.MaterializeThrough(ctx, t.ID, horizon)
		if err != nil {
			s.log.Warn("horizon refresh failed for series", logx.String("task", t.ID), logx.Err(err))
			continue
		}
		total += n
	}
	if total > 0 {
		s.log.Info("horizons refreshed", logx.Int("series", len(tasks)), logx.Int("materialized", total))
	}
	return nil
}

func (s *Service) horizon() time.Time {
	return recurrence.DateOf(s.clk.Now()).AddDate(0, 0, s.windowDays)
}

// remaining returns how many occurrences an after_count series may still
// generate; -1 means unbounded.
func (s *Service) remaining(task *model.Task) int {
	if task.Rule.End.Kind != model.EndAfterCount {
		return -1
	}
	r := task.Rule.End.Count - task.OccurrencesGenerated
	if r < 0 {
		return 0
	}
	return r
}

// OccurrenceEvent is the bus payload for occurrence lifecycle events.
type OccurrenceEvent struct {
	TaskID  string
	OwnerID string
	Date    time.Time
}
