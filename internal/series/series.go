// Package series resolves edits against recurring tasks: a change can
// target one occurrence without touching the series, or rewrite the
// series from an occurrence forward.
package series

import (
	"context"
	"errors"
	"time"

	"remindd/internal/clock"
	"remindd/internal/model"
	"remindd/internal/recurrence"
	"remindd/pkg/logx"
)

var (
	ErrNotFound     = errors.New("series: not found")
	ErrNotRecurring = errors.New("series: task has no recurrence rule")
	ErrBadScope     = errors.New("series: unknown edit scope")
	ErrNoChanges    = errors.New("series: edit carries no changes")
)

// Scope selects how far an edit reaches.
type Scope string

const (
	// ScopeThisOnly peels the occurrence off into a standalone task.
	ScopeThisOnly Scope = "this_only"
	// ScopeAllFuture rewrites the series from the occurrence forward.
	ScopeAllFuture Scope = "all_future"
)

// Changes holds the edited fields; nil means unchanged.
type Changes struct {
	Title *string
	Notes *string
	// DueAt carries a new due instant. For all_future edits only its
	// time of day is kept; the dates still come from the rule.
	DueAt *time.Time
	// Rule replaces the recurrence rule (all_future only).
	Rule *model.RecurrenceRule
}

func (c Changes) empty() bool {
	return c.Title == nil && c.Notes == nil && c.DueAt == nil && c.Rule == nil
}

// Store is the persistence surface the resolver needs.
type Store interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	CreateTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, t *model.Task) error
	GetOccurrence(ctx context.Context, id string) (*model.Occurrence, error)
	DetachOccurrence(ctx context.Context, id string) error
	DeletePendingAfter(ctx context.Context, taskID string, after time.Time) (int64, error)
}

// Occurrences is the slice of the occurrence service the resolver uses
// to regenerate a rewritten series.
type Occurrences interface {
	MaterializeThrough(ctx context.Context, taskID string, horizon time.Time) (int, error)
}

// Reminders lets the resolver keep reminder times in step with a
// rewritten series.
type Reminders interface {
	RecomputeForTask(ctx context.Context, taskID string) error
}

type Resolver struct {
	store Store
	occ   Occurrences
	rem   Reminders
	clk   clock.Clock
	log   logx.Logger

	windowDays int
}

func New(store Store, occ Occurrences, rem Reminders, clk clock.Clock, log logx.Logger, windowDays int) *Resolver {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Resolver{store: store, occ: occ, rem: rem, clk: clk, log: log, windowDays: windowDays}
}

// ApplyEdit applies changes to the occurrence's task under the given
// scope. It returns the task the changes landed on: the parent for
// all_future, the newly created standalone task for this_only.
func (r *Resolver) ApplyEdit(ctx context.Context, ownerID, occurrenceID string, changes Changes, scope Scope) (*model.Task, error) {
	if changes.empty() {
		return nil, ErrNoChanges
	}

	occ, err := r.store.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occ.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	task, err := r.store.GetTask(ctx, occ.TaskID)
	if err != nil {
		return nil, err
	}
	if !task.Recurring() {
		return nil, ErrNotRecurring
	}

	switch scope {
	case ScopeThisOnly:
		return r.detach(ctx, task, occ, changes)
	case ScopeAllFuture:
		return r.rewrite(ctx, task, occ, changes)
	default:
		return nil, ErrBadScope
	}
}

// detach peels one occurrence off the series as a standalone task. The
// occurrence row stays behind, flagged, so the series can never
// re-materialize that date; the rest of the series is untouched.
func (r *Resolver) detach(ctx context.Context, task *model.Task, occ *model.Occurrence, changes Changes) (*model.Task, error) {
	now := r.clk.Now()
	standalone := &model.Task{
		OwnerID:   task.OwnerID,
		Title:     task.Title,
		Notes:     task.Notes,
		DueAt:     dueInstant(occ.Date, task.DueAt),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyFields(standalone, changes)
	if changes.DueAt != nil {
		standalone.DueAt = dueInstant(occ.Date, changes.DueAt)
	}

	if err := r.store.CreateTask(ctx, standalone); err != nil {
		return nil, err
	}
	if err := r.store.DetachOccurrence(ctx, occ.ID); err != nil {
		return nil, err
	}

	r.log.Info("occurrence detached from series",
		logx.String("series", task.ID),
		logx.String("standalone", standalone.ID),
		logx.String("date", occ.Date.Format(time.DateOnly)))
	return standalone, nil
}

// rewrite re-anchors the series at the occurrence's date, applies the
// field changes to the parent, drops pending occurrences past the new
// anchor, and regenerates from it. Past decided occurrences keep their
// history.
func (r *Resolver) rewrite(ctx context.Context, task *model.Task, occ *model.Occurrence, changes Changes) (*model.Task, error) {
	applyFields(task, changes)
	if changes.DueAt != nil {
		task.DueAt = dueInstant(occ.Date, changes.DueAt)
	}
	if changes.Rule != nil {
		if err := recurrence.Validate(changes.Rule); err != nil {
			return nil, err
		}
		task.Rule = changes.Rule
	}
	task.AnchorDate = occ.Date
	task.UpdatedAt = r.clk.Now()

	deleted, err := r.store.DeletePendingAfter(ctx, task.ID, occ.Date.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	// The generated counter tracks live rows for after_count series;
	// dropped pending rows give their budget back.
	task.OccurrencesGenerated -= int(deleted)
	if task.OccurrencesGenerated < 0 {
		task.OccurrencesGenerated = 0
	}
	if err := r.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	horizon := recurrence.DateOf(r.clk.Now()).AddDate(0, 0, r.windowDays)
	n, err := r.occ.MaterializeThrough(ctx, task.ID, horizon)
	if err != nil {
		return nil, err
	}
	if err := r.rem.RecomputeForTask(ctx, task.ID); err != nil {
		r.log.Warn("reminder recompute after series rewrite failed",
			logx.String("task", task.ID), logx.Err(err))
	}

	r.log.Info("series rewritten from occurrence",
		logx.String("task", task.ID),
		logx.String("anchor", occ.Date.Format(time.DateOnly)),
		logx.Int64("pruned", deleted),
		logx.Int("materialized", n))
	return task, nil
}

func applyFields(t *model.Task, c Changes) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Notes != nil {
		t.Notes = *c.Notes
	}
}

// dueInstant combines an occurrence date with a reference due instant's
// time of day. A nil reference means midnight UTC on the date.
func dueInstant(date time.Time, ref *time.Time) *time.Time {
	if ref == nil {
		d := date
		return &d
	}
	h, m, sec := ref.Clock()
	d := time.Date(date.Year(), date.Month(), date.Day(), h, m, sec, 0, ref.Location())
	return &d
}
