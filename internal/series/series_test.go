package series

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"remindd/internal/clock"
	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/internal/occurrence"
	"remindd/internal/storage"
	"remindd/pkg/logx"
)

type recomputeRecorder struct {
	tasks []string
}

func (r *recomputeRecorder) RecomputeForTask(_ context.Context, taskID string) error {
	r.tasks = append(r.tasks, taskID)
	return nil
}

func newFixture(t *testing.T, now time.Time, windowDays int) (*Resolver, *storage.Store, *recomputeRecorder, *occurrence.Service) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewFixed(now)
	occ := occurrence.New(st, clk, logx.Nop(), eventbus.New(), windowDays)
	rem := &recomputeRecorder{}
	return New(st, occ, rem, clk, logx.Nop(), windowDays), st, rem, occ
}

func startDaily(t *testing.T, st *storage.Store, occ *occurrence.Service, owner string, due time.Time, interval int) *model.Task {
	t.Helper()
	ctx := context.Background()
	task := &model.Task{OwnerID: owner, Title: "stretch", DueAt: &due}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	rule := &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: interval, End: model.EndPolicy{Kind: model.EndNever}}
	if err := occ.StartSeries(ctx, task.ID, rule); err != nil {
		t.Fatalf("start series: %v", err)
	}
	return task
}

func occurrenceOn(t *testing.T, st *storage.Store, taskID string, date time.Time) *model.Occurrence {
	t.Helper()
	occs, err := st.ListTaskOccurrences(context.Background(), taskID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	for _, o := range occs {
		if o.Date.Equal(date) {
			return o
		}
	}
	t.Fatalf("no occurrence on %s", date.Format(time.DateOnly))
	return nil
}

func strPtr(s string) *string { return &s }

func TestThisOnlyDetaches(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	r, st, _, occ := newFixture(t, now, 7)
	ctx := context.Background()

	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	parent := startDaily(t, st, occ, "alice", due, 1)
	target := occurrenceOn(t, st, parent.ID, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))

	got, err := r.ApplyEdit(ctx, "alice", target.ID, Changes{Title: strPtr("stretch (short)")}, ScopeThisOnly)
	if err != nil {
		t.Fatalf("apply edit: %v", err)
	}
	if got.ID == parent.ID {
		t.Fatal("this_only edit landed on the series task")
	}
	if got.Title != "stretch (short)" {
		t.Errorf("standalone title = %q", got.Title)
	}
	if got.Rule != nil {
		t.Error("standalone task inherited the recurrence rule")
	}
	// The standalone keeps the occurrence's date at the series' time of day.
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if got.DueAt == nil || !got.DueAt.Equal(want) {
		t.Errorf("standalone due = %v, want %v", got.DueAt, want)
	}

	after, err := st.GetOccurrence(ctx, target.ID)
	if err != nil {
		t.Fatalf("get occurrence: %v", err)
	}
	if !after.Detached {
		t.Error("occurrence not flagged detached")
	}

	kept, err := st.GetTask(ctx, parent.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if kept.Title != "stretch" {
		t.Errorf("series title changed to %q", kept.Title)
	}
	if !kept.AnchorDate.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("series anchor moved to %v", kept.AnchorDate)
	}
}

func TestDetachedDateNeverRegenerates(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	r, st, _, occ := newFixture(t, now, 7)
	ctx := context.Background()

	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	parent := startDaily(t, st, occ, "alice", due, 1)
	target := occurrenceOn(t, st, parent.ID, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))

	if _, err := r.ApplyEdit(ctx, "alice", target.ID, Changes{Notes: strPtr("one-off")}, ScopeThisOnly); err != nil {
		t.Fatalf("apply edit: %v", err)
	}

	horizon := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if _, err := occ.MaterializeThrough(ctx, parent.ID, horizon); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	occs, _ := st.ListTaskOccurrences(ctx, parent.ID)
	seen := 0
	for _, o := range occs {
		if o.Date.Equal(target.Date) {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("detached date has %d rows, want the single flagged one", seen)
	}
}

func TestAllFutureRewrites(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	r, st, rem, occ := newFixture(t, now, 5)
	ctx := context.Background()

	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	parent := startDaily(t, st, occ, "alice", due, 1)

	// Decide one occurrence before the pivot: history must survive.
	done := occurrenceOn(t, st, parent.ID, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	doneAt := now
	if err := st.SetOccurrenceStatus(ctx, done.ID, model.OccurrenceCompleted, &doneAt); err != nil {
		t.Fatalf("complete occurrence: %v", err)
	}

	pivot := occurrenceOn(t, st, parent.ID, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	newRule := &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 2, End: model.EndPolicy{Kind: model.EndNever}}
	got, err := r.ApplyEdit(ctx, "alice", pivot.ID, Changes{Title: strPtr("stretch twice"), Rule: newRule}, ScopeAllFuture)
	if err != nil {
		t.Fatalf("apply edit: %v", err)
	}
	if got.ID != parent.ID {
		t.Fatal("all_future edit created a new task")
	}
	if got.Title != "stretch twice" {
		t.Errorf("title = %q", got.Title)
	}
	if !got.AnchorDate.Equal(pivot.Date) {
		t.Errorf("anchor = %v, want %v", got.AnchorDate, pivot.Date)
	}

	occs, _ := st.ListTaskOccurrences(ctx, parent.ID)
	var dates []string
	for _, o := range occs {
		dates = append(dates, o.Date.Format(time.DateOnly))
	}
	// Mar 2 pending and Mar 3 completed predate the pivot; from Mar 4 the
	// every-2-days rule runs to the 5-day horizon.
	want := []string{"2026-03-02", "2026-03-03", "2026-03-04", "2026-03-06"}
	if len(dates) != len(want) {
		t.Fatalf("occurrence dates = %v, want %v", dates, want)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Fatalf("occurrence dates = %v, want %v", dates, want)
		}
	}

	if len(rem.tasks) != 1 || rem.tasks[0] != parent.ID {
		t.Errorf("reminder recompute calls = %v", rem.tasks)
	}
}

func TestApplyEditRejections(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	r, st, _, occ := newFixture(t, now, 7)
	ctx := context.Background()

	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	parent := startDaily(t, st, occ, "alice", due, 1)
	target := occurrenceOn(t, st, parent.ID, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name    string
		ownerID string
		changes Changes
		scope   Scope
		wantErr error
	}{
		{"no changes", "alice", Changes{}, ScopeThisOnly, ErrNoChanges},
		{"wrong owner", "mallory", Changes{Title: strPtr("x")}, ScopeThisOnly, ErrNotFound},
		{"unknown scope", "alice", Changes{Title: strPtr("x")}, Scope("everything"), ErrBadScope},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.ApplyEdit(ctx, tc.ownerID, target.ID, tc.changes, tc.scope)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestApplyEditNonRecurring(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	r, st, _, _ := newFixture(t, now, 7)
	ctx := context.Background()

	task := &model.Task{OwnerID: "alice", Title: "one-off"}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	ok, err := st.InsertOccurrence(ctx, &model.Occurrence{
		TaskID: task.ID, OwnerID: "alice",
		Date: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Status: model.OccurrencePending,
	})
	if err != nil || !ok {
		t.Fatalf("insert occurrence: ok=%v err=%v", ok, err)
	}
	occs, _ := st.ListTaskOccurrences(ctx, task.ID)

	_, err = r.ApplyEdit(ctx, "alice", occs[0].ID, Changes{Title: strPtr("x")}, ScopeAllFuture)
	if !errors.Is(err, ErrNotRecurring) {
		t.Errorf("err = %v, want ErrNotRecurring", err)
	}
}
