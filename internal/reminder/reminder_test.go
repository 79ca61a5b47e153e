package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindd/internal/clock"
	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/internal/prefs"
	"remindd/internal/storage"
	"remindd/pkg/logx"
)

// captureDispatcher records every reminder handed to it and can be told
// to fail.
type captureDispatcher struct {
	mu     sync.Mutex
	got    []*model.Reminder
	failOn string
}

func (d *captureDispatcher) Dispatch(_ context.Context, r *model.Reminder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, r)
	if d.failOn != "" && r.ID == d.failOn {
		return errors.New("dispatch boom")
	}
	return nil
}

func (d *captureDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.got))
	for i, r := range d.got {
		out[i] = r.ID
	}
	return out
}

func newFixture(t *testing.T, now time.Time) (*Service, *storage.Store, *clock.Fixed, *captureDispatcher) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewFixed(now)
	disp := &captureDispatcher{}
	p := prefs.New(st, logx.Nop())
	svc := New(Config{BatchSize: 10, DispatchTimeout: time.Second}, st, p, disp, clk, logx.Nop(), eventbus.New())
	return svc, st, clk, disp
}

func newDueTask(t *testing.T, st *storage.Store, owner string, due time.Time) *model.Task {
	t.Helper()
	task := &model.Task{OwnerID: owner, Title: "deadline", DueAt: &due}
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func intPtr(n int) *int { return &n }

func TestCreateComputesFireAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, _, _ := newFixture(t, now)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)

	r, err := svc.Create(ctx, "alice", task.ID, nil, intPtr(-60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	if !r.FireAt.Equal(want) {
		t.Errorf("fireAt = %v, want %v", r.FireAt, want)
	}
	if r.Status != model.ReminderPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
}

func TestCreateRejections(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, _, _ := newFixture(t, now)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)
	noDue := &model.Task{OwnerID: "alice", Title: "undated"}
	if err := st.CreateTask(ctx, noDue); err != nil {
		t.Fatalf("create task: %v", err)
	}

	tests := []struct {
		name   string
		taskID string
		offset *int
		want   error
	}{
		{"positive offset", task.ID, intPtr(30), ErrBadOffset},
		{"zero offset", task.ID, intPtr(0), ErrBadOffset},
		{"no offset and no default", task.ID, nil, ErrNoOffset},
		{"fire time already past", task.ID, intPtr(-600), ErrFireAtPast},
		{"task without due time", noDue.ID, intPtr(-60), ErrNoDueTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "alice", tt.taskID, nil, tt.offset); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateDefaultOffsetFromPrefs(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, _, _ := newFixture(t, now)
	ctx := context.Background()

	if err := st.UpsertPrefs(ctx, &model.SchedulingPrefs{
		OwnerID:                      "alice",
		Timezone:                     "UTC",
		DefaultReminderOffsetMinutes: intPtr(-30),
	}); err != nil {
		t.Fatalf("upsert prefs: %v", err)
	}
	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)

	r, err := svc.Create(ctx, "alice", task.ID, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.OffsetMinutes != -30 {
		t.Errorf("offset = %d, want -30 from prefs", r.OffsetMinutes)
	}
	if want := due.Add(-30 * time.Minute); !r.FireAt.Equal(want) {
		t.Errorf("fireAt = %v, want %v", r.FireAt, want)
	}
}

func TestPerTaskCap(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, _, _ := newFixture(t, now)
	ctx := context.Background()

	due := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)

	for i := 1; i <= MaxPerTask; i++ {
		if _, err := svc.Create(ctx, "alice", task.ID, nil, intPtr(-i)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := svc.Create(ctx, "alice", task.ID, nil, intPtr(-99)); !errors.Is(err, ErrTooManyReminders) {
		t.Errorf("6th reminder: want ErrTooManyReminders, got %v", err)
	}
}

func TestPerTaskCapCountsFiredReminders(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, clk, _ := newFixture(t, now)
	ctx := context.Background()

	due := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)

	near := &model.Occurrence{TaskID: task.ID, OwnerID: "alice",
		Date: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Status: model.OccurrencePending}
	far := &model.Occurrence{TaskID: task.ID, OwnerID: "alice",
		Date: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), Status: model.OccurrencePending}
	for _, o := range []*model.Occurrence{near, far} {
		if _, err := st.InsertOccurrence(ctx, o); err != nil {
			t.Fatalf("insert occurrence: %v", err)
		}
	}

	for i := 1; i <= MaxPerTask; i++ {
		if _, err := svc.Create(ctx, "alice", task.ID, &near.ID, intPtr(-60*i)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	clk.Advance(9*24*time.Hour + 5*time.Hour) // past every fire time
	if err := svc.FireDue(ctx); err != nil {
		t.Fatalf("fire: %v", err)
	}
	rs, err := st.ListTaskReminders(ctx, task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range rs {
		if r.Status != model.ReminderSent {
			t.Fatalf("reminder %s status = %s, want sent", r.ID, r.Status)
		}
	}

	// Fired reminders still occupy their slots.
	if _, err := svc.Create(ctx, "alice", task.ID, &far.ID, intPtr(-60)); !errors.Is(err, ErrTooManyReminders) {
		t.Errorf("create after firing: want ErrTooManyReminders, got %v", err)
	}

	// Deleting one frees a slot.
	if err := svc.Delete(ctx, "alice", rs[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Create(ctx, "alice", task.ID, &far.ID, intPtr(-60)); err != nil {
		t.Errorf("create after delete: %v", err)
	}
}

func TestSnoozeCreatesReplacement(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, _, _ := newFixture(t, now)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)
	orig, err := svc.Create(ctx, "alice", task.ID, nil, intPtr(-60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	next, err := svc.Snooze(ctx, "alice", orig.ID, 10)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if next.ID == orig.ID {
		t.Fatal("snooze mutated the original instead of creating a new row")
	}
	if want := now.Add(10 * time.Minute); !next.FireAt.Equal(want) {
		t.Errorf("replacement fireAt = %v, want %v", next.FireAt, want)
	}

	stored, err := st.GetReminder(ctx, orig.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if stored.Status != model.ReminderSnoozed {
		t.Errorf("original status = %s, want snoozed", stored.Status)
	}
	if !stored.FireAt.Equal(orig.FireAt) {
		t.Errorf("original fireAt changed: %v -> %v", orig.FireAt, stored.FireAt)
	}

	// Terminal states cannot be snoozed again.
	if _, err := svc.Snooze(ctx, "alice", orig.ID, 10); !errors.Is(err, ErrNotSnoozable) {
		t.Errorf("re-snooze: want ErrNotSnoozable, got %v", err)
	}
}

func TestFireDueClaimsOnceAndIsolatesFailures(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, clk, disp := newFixture(t, now)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)

	early, err := svc.Create(ctx, "alice", task.ID, nil, intPtr(-240)) // fires 11:00
	if err != nil {
		t.Fatalf("create early: %v", err)
	}
	late, err := svc.Create(ctx, "alice", task.ID, nil, intPtr(-180)) // fires 12:00
	if err != nil {
		t.Fatalf("create late: %v", err)
	}
	disp.failOn = early.ID

	clk.Advance(150 * time.Minute) // past both fire times
	if err := svc.FireDue(ctx); err != nil {
		t.Fatalf("fire: %v", err)
	}

	got := disp.ids()
	if len(got) != 2 || got[0] != early.ID || got[1] != late.ID {
		t.Fatalf("dispatched %v, want [%s %s] in fireAt order", got, early.ID, late.ID)
	}

	// The failed dispatch stays claimed: no retry on the next pass.
	if err := svc.FireDue(ctx); err != nil {
		t.Fatalf("second fire: %v", err)
	}
	if len(disp.ids()) != 2 {
		t.Errorf("second pass re-dispatched: %v", disp.ids())
	}
	stored, _ := st.GetReminder(ctx, early.ID)
	if stored.Status != model.ReminderSent {
		t.Errorf("failed dispatch status = %s, want sent", stored.Status)
	}
}

func TestRecomputeForTask(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, st, _, _ := newFixture(t, now)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := newDueTask(t, st, "alice", due)
	r, err := svc.Create(ctx, "alice", task.ID, nil, intPtr(-60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newDue := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	task.DueAt = &newDue
	if err := st.UpdateTask(ctx, task); err != nil {
		t.Fatalf("update task: %v", err)
	}
	if err := svc.RecomputeForTask(ctx, task.ID); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	stored, _ := st.GetReminder(ctx, r.ID)
	if want := newDue.Add(-60 * time.Minute); !stored.FireAt.Equal(want) {
		t.Errorf("recomputed fireAt = %v, want %v", stored.FireAt, want)
	}
}
