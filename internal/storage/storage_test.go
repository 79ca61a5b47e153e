package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindd/internal/model"
	"remindd/pkg/logx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustCreateTask(t *testing.T, st *Store, owner, title string) *model.Task {
	t.Helper()
	task := &model.Task{OwnerID: owner, Title: title}
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := &model.Task{
		OwnerID: "alice",
		Title:   "water plants",
		Notes:   "the big one first",
		DueAt:   &due,
		Rule: &model.RecurrenceRule{
			Frequency: model.FreqWeekly,
			Interval:  1,
			ByWeekday: []time.Weekday{time.Monday, time.Friday},
		},
		AnchorDate: date(2026, 3, 2),
	}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != task.Title || got.Notes != task.Notes {
		t.Errorf("fields mismatch: got %q/%q", got.Title, got.Notes)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Errorf("due_at mismatch: got %v", got.DueAt)
	}
	if got.Rule == nil || got.Rule.Frequency != model.FreqWeekly || len(got.Rule.ByWeekday) != 2 {
		t.Errorf("rule mismatch: got %+v", got.Rule)
	}
	if !got.AnchorDate.Equal(task.AnchorDate) {
		t.Errorf("anchor mismatch: got %v", got.AnchorDate)
	}

	if _, err := st.GetTask(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing task: want ErrNotFound, got %v", err)
	}
}

func TestInsertOccurrenceDedup(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := mustCreateTask(t, st, "alice", "standup")

	occ := &model.Occurrence{TaskID: task.ID, OwnerID: "alice", Date: date(2026, 3, 2), Status: model.OccurrencePending}
	ok, err := st.InsertOccurrence(ctx, occ)
	if err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}

	dup := &model.Occurrence{TaskID: task.ID, OwnerID: "alice", Date: date(2026, 3, 2), Status: model.OccurrencePending}
	ok, err = st.InsertOccurrence(ctx, dup)
	if err != nil {
		t.Fatalf("dup insert: %v", err)
	}
	if ok {
		t.Error("duplicate (task, date) insert reported as inserted")
	}
}

func TestClaimDueRemindersOnce(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := mustCreateTask(t, st, "alice", "pay rent")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(fireAt time.Time) *model.Reminder {
		r := &model.Reminder{TaskID: task.ID, OwnerID: "alice", FireAt: fireAt, OffsetMinutes: -30}
		if err := st.InsertReminder(ctx, r); err != nil {
			t.Fatalf("insert reminder: %v", err)
		}
		return r
	}
	second := mk(now.Add(-time.Minute))
	first := mk(now.Add(-time.Hour))
	mk(now.Add(time.Hour)) // future, must not be claimed

	claimed, err := st.ClaimDueReminders(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d, want 2", len(claimed))
	}
	if claimed[0].ID != first.ID || claimed[1].ID != second.ID {
		t.Errorf("claim order wrong: got %s, %s", claimed[0].ID, claimed[1].ID)
	}
	for _, r := range claimed {
		if r.Status != model.ReminderSent {
			t.Errorf("claimed reminder %s status = %s, want sent", r.ID, r.Status)
		}
		if r.SentAt == nil {
			t.Errorf("claimed reminder %s has no sent_at", r.ID)
		}
	}

	again, err := st.ClaimDueReminders(ctx, now, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second claim returned %d reminders, want 0", len(again))
	}
}

func TestClaimDueRemindersConcurrent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := mustCreateTask(t, st, "alice", "pay rent")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	const due = 20
	for i := 0; i < due; i++ {
		r := &model.Reminder{
			TaskID: task.ID, OwnerID: "alice",
			FireAt: now.Add(-time.Duration(i+1) * time.Minute), OffsetMinutes: -30,
		}
		if err := st.InsertReminder(ctx, r); err != nil {
			t.Fatalf("insert reminder: %v", err)
		}
	}

	// Two pollers racing: every reminder must be claimed by exactly one.
	results := make([][]*model.Reminder, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = st.ClaimDueReminders(ctx, now, due/2)
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	total := 0
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("claim %d: %v", i, errs[i])
		}
		for _, r := range results[i] {
			seen[r.ID]++
			total++
		}
	}
	if total != due {
		t.Errorf("claimed %d reminders across both pollers, want %d", total, due)
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("reminder %s claimed by both pollers", id)
		}
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := mustCreateTask(t, st, "alice", "doomed")

	if _, err := st.InsertOccurrence(ctx, &model.Occurrence{
		TaskID: task.ID, OwnerID: "alice", Date: date(2026, 4, 1), Status: model.OccurrencePending,
	}); err != nil {
		t.Fatalf("insert occurrence: %v", err)
	}
	r := &model.Reminder{TaskID: task.ID, OwnerID: "alice", FireAt: time.Now().Add(time.Hour), OffsetMinutes: -10}
	if err := st.InsertReminder(ctx, r); err != nil {
		t.Fatalf("insert reminder: %v", err)
	}

	if err := st.DeleteTask(ctx, "alice", task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetReminder(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("reminder survived task deletion: %v", err)
	}
	occs, err := st.ListTaskOccurrences(ctx, task.ID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(occs) != 0 {
		t.Errorf("%d occurrences survived task deletion", len(occs))
	}
}

func TestPurgeNotificationsBefore(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -40)
	insert := func(created time.Time, read bool) *model.Notification {
		n := &model.Notification{OwnerID: "alice", Type: model.NotifReminder, Title: "x", Read: read, CreatedAt: created}
		if err := st.InsertNotification(ctx, n); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
		return n
	}
	insert(old, true) // purged
	keptUnread := insert(old, false)
	keptNew := insert(now, true)

	deleted, err := st.PurgeNotificationsBefore(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Errorf("purged %d, want 1", deleted)
	}
	left, err := st.ListNotifications(ctx, "alice", false, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("%d notifications left, want 2", len(left))
	}
	ids := map[string]bool{left[0].ID: true, left[1].ID: true}
	if !ids[keptUnread.ID] || !ids[keptNew.ID] {
		t.Errorf("wrong survivors: %v", ids)
	}
}

func TestPrefsUpsertKeepsDigestDate(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	p := &model.SchedulingPrefs{OwnerID: "alice", Timezone: "UTC", DailyDigestEnabled: true, DailyDigestTime: "08:00"}
	if err := st.UpsertPrefs(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.SetLastDigestDate(ctx, "alice", "2026-03-01"); err != nil {
		t.Fatalf("set digest date: %v", err)
	}

	// A prefs save must not clobber the digest bookkeeping.
	p.DailyDigestTime = "09:30"
	if err := st.UpsertPrefs(ctx, p); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := st.GetPrefs(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DailyDigestTime != "09:30" {
		t.Errorf("digest time = %q, want 09:30", got.DailyDigestTime)
	}
	if got.LastDigestDate != "2026-03-01" {
		t.Errorf("last digest date = %q, want 2026-03-01", got.LastDigestDate)
	}
}
