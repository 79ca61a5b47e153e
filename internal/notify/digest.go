package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/internal/prefs"
	"remindd/internal/push"
	"remindd/internal/recurrence"
	"remindd/pkg/logx"
)

const dateLayout = "2006-01-02"

// DailyDigest aggregates everything due on the owner's local date into a
// single notification. Sent even when nothing is due, so an enabled
// digest is a daily heartbeat the owner can rely on.
func (d *Dispatcher) DailyDigest(ctx context.Context, ownerID string, asOf time.Time) error {
	loc, err := d.prefs.Location(ctx, ownerID)
	if err != nil {
		return err
	}
	today := recurrence.DateIn(asOf, loc)

	items, err := d.store.ListDueOn(ctx, ownerID, today)
	if err != nil {
		return fmt.Errorf("notify: collecting digest items: %w", err)
	}

	var body string
	if len(items) == 0 {
		body = "Nothing due today."
	} else {
		var b strings.Builder
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it.Title)
		}
		body = strings.TrimRight(b.String(), "\n")
	}
	title := fmt.Sprintf("Daily digest for %s", today.Format(dateLayout))

	n := &model.Notification{
		OwnerID:   ownerID,
		Type:      model.NotifDailyDigest,
		Title:     title,
		Body:      body,
		CreatedAt: d.clk.Now(),
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("notify: persisting digest: %w", err)
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.EventDigestSent, Data: n})

	d.fanOut(ctx, ownerID, push.Payload{Title: title, Body: body})
	return nil
}

// DigestSweep runs periodically and sends digests to owners whose local
// clock has passed their configured digest time today. The last-sent
// date makes the sweep idempotent: at most one digest per owner per
// local day, and a sweep that was down at the configured minute still
// catches up on the next run.
func (d *Dispatcher) DigestSweep(ctx context.Context) {
	owners, err := d.prefs.ListDigestOwners(ctx)
	if err != nil {
		d.log.Error("digest sweep: listing owners failed", logx.Err(err))
		return
	}

	now := d.clk.Now()
	for _, p := range owners {
		if err := d.sweepOne(ctx, p, now); err != nil {
			d.log.Warn("digest sweep: owner skipped", logx.String("owner", p.OwnerID), logx.Err(err))
		}
	}
}

func (d *Dispatcher) sweepOne(ctx context.Context, p *model.SchedulingPrefs, now time.Time) error {
	hour, minute, err := prefs.ParseHHMM(p.DailyDigestTime)
	if err != nil {
		return fmt.Errorf("bad digest time %q: %w", p.DailyDigestTime, err)
	}
	loc, err := d.prefs.Location(ctx, p.OwnerID)
	if err != nil {
		return err
	}

	local := now.In(loc)
	today := local.Format(dateLayout)
	if p.LastDigestDate == today {
		return nil
	}
	due := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if local.Before(due) {
		return nil
	}

	if err := d.DailyDigest(ctx, p.OwnerID, now); err != nil {
		return err
	}
	return d.prefs.SetLastDigestDate(ctx, p.OwnerID, today)
}
