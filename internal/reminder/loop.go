package reminder

import (
	"context"
	"time"

	"remindd/internal/eventbus"
	"remindd/pkg/logx"
)

// FireDue runs one firing-loop pass: claim every reminder whose fire
// time has arrived and hand each to the dispatcher in fireAt order.
//
// Claiming and delivery are deliberately separate steps: the claim is the
// atomic transition (pending -> sent), so a crash between claim and
// delivery loses at most that batch once and never double-fires.
// Dispatch failures are swallowed after logging; the in-app record is the
// dispatcher's own durability concern.
func (s *Service) FireDue(ctx context.Context) error {
	asOf := s.clk.Now()
	claimed, err := s.store.ClaimDueReminders(ctx, asOf, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}
	s.log.Debug("claimed due reminders", logx.Int("count", len(claimed)), logx.Time("as_of", asOf))

	for _, r := range claimed {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventReminderFired, Data: FiredEvent{
			ReminderID: r.ID, TaskID: r.TaskID, OwnerID: r.OwnerID, FireAt: r.FireAt,
		}})

		// Bound each dispatch so one unreachable push endpoint cannot
		// stall the rest of the batch.
		dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
		err := s.disp.Dispatch(dctx, r)
		cancel()
		if err != nil {
			s.log.Warn("reminder dispatch failed",
				logx.String("reminder", r.ID),
				logx.String("owner", r.OwnerID),
				logx.Err(err))
		}
	}
	return nil
}

// RunFiringLoop polls FireDue on the given interval until ctx is
// cancelled. Pass errors up so a restarting supervisor can back off.
func (s *Service) RunFiringLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.FireDue(ctx); err != nil {
				return err
			}
		}
	}
}

// FiredEvent is the bus payload for a claimed reminder.
type FiredEvent struct {
	ReminderID string
	TaskID     string
	OwnerID    string
	FireAt     time.Time
}
