// Package notify converts fired reminders into persisted notifications
// and fans delivery out over channels: in-app always (the durability
// guarantee), push best-effort per subscriber.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"remindd/internal/clock"
	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/internal/push"
	"remindd/internal/storage"
	"remindd/pkg/logx"
)

// Store is the persistence surface this service needs.
type Store interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)

	InsertNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit, offset int) ([]*model.Notification, error)
	CountUnreadNotifications(ctx context.Context, ownerID string) (int, error)
	MarkNotificationRead(ctx context.Context, ownerID, id string) error
	MarkAllNotificationsRead(ctx context.Context, ownerID string) (int64, error)
	DeleteNotification(ctx context.Context, ownerID, id string) error
	PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	ListActiveSubscribers(ctx context.Context, ownerID string) ([]*model.PushSubscriber, error)
	MarkSubscriberStale(ctx context.Context, id string) error
	TouchSubscriber(ctx context.Context, id string, at time.Time) error

	ListDueOn(ctx context.Context, ownerID string, date time.Time) ([]storage.DueItem, error)
}

// Prefs supplies per-owner policy and timezone.
type Prefs interface {
	Get(ctx context.Context, ownerID string) (*model.SchedulingPrefs, error)
	Location(ctx context.Context, ownerID string) (*time.Location, error)
	ListDigestOwners(ctx context.Context) ([]*model.SchedulingPrefs, error)
	SetLastDigestDate(ctx context.Context, ownerID, localDate string) error
}

type Config struct {
	// PushTimeout bounds delivery to a single subscriber.
	PushTimeout time.Duration
	// PushRatePerSec throttles the push channel overall.
	PushRatePerSec int
	// RetentionDays is how long read notifications are kept.
	RetentionDays int
}

func (c Config) withDefaults() Config {
	if c.PushTimeout <= 0 {
		c.PushTimeout = 5 * time.Second
	}
	if c.PushRatePerSec <= 0 {
		c.PushRatePerSec = 10
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	return c
}

type Dispatcher struct {
	cfg    Config
	store  Store
	prefs  Prefs
	sender push.Sender
	clk    clock.Clock
	log    logx.Logger
	bus    eventbus.Bus

	limiter *rate.Limiter
}

func New(cfg Config, store Store, prefs Prefs, sender push.Sender, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	cfg = cfg.withDefaults()
	if sender == nil {
		sender = push.Disabled{}
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   store,
		prefs:   prefs,
		sender:  sender,
		clk:     clk,
		log:     log,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(cfg.PushRatePerSec), cfg.PushRatePerSec),
	}
}

// Dispatch handles one fired reminder. The in-app notification is the
// guaranteed channel: its failure is the only error this returns. Push
// runs after it, per-subscriber isolated, failures swallowed into stale
// marking.
func (d *Dispatcher) Dispatch(ctx context.Context, r *model.Reminder) error {
	title := "Reminder"
	body := ""
	task, err := d.store.GetTask(ctx, r.TaskID)
	switch {
	case err == nil:
		title = "Reminder: " + task.Title
		body = task.Notes
	case errors.Is(err, storage.ErrNotFound):
		// Accepted race: the task was deleted after the reminder was
		// claimed. Deliver with a generic title.
	default:
		return err
	}

	typ := model.NotifReminder
	if r.OccurrenceID != nil {
		typ = model.NotifRecurringDue
	}

	n := &model.Notification{
		OwnerID:       r.OwnerID,
		Type:          typ,
		Title:         title,
		Body:          body,
		RelatedTaskID: r.TaskID,
		CreatedAt:     d.clk.Now(),
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("notify: persisting in-app notification: %w", err)
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.EventNotificationCreated, Data: n})

	d.fanOut(ctx, r.OwnerID, push.Payload{Title: title, Body: body, TaskID: r.TaskID})
	return nil
}

// fanOut attempts push delivery to every active subscriber. One failing
// endpoint is marked stale and skipped next time; it never aborts the
// others and never surfaces to the caller.
func (d *Dispatcher) fanOut(ctx context.Context, ownerID string, p push.Payload) {
	prefs, err := d.prefs.Get(ctx, ownerID)
	if err != nil {
		d.log.Warn("push skipped: prefs unavailable", logx.String("owner", ownerID), logx.Err(err))
		return
	}
	if !prefs.PushEnabled {
		return
	}

	subs, err := d.store.ListActiveSubscribers(ctx, ownerID)
	if err != nil {
		d.log.Warn("push skipped: subscriber lookup failed", logx.String("owner", ownerID), logx.Err(err))
		return
	}

	for _, sub := range subs {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
		err := d.sender.Send(sctx, sub, p)
		cancel()

		switch {
		case err == nil:
			_ = d.store.TouchSubscriber(ctx, sub.ID, d.clk.Now())
		case errors.Is(err, push.ErrDisabled):
			return
		default:
			d.log.Warn("push delivery failed; marking subscriber stale",
				logx.String("owner", ownerID),
				logx.String("subscriber", sub.ID),
				logx.Err(err))
			if merr := d.store.MarkSubscriberStale(ctx, sub.ID); merr != nil {
				d.log.Error("marking subscriber stale failed", logx.String("subscriber", sub.ID), logx.Err(merr))
			}
		}
	}
}

// ---- notification surface for the CRUD layer ----

func (d *Dispatcher) ListNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit, offset int) ([]*model.Notification, error) {
	return d.store.ListNotifications(ctx, ownerID, unreadOnly, limit, offset)
}

func (d *Dispatcher) CountUnread(ctx context.Context, ownerID string) (int, error) {
	return d.store.CountUnreadNotifications(ctx, ownerID)
}

func (d *Dispatcher) MarkRead(ctx context.Context, ownerID, id string) error {
	return d.store.MarkNotificationRead(ctx, ownerID, id)
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, ownerID string) (int64, error) {
	return d.store.MarkAllNotificationsRead(ctx, ownerID)
}

func (d *Dispatcher) DeleteNotification(ctx context.Context, ownerID, id string) error {
	return d.store.DeleteNotification(ctx, ownerID, id)
}
