package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remindd/internal/model"
)

type subscriberRow struct {
	ID             string `db:"id"`
	OwnerID        string `db:"owner_id"`
	EndpointHandle string `db:"endpoint_handle"`
	Keys           string `db:"keys"`
	Stale          bool   `db:"stale"`
	LastUsedAt     *int64 `db:"last_used_at"`
	CreatedAt      int64  `db:"created_at"`
}

func (r subscriberRow) toModel() *model.PushSubscriber {
	return &model.PushSubscriber{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		EndpointHandle: r.EndpointHandle,
		Keys:           r.Keys,
		Stale:          r.Stale,
		LastUsedAt:     fromMilliPtr(r.LastUsedAt),
		CreatedAt:      fromMilli(r.CreatedAt),
	}
}

func (s *Store) InsertSubscriber(ctx context.Context, sub *model.PushSubscriber) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscribers (id, owner_id, endpoint_handle, keys, stale, last_used_at, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		sub.ID, sub.OwnerID, sub.EndpointHandle, sub.Keys, sub.Stale,
		milliPtr(sub.LastUsedAt), milli(sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// ListActiveSubscribers returns an owner's non-stale delivery targets.
func (s *Store) ListActiveSubscribers(ctx context.Context, ownerID string) ([]*model.PushSubscriber, error) {
	var rows []subscriberRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM push_subscribers WHERE owner_id = ? AND stale = 0 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	out := make([]*model.PushSubscriber, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// MarkSubscriberStale records a failed delivery target. Stale subscribers
// are skipped until re-registered by the subscription flow.
func (s *Store) MarkSubscriberStale(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE push_subscribers SET stale = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark subscriber stale: %w", err)
	}
	return nil
}

func (s *Store) TouchSubscriber(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE push_subscribers SET last_used_at = ? WHERE id = ?`, milli(at), id)
	if err != nil {
		return fmt.Errorf("touch subscriber: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscriber(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM push_subscribers WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
