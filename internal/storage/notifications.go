package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remindd/internal/model"
)

type notificationRow struct {
	ID            string `db:"id"`
	OwnerID       string `db:"owner_id"`
	Type          string `db:"type"`
	Title         string `db:"title"`
	Body          string `db:"body"`
	RelatedTaskID string `db:"related_task_id"`
	Read          bool   `db:"read"`
	CreatedAt     int64  `db:"created_at"`
}

func (r notificationRow) toModel() *model.Notification {
	return &model.Notification{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Type:          model.NotificationType(r.Type),
		Title:         r.Title,
		Body:          r.Body,
		RelatedTaskID: r.RelatedTaskID,
		Read:          r.Read,
		CreatedAt:     fromMilli(r.CreatedAt),
	}
}

func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, owner_id, type, title, body, related_task_id, read, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.OwnerID, string(n.Type), n.Title, n.Body, n.RelatedTaskID, n.Read, milli(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications pages through an owner's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit, offset int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT * FROM notifications WHERE owner_id = ?`
	args := []any{ownerID}
	if unreadOnly {
		q += ` AND read = 0`
	}
	q += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]*model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM notifications WHERE owner_id = ? AND read = 0`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1 WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1 WHERE owner_id = ? AND read = 0`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) DeleteNotification(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeNotificationsBefore deletes read notifications created before the
// cutoff. It runs from the purge job, never on the firing path.
func (s *Store) PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE read = 1 AND created_at < ?`, milli(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
