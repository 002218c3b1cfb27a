package event_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/id"
	"crmflow/internal/domain"
	"crmflow/internal/domain/notification"
	"crmflow/internal/infrastructure/storage/postgres"
)

var notificationCols = postgres.Columns[notification.Notification]()

// NotificationRepo stores notifications and implements notification.Sink.
// Rows are written through the pool; notifications are sent after commit.
type NotificationRepo struct {
	txm *postgres.TxManager
}

// NewNotificationRepo creates the repository.
func NewNotificationRepo(txm *postgres.TxManager) *NotificationRepo {
	return &NotificationRepo{txm: txm}
}

// Notify inserts one notification.
func (r *NotificationRepo) Notify(ctx context.Context, n notification.Notification) error {
	sql, args, err := postgres.Builder().
		Insert("notifications").
		SetMap(postgres.ValueMap(n)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.PoolQuerier().Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListForUser returns a user's notifications, newest first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID id.ID, unreadOnly bool, p domain.Pagination) ([]notification.Notification, error) {
	q := postgres.Builder().
		Select(notificationCols...).
		From("notifications").
		Where("user_id = ?", userID).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset))
	if unreadOnly {
		q = q.Where("is_read = FALSE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []notification.Notification
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkRead marks the given notifications of userID read and returns how many changed.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID id.ID, ids []id.ID) (int64, error) {
	q := r.txm.GetQuerier(ctx)

	query := `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND id = ANY($2) AND is_read = FALSE`
	result, err := q.Exec(ctx, query, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ notification.Sink = (*NotificationRepo)(nil)
