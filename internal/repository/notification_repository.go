package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

// NotificationRepository persists notifications and per-recipient read marks.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores the notification and its recipients.
func (r *NotificationRepository) Create(ctx context.Context, exec sqlx.ExtContext, n *models.Notification) error {
	if exec == nil {
		exec = r.db
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Data == nil {
		n.Data = models.NotificationData{"type": string(n.Kind)}
	}
	const query = `INSERT INTO notifications (id, kind, title, message, sender_id, data, created_at)
VALUES (:id, :kind, :title, :message, :sender_id, :data, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	const recipient = `INSERT INTO notification_recipients (notification_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, userID := range n.Recipients {
		if _, err := exec.ExecContext(ctx, recipient, n.ID, userID); err != nil {
			return fmt.Errorf("add notification recipient: %w", err)
		}
	}
	return nil
}

// MarkRead records that userID has seen the notification. sql.ErrNoRows means userID is not a recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	const query = `UPDATE notification_recipients SET read_at = COALESCE(read_at, $3) WHERE notification_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark read rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListForUser returns the newest notifications addressed to userID with the user's read mark.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT n.id, n.kind, n.title, n.message, n.sender_id, n.data, n.created_at, nr.read_at
FROM notifications n
JOIN notification_recipients nr ON nr.notification_id = n.id
WHERE nr.user_id = $1
ORDER BY n.created_at DESC
LIMIT $2`
	var list []models.Notification
	if err := r.db.SelectContext(ctx, &list, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}
