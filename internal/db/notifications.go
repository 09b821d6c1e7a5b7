package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"notification-service/internal/models"
)

const notificationColumns = `
        id, recipient_id, recipient_email, type, channel, subject, content,
        template_id, status, error_message, retry_count, sent_at, delivered_at,
        created_at, updated_at`

// CreateNotification inserts a new delivery record and fills in its
// generated id and timestamps.
func (d *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
        INSERT INTO notifications (
            recipient_id, recipient_email, type, channel, subject, content,
            template_id, status, error_message, retry_count
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at, updated_at`
	err := d.Pool.QueryRow(ctx, query,
		n.RecipientID, nullableString(n.RecipientEmail), n.Type, n.Channel,
		n.Subject, n.Content, n.TemplateID, n.Status, n.ErrorMessage, n.RetryCount,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// UpdateNotification persists the mutable delivery fields of a record.
func (d *DB) UpdateNotification(ctx context.Context, n *models.Notification) error {
	query := `
        UPDATE notifications
        SET status = $1, error_message = $2, retry_count = $3,
            sent_at = $4, delivered_at = $5, updated_at = now()
        WHERE id = $6`
	result, err := d.Pool.Exec(ctx, query,
		n.Status, n.ErrorMessage, n.RetryCount, n.SentAt, n.DeliveredAt, n.ID)
	if err != nil {
		return fmt.Errorf("failed to update notification %d: %w", n.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no notification updated for id %d", n.ID)
	}
	return nil
}

// GetNotificationByID fetches a single delivery record.
func (d *DB) GetNotificationByID(ctx context.Context, id int) (models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, fmt.Errorf("no notification found for id %d", id)
		}
		return models.Notification{}, fmt.Errorf("failed to get notification %d: %w", id, err)
	}
	return n, nil
}

// GetPendingNotifications returns records still eligible for a retry sweep:
// status PENDING with retry_count below the ceiling.
func (d *DB) GetPendingNotifications(ctx context.Context, maxRetry int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        WHERE status = $1 AND retry_count < $2
        ORDER BY created_at`
	rows, err := d.Pool.Query(ctx, query, models.StatusPending, maxRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

// GetNotificationsByRecipient returns a recipient's records, newest first.
func (d *DB) GetNotificationsByRecipient(ctx context.Context, recipientID, limit, offset int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        WHERE recipient_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := d.Pool.Query(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications for recipient %d: %w", recipientID, err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

// GetAllNotifications returns records across all recipients, newest first.
func (d *DB) GetAllNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`
	rows, err := d.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get all notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	var email *string
	err := row.Scan(
		&n.ID, &n.RecipientID, &email, &n.Type, &n.Channel, &n.Subject,
		&n.Content, &n.TemplateID, &n.Status, &n.ErrorMessage, &n.RetryCount,
		&n.SentAt, &n.DeliveredAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return models.Notification{}, err
	}
	if email != nil {
		n.RecipientEmail = *email
	}
	return n, nil
}

func collectNotifications(rows pgx.Rows) ([]models.Notification, error) {
	var notifications []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
