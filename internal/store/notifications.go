package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vinilomarket/vinilo/internal/model"
)

// CreateNotification records a message for a user. orderID and tradeID are
// optional references.
func CreateNotification(ctx context.Context, db *sql.DB, userID int64, title, message, orderID, tradeID string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, title, message, order_id, trade_id)
		 VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
		userID, title, message, orderID, tradeID,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func ListNotifications(ctx context.Context, db *sql.DB, userID int64, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT id, user_id, title, message, order_id, trade_id, read, created_at
	          FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var (
			n                model.Notification
			orderID, tradeID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &orderID, &tradeID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.OrderID = orderID.String
		n.TradeID = tradeID.String
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead marks one of a user's notifications as read.
func MarkNotificationRead(ctx context.Context, db *sql.DB, userID, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
