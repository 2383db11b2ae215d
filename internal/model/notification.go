package model

import "time"

// Notification is a message to a user, produced on every order or trade
// status transition. Dispatch to external channels is a collaborator's job;
// the engine only records them.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	OrderID   string    `json:"order_id,omitempty"`
	TradeID   string    `json:"trade_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
