package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/model"
)

// Order negotiation operations. Every state-changing call runs in a single
// transaction: read status, validate the transition against the table in
// model, append to the history, update the derived last-offer columns. The
// history is INSERT-only with server-assigned timestamps, so racing appends
// from both parties serialize into distinct entries instead of overwriting
// each other.

// SubmitInitialOffer appends the very first history entry. It is only legal
// while the history is empty; the order stays in its current status.
func SubmitInitialOffer(ctx context.Context, db *sql.DB, orderID, sender string, price decimal.Decimal, currency, message string) (*model.Order, error) {
	if err := checkOffer(sender, price, currency); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	status, _, err := orderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if model.OrderTerminal(status) {
		return nil, ErrTerminalState
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_offers WHERE order_id = ?`, orderID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting offers: %w", err)
	}
	if count > 0 {
		return nil, validationf("order %s already has a negotiation history", orderID)
	}

	if err := appendOffer(ctx, tx, orderID, sender, price, currency, message); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing offer: %w", err)
	}
	return GetOrder(ctx, db, orderID)
}

// SetCounterOffer is the store-side counter: it appends an admin entry and
// moves the order to quoted (first price on a buy intent) or counteroffered.
func SetCounterOffer(ctx context.Context, db *sql.DB, orderID string, price decimal.Decimal, currency, message string) (*model.Order, *model.OrderEvent, error) {
	if err := checkOffer(model.SenderAdmin, price, currency); err != nil {
		return nil, nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := orderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if model.OrderTerminal(order.Status) {
		return nil, nil, ErrTerminalState
	}

	newStatus := model.OrderStatusCounteroffered
	if order.Intent == model.IntentBuy && order.LastAdminPrice == nil {
		newStatus = model.OrderStatusQuoted
	}
	if !model.CanTransitionOrder(order.Status, newStatus) {
		return nil, nil, ErrTerminalState
	}

	if err := appendOffer(ctx, tx, orderID, model.SenderAdmin, price, currency, message); err != nil {
		return nil, nil, err
	}
	if err := setOrderStatus(ctx, tx, orderID, newStatus); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing counter-offer: %w", err)
	}

	updated, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, nil, err
	}
	return updated, orderEvent(updated), nil
}

// SubmitUserCounter is the customer-side counter. Resubmitting the same
// price and currency as the last user entry is a no-op.
func SubmitUserCounter(ctx context.Context, db *sql.DB, orderID string, price decimal.Decimal, currency, message string) (*model.Order, *model.OrderEvent, error) {
	if err := checkOffer(model.SenderUser, price, currency); err != nil {
		return nil, nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := orderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if model.OrderTerminal(order.Status) {
		return nil, nil, ErrTerminalState
	}

	if order.LastUserPrice != nil && order.LastUserPrice.Equal(price) && order.LastUserCurrency == currency {
		// Double submission of the same ask; nothing to record.
		return order, nil, nil
	}

	if !model.CanTransitionOrder(order.Status, model.OrderStatusNegotiating) {
		return nil, nil, ErrTerminalState
	}

	if err := appendOffer(ctx, tx, orderID, model.SenderUser, price, currency, message); err != nil {
		return nil, nil, err
	}
	if err := setOrderStatus(ctx, tx, orderID, model.OrderStatusNegotiating); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing counter: %w", err)
	}

	updated, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, nil, err
	}
	return updated, orderEvent(updated), nil
}

// AcceptOrder settles the negotiation on the last-standing offer. Either side
// may call it; the order becomes venta_finalizada, after which the engine
// rejects every further append. An order without any offer yet has nothing
// to accept and is rejected.
func AcceptOrder(ctx context.Context, db *sql.DB, orderID string) (*model.Order, *model.OrderEvent, error) {
	return closeOrder(ctx, db, orderID, model.OrderStatusSettled)
}

// CancelOrder terminates the negotiation without agreement.
func CancelOrder(ctx context.Context, db *sql.DB, orderID string) (*model.Order, *model.OrderEvent, error) {
	return closeOrder(ctx, db, orderID, model.OrderStatusCancelled)
}

func closeOrder(ctx context.Context, db *sql.DB, orderID, terminal string) (*model.Order, *model.OrderEvent, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := orderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if model.OrderTerminal(order.Status) {
		return nil, nil, ErrTerminalState
	}
	if !model.CanTransitionOrder(order.Status, terminal) {
		return nil, nil, ErrTerminalState
	}
	if terminal == model.OrderStatusSettled && order.LastAdminPrice == nil && order.LastUserPrice == nil {
		return nil, nil, validationf("order %s has no offer to accept", orderID)
	}

	if err := setOrderStatus(ctx, tx, orderID, terminal); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing status change: %w", err)
	}

	updated, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, nil, err
	}
	return updated, orderEvent(updated), nil
}

// appendOffer inserts a history entry and refreshes the derived last-offer
// columns in the same transaction, so readers never have to scan the log.
func appendOffer(ctx context.Context, tx *sql.Tx, orderID, sender string, price decimal.Decimal, currency, message string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_offers (order_id, sender, price, currency, message) VALUES (?, ?, ?, ?, ?)`,
		orderID, sender, price.String(), currency, message,
	)
	if err != nil {
		return fmt.Errorf("appending offer: %w", err)
	}

	column := "last_user"
	if sender == model.SenderAdmin {
		column = "last_admin"
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET `+column+`_price = ?, `+column+`_currency = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		price.String(), currency, orderID,
	)
	if err != nil {
		return fmt.Errorf("updating derived offer: %w", err)
	}
	return nil
}

func checkOffer(sender string, price decimal.Decimal, currency string) error {
	if sender != model.SenderUser && sender != model.SenderAdmin {
		return validationf("unknown sender %q", sender)
	}
	if price.IsNegative() || price.IsZero() {
		return validationf("offer price must be positive")
	}
	if !model.ValidCurrency(currency) {
		return validationf("unknown currency %q", currency)
	}
	return nil
}

func orderStatus(ctx context.Context, tx *sql.Tx, orderID string) (status string, ownerID int64, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT status, owner_id FROM orders WHERE id = ?`, orderID,
	).Scan(&status, &ownerID)
	if err == sql.ErrNoRows {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("reading order status: %w", err)
	}
	return status, ownerID, nil
}

func orderForUpdate(ctx context.Context, tx *sql.Tx, orderID string) (*model.Order, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, order_number, owner_id, intent, status,
		        last_admin_price, last_admin_currency, last_user_price, last_user_currency,
		        created_at, updated_at
		 FROM orders WHERE id = ?`, orderID,
	)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading order: %w", err)
	}
	return order, nil
}

func setOrderStatus(ctx context.Context, tx *sql.Tx, orderID, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, orderID,
	)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	return nil
}

// orderEvent builds the transition event for an order's current state. The
// latest price is the admin's standing counter-offer when present, otherwise
// the user's ask.
func orderEvent(order *model.Order) *model.OrderEvent {
	event := &model.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		NewStatus:   order.Status,
		Recipient:   order.OwnerID,
	}
	if order.LastAdminPrice != nil {
		event.LatestPrice = order.LastAdminPrice
		event.LatestCurrency = order.LastAdminCurrency
	} else if order.LastUserPrice != nil {
		event.LatestPrice = order.LastUserPrice
		event.LatestCurrency = order.LastUserCurrency
	}
	return event
}
