package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/model"
)

// OrderIntake is the intent-submission payload: who wants to buy or sell
// what, with an optional opening ask.
type OrderIntake struct {
	OwnerID         int64
	Intent          string
	Lines           []model.OrderLine
	InitialPrice    *decimal.Decimal
	InitialCurrency string
	InitialMessage  string
}

// CreateOrder records a buy/sell intent. The optional initial offer becomes
// the first entry of the negotiation history.
func CreateOrder(ctx context.Context, db *sql.DB, intake OrderIntake) (*model.Order, error) {
	if intake.Intent != model.IntentBuy && intake.Intent != model.IntentSell {
		return nil, validationf("unknown intent %q", intake.Intent)
	}
	if len(intake.Lines) == 0 {
		return nil, validationf("order needs at least one line item")
	}
	for _, line := range intake.Lines {
		if line.Title == "" || line.Artist == "" {
			return nil, validationf("line items need title and artist")
		}
		if line.Price.IsNegative() {
			return nil, validationf("line item price cannot be negative")
		}
		if line.Currency != "" && !model.ValidCurrency(line.Currency) {
			return nil, validationf("unknown currency %q", line.Currency)
		}
	}
	if intake.InitialPrice != nil {
		if intake.InitialPrice.IsNegative() || intake.InitialPrice.IsZero() {
			return nil, validationf("initial offer must be positive")
		}
		if !model.ValidCurrency(intake.InitialCurrency) {
			return nil, validationf("unknown currency %q", intake.InitialCurrency)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		return nil, fmt.Errorf("numbering order: %w", err)
	}

	id := uuid.NewString()
	number := fmt.Sprintf("VIN-%05d", count+1)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, order_number, owner_id, intent) VALUES (?, ?, ?, ?)`,
		id, number, intake.OwnerID, intake.Intent,
	)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	for _, line := range intake.Lines {
		currency := line.Currency
		if currency == "" {
			currency = model.CurrencyARS
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, title, artist, format, condition, price, currency)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, line.Title, line.Artist, line.Format, line.Condition, line.Price.String(), currency,
		)
		if err != nil {
			return nil, fmt.Errorf("creating order line: %w", err)
		}
	}

	if intake.InitialPrice != nil {
		if err := appendOffer(ctx, tx, id, model.SenderUser, *intake.InitialPrice, intake.InitialCurrency, intake.InitialMessage); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing order: %w", err)
	}

	return GetOrder(ctx, db, id)
}

// GetOrder returns an order with its line items, or nil if it does not exist.
func GetOrder(ctx context.Context, db *sql.DB, id string) (*model.Order, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, order_number, owner_id, intent, status,
		        last_admin_price, last_admin_currency, last_user_price, last_user_currency,
		        created_at, updated_at
		 FROM orders WHERE id = ?`, id,
	)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, title, artist, format, condition, price, currency
		 FROM order_lines WHERE order_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line              model.OrderLine
			format, condition sql.NullString
			price             string
		)
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Title, &line.Artist, &format, &condition, &price, &line.Currency); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		line.Format = format.String
		line.Condition = condition.String
		line.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parsing line price %q: %w", price, err)
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns orders, optionally filtered by owner and status, newest
// first. Line items are not populated.
func ListOrders(ctx context.Context, db *sql.DB, ownerID int64, status string) ([]model.Order, error) {
	query := `SELECT id, order_number, owner_id, intent, status,
	                 last_admin_price, last_admin_currency, last_user_price, last_user_currency,
	                 created_at, updated_at
	          FROM orders WHERE 1=1`
	var args []any
	if ownerID > 0 {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// ListOrderOffers returns an order's full negotiation history, oldest first.
func ListOrderOffers(ctx context.Context, db *sql.DB, orderID string) ([]model.Offer, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, sender, price, currency, message, created_at
		 FROM order_offers WHERE order_id = ? ORDER BY id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		var (
			offer   model.Offer
			message sql.NullString
			price   string
		)
		if err := rows.Scan(&offer.ID, &offer.OrderID, &offer.Sender, &price, &offer.Currency, &message, &offer.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning offer: %w", err)
		}
		offer.Message = message.String
		offer.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parsing offer price %q: %w", price, err)
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		order                model.Order
		adminPrice, adminCur sql.NullString
		userPrice, userCur   sql.NullString
	)
	err := row.Scan(&order.ID, &order.OrderNumber, &order.OwnerID, &order.Intent, &order.Status,
		&adminPrice, &adminCur, &userPrice, &userCur, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if adminPrice.Valid {
		p, err := decimal.NewFromString(adminPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parsing admin price %q: %w", adminPrice.String, err)
		}
		order.LastAdminPrice = &p
		order.LastAdminCurrency = adminCur.String
	}
	if userPrice.Valid {
		p, err := decimal.NewFromString(userPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parsing user price %q: %w", userPrice.String, err)
		}
		order.LastUserPrice = &p
		order.LastUserCurrency = userCur.String
	}
	return &order, nil
}
