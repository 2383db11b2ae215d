package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a single buy or sell intent and its price negotiation.
// The offer history is append-only; LastAdminPrice/LastUserPrice are derived
// from it on every write so readers never scan the log.
type Order struct {
	ID                string           `json:"id"`
	OrderNumber       string           `json:"order_number"`
	OwnerID           int64            `json:"owner_id"`
	Intent            string           `json:"intent"`
	Status            string           `json:"status"`
	LastAdminPrice    *decimal.Decimal `json:"last_admin_price,omitempty"`
	LastAdminCurrency string           `json:"last_admin_currency,omitempty"`
	LastUserPrice     *decimal.Decimal `json:"last_user_price,omitempty"`
	LastUserCurrency  string           `json:"last_user_currency,omitempty"`
	Lines             []OrderLine      `json:"lines,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// OrderLine is a descriptive record of what the order is about. It is not
// linked to ledger stock.
type OrderLine struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"-"`
	Title     string          `json:"title"`
	Artist    string          `json:"artist"`
	Format    string          `json:"format,omitempty"`
	Condition string          `json:"condition,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
}

// Offer is one entry in an order's negotiation history. Entries are only ever
// appended, with server-assigned timestamps.
type Offer struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"-"`
	Sender    string          `json:"sender"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Message   string          `json:"message,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Order intents.
const (
	IntentBuy  = "buy"
	IntentSell = "sell"
)

// Offer senders.
const (
	SenderUser  = "user"
	SenderAdmin = "admin"
)

// Order statuses. venta_finalizada and cancelled are terminal.
const (
	OrderStatusPending        = "pending"
	OrderStatusQuoted         = "quoted"
	OrderStatusCounteroffered = "counteroffered"
	OrderStatusNegotiating    = "negotiating"
	OrderStatusSettled        = "venta_finalizada"
	OrderStatusCancelled      = "cancelled"
)

// orderTransitions is the closed set of legal status moves. Anything not
// listed here is rejected, so an order can never reach an undefined status.
var orderTransitions = map[string][]string{
	OrderStatusPending:        {OrderStatusQuoted, OrderStatusCounteroffered, OrderStatusNegotiating, OrderStatusSettled, OrderStatusCancelled},
	OrderStatusQuoted:         {OrderStatusQuoted, OrderStatusCounteroffered, OrderStatusNegotiating, OrderStatusSettled, OrderStatusCancelled},
	OrderStatusCounteroffered: {OrderStatusQuoted, OrderStatusCounteroffered, OrderStatusNegotiating, OrderStatusSettled, OrderStatusCancelled},
	OrderStatusNegotiating:    {OrderStatusQuoted, OrderStatusCounteroffered, OrderStatusNegotiating, OrderStatusSettled, OrderStatusCancelled},
	OrderStatusSettled:        {},
	OrderStatusCancelled:      {},
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	_, ok := orderTransitions[s]
	return ok
}

// OrderTerminal reports whether s is a terminal order status.
func OrderTerminal(s string) bool {
	return s == OrderStatusSettled || s == OrderStatusCancelled
}

// CanTransitionOrder reports whether an order may move from one status to
// another.
func CanTransitionOrder(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
