package model

import "github.com/shopspring/decimal"

// OrderEvent describes one order status transition, addressed to the party
// that should hear about it. Emitted by the store layer; the API layer turns
// it into a notification.
type OrderEvent struct {
	OrderID        string           `json:"order_id"`
	OrderNumber    string           `json:"order_number"`
	NewStatus      string           `json:"new_status"`
	LatestPrice    *decimal.Decimal `json:"latest_price,omitempty"`
	LatestCurrency string           `json:"latest_currency,omitempty"`
	Recipient      int64            `json:"recipient"`
}

// TradeEvent describes one trade status transition.
type TradeEvent struct {
	TradeID   string   `json:"trade_id"`
	NewStatus string   `json:"new_status"`
	Manifest  Manifest `json:"manifest"`
	Recipient int64    `json:"recipient"`
}
