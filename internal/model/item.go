package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item represents one catalog listing. Stock counts physical copies; a barter
// consumes exactly one copy per listed ID.
type Item struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Artist     string          `json:"artist"`
	Year       int             `json:"year,omitempty"`
	Country    string          `json:"country,omitempty"`
	Format     string          `json:"format,omitempty"`
	Condition  string          `json:"condition"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Stock      int             `json:"stock"`
	Status     string          `json:"status"`
	Thumbnail  string          `json:"thumbnail,omitempty"`
	DiscogsID  int64           `json:"discogs_id,omitempty"`
	DiscogsURL string          `json:"discogs_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Item statuses.
const (
	ItemStatusActive   = "active"
	ItemStatusSoldOut  = "sold_out"
	ItemStatusArchived = "archived"
)

// Currencies.
const (
	CurrencyARS = "ARS"
	CurrencyUSD = "USD"
)

// ValidCurrency reports whether c is a supported currency tag.
func ValidCurrency(c string) bool {
	return c == CurrencyARS || c == CurrencyUSD
}
