package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/model"
)

// CreateItem creates a new catalog item and returns it.
func CreateItem(ctx context.Context, db *sql.DB, item model.Item) (*model.Item, error) {
	if item.Title == "" || item.Artist == "" {
		return nil, validationf("title and artist are required")
	}
	if !model.ValidCurrency(item.Currency) {
		return nil, validationf("unknown currency %q", item.Currency)
	}
	if item.Price.IsNegative() {
		return nil, validationf("price cannot be negative")
	}
	if item.Stock < 0 {
		return nil, validationf("stock cannot be negative")
	}

	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := item.Status
	if status == "" {
		status = model.ItemStatusActive
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO items (id, title, artist, year, country, format, condition, price, currency,
		                    stock, status, thumbnail, discogs_id, discogs_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, item.Title, item.Artist, item.Year, item.Country, item.Format, item.Condition,
		item.Price.String(), item.Currency, item.Stock, status, item.Thumbnail,
		item.DiscogsID, item.DiscogsURL,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, db *sql.DB, id string) (*model.Item, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, title, artist, year, country, format, condition, price, currency,
		        stock, status, thumbnail, discogs_id, discogs_url, created_at, updated_at
		 FROM items WHERE id = ?`, id,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// GetItemsByIDs returns a map of the requested items. Unknown IDs are simply
// absent from the result; the caller decides how to treat them.
func GetItemsByIDs(ctx context.Context, db *sql.DB, ids []string) (map[string]model.Item, error) {
	result := make(map[string]model.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, title, artist, year, country, format, condition, price, currency,
		        stock, status, thumbnail, discogs_id, discogs_url, created_at, updated_at
		 FROM items WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		result[item.ID] = *item
	}
	return result, rows.Err()
}

// ListItems returns all items, optionally filtered by status.
func ListItems(ctx context.Context, db *sql.DB, status string) ([]model.Item, error) {
	query := `SELECT id, title, artist, year, country, format, condition, price, currency,
	                 stock, status, thumbnail, discogs_id, discogs_url, created_at, updated_at
	          FROM items`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY artist, title`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItemLogistics updates the mutable logistics fields of an item: price,
// currency, condition, stock and status. This is the manual-edit path; trade
// settlement mutates stock through its own transaction.
func UpdateItemLogistics(ctx context.Context, db *sql.DB, id string, price decimal.Decimal, currency, condition string, stock int, status string) (*model.Item, error) {
	if !model.ValidCurrency(currency) {
		return nil, validationf("unknown currency %q", currency)
	}
	if price.IsNegative() {
		return nil, validationf("price cannot be negative")
	}
	if stock < 0 {
		return nil, validationf("stock cannot be negative")
	}
	switch status {
	case model.ItemStatusActive, model.ItemStatusSoldOut, model.ItemStatusArchived:
	default:
		return nil, validationf("unknown item status %q", status)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE items
		 SET price = ?, currency = ?, condition = ?, stock = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		price.String(), currency, condition, stock, status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrNotFound
	}

	return GetItem(ctx, db, id)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	var (
		item                                   model.Item
		year, discogsID                        sql.NullInt64
		country, format, thumbnail, discogsURL sql.NullString
		price                                  string
	)
	err := row.Scan(&item.ID, &item.Title, &item.Artist, &year, &country, &format,
		&item.Condition, &price, &item.Currency, &item.Stock, &item.Status,
		&thumbnail, &discogsID, &discogsURL, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parsing price %q: %w", price, err)
	}
	item.Year = int(year.Int64)
	item.Country = country.String
	item.Format = format.String
	item.Thumbnail = thumbnail.String
	item.DiscogsID = discogsID.Int64
	item.DiscogsURL = discogsURL.String
	return &item, nil
}
