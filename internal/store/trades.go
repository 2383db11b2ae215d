package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/model"
)

// Trade resolution. Manifests are speculative: items are not reserved while
// a trade is pending, and the same item may sit in several open manifests.
// Settlement inside AcceptTrade is the single enforcement point; whichever
// accept reaches it first gets the stock, the rest fail cleanly.

// CreateTrade proposes a barter. The opening move belongs to the sender, so
// the turn starts with the counterparty.
func CreateTrade(ctx context.Context, db *sql.DB, senderID, counterpartyID int64, manifest model.Manifest) (*model.Trade, *model.TradeEvent, error) {
	if senderID == counterpartyID {
		return nil, nil, validationf("cannot trade with yourself")
	}
	if err := manifest.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkManifestItems(ctx, tx, &manifest); err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO trades (id, sender_id, counterparty_id, status, current_turn, revision)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		id, senderID, counterpartyID, model.TradeStatusPending, counterpartyID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating trade: %w", err)
	}

	if err := insertRevision(ctx, tx, id, 1, senderID, &manifest); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing trade: %w", err)
	}

	trade, err := GetTrade(ctx, db, id)
	if err != nil {
		return nil, nil, err
	}
	return trade, tradeEvent(trade, counterpartyID), nil
}

// ProposeCounter replaces the manifest with a new revision, flips the turn
// and marks the trade as counter_offer. The previous manifest stays in the
// revision history.
func ProposeCounter(ctx context.Context, db *sql.DB, tradeID string, actorID int64, manifest model.Manifest) (*model.Trade, *model.TradeEvent, error) {
	if err := manifest.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	trade, err := tradeForUpdate(ctx, tx, tradeID)
	if err != nil {
		return nil, nil, err
	}
	if model.TradeTerminal(trade.Status) {
		return nil, nil, ErrTerminalState
	}
	if actorID != trade.CurrentTurn {
		return nil, nil, ErrTurnViolation
	}

	if err := checkManifestItems(ctx, tx, &manifest); err != nil {
		return nil, nil, err
	}

	next := trade.Revision + 1
	if err := insertRevision(ctx, tx, tradeID, next, actorID, &manifest); err != nil {
		return nil, nil, err
	}

	other := trade.OtherParticipant(actorID)
	_, err = tx.ExecContext(ctx,
		`UPDATE trades
		 SET revision = ?, status = ?, current_turn = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		next, model.TradeStatusCounterOffer, other, tradeID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("updating trade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing counter-offer: %w", err)
	}

	updated, err := GetTrade(ctx, db, tradeID)
	if err != nil {
		return nil, nil, err
	}
	return updated, tradeEvent(updated, other), nil
}

// DeclineTrade cancels a trade. Either participant may decline at any
// non-terminal point, turn or not, so nobody is ever stuck waiting. The
// ledger is untouched.
func DeclineTrade(ctx context.Context, db *sql.DB, tradeID string, actorID int64) (*model.Trade, *model.TradeEvent, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	trade, err := tradeForUpdate(ctx, tx, tradeID)
	if err != nil {
		return nil, nil, err
	}
	if model.TradeTerminal(trade.Status) {
		return nil, nil, ErrTerminalState
	}
	if !trade.HasParticipant(actorID) {
		return nil, nil, ErrTurnViolation
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE trades SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.TradeStatusCancelled, tradeID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("cancelling trade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing cancellation: %w", err)
	}

	updated, err := GetTrade(ctx, db, tradeID)
	if err != nil {
		return nil, nil, err
	}
	return updated, tradeEvent(updated, trade.OtherParticipant(actorID)), nil
}

// AcceptTrade settles a trade in one transaction: every item in the manifest
// loses one unit of stock, the cash adjustment is recorded, and the trade
// becomes accepted. If any item has no stock left the whole settlement aborts
// with InsufficientStockError and the trade stays exactly as it was, open for
// renegotiation.
func AcceptTrade(ctx context.Context, db *sql.DB, tradeID string, actorID int64) (*model.Trade, *model.TradeEvent, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	trade, err := tradeForUpdate(ctx, tx, tradeID)
	if err != nil {
		return nil, nil, err
	}
	if model.TradeTerminal(trade.Status) {
		return nil, nil, ErrTerminalState
	}
	if actorID != trade.CurrentTurn {
		return nil, nil, ErrTurnViolation
	}

	// Conditional decrement per item; rows-affected tells us whether the
	// item still had stock. All failures are collected so the error names
	// every exhausted item, then the deferred rollback undoes any
	// decrements that did land.
	var exhausted []string
	for _, itemID := range trade.Manifest.ItemIDs() {
		result, err := tx.ExecContext(ctx,
			`UPDATE items
			 SET stock = stock - 1,
			     status = CASE WHEN stock - 1 = 0 THEN ? ELSE status END,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND stock >= 1`,
			model.ItemStatusSoldOut, itemID,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("decrementing stock for %s: %w", itemID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			exhausted = append(exhausted, itemID)
		}
	}
	if len(exhausted) > 0 {
		sort.Strings(exhausted)
		return nil, nil, &InsufficientStockError{ItemIDs: exhausted}
	}

	// Bookkeeping only; no money moves here.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlements (trade_id, cash_adjustment) VALUES (?, ?)`,
		tradeID, trade.Manifest.CashAdjustment.String(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("recording settlement: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE trades SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.TradeStatusAccepted, tradeID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("accepting trade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing settlement: %w", err)
	}

	updated, err := GetTrade(ctx, db, tradeID)
	if err != nil {
		return nil, nil, err
	}
	return updated, tradeEvent(updated, trade.OtherParticipant(actorID)), nil
}

// GetTrade returns a trade with its current manifest, or nil if it does not
// exist.
func GetTrade(ctx context.Context, db *sql.DB, id string) (*model.Trade, error) {
	trade, err := queryTrade(ctx, db, id)
	if err != nil || trade == nil {
		return trade, err
	}

	manifest, _, err := loadManifest(ctx, db, id, trade.Revision)
	if err != nil {
		return nil, err
	}
	trade.Manifest = *manifest
	return trade, nil
}

// ListTrades returns trades, optionally filtered by participant and status,
// newest first. Manifests are not populated.
func ListTrades(ctx context.Context, db *sql.DB, participantID int64, status string) ([]model.Trade, error) {
	query := `SELECT id, sender_id, counterparty_id, status, current_turn, revision, created_at, updated_at
	          FROM trades WHERE 1=1`
	var args []any
	if participantID > 0 {
		query += ` AND (sender_id = ? OR counterparty_id = ?)`
		args = append(args, participantID, participantID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.ID, &t.SenderID, &t.CounterpartyID, &t.Status, &t.CurrentTurn, &t.Revision, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListTradeRevisions returns every manifest revision of a trade, oldest
// first, for audit display.
func ListTradeRevisions(ctx context.Context, db *sql.DB, tradeID string) ([]model.TradeRevision, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT trade_id, revision, actor_id, cash_adjustment, created_at
		 FROM trade_revisions WHERE trade_id = ? ORDER BY revision`, tradeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	defer rows.Close()

	var revisions []model.TradeRevision
	for rows.Next() {
		var (
			rev  model.TradeRevision
			cash string
		)
		if err := rows.Scan(&rev.TradeID, &rev.Revision, &rev.ActorID, &cash, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning revision: %w", err)
		}
		rev.Manifest.CashAdjustment, err = decimal.NewFromString(cash)
		if err != nil {
			return nil, fmt.Errorf("parsing cash adjustment %q: %w", cash, err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range revisions {
		manifest, _, err := loadManifest(ctx, db, tradeID, revisions[i].Revision)
		if err != nil {
			return nil, err
		}
		manifest.CashAdjustment = revisions[i].Manifest.CashAdjustment
		revisions[i].Manifest = *manifest
	}
	return revisions, nil
}

// querier covers *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryTrade(ctx context.Context, q querier, id string) (*model.Trade, error) {
	var t model.Trade
	err := q.QueryRowContext(ctx,
		`SELECT id, sender_id, counterparty_id, status, current_turn, revision, created_at, updated_at
		 FROM trades WHERE id = ?`, id,
	).Scan(&t.ID, &t.SenderID, &t.CounterpartyID, &t.Status, &t.CurrentTurn, &t.Revision, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting trade: %w", err)
	}
	return &t, nil
}

// tradeForUpdate reads a trade and its current manifest inside a transaction.
func tradeForUpdate(ctx context.Context, tx *sql.Tx, id string) (*model.Trade, error) {
	trade, err := queryTrade(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrNotFound
	}

	manifest, _, err := loadManifest(ctx, tx, id, trade.Revision)
	if err != nil {
		return nil, err
	}
	trade.Manifest = *manifest
	return trade, nil
}

func loadManifest(ctx context.Context, q querier, tradeID string, revision int) (*model.Manifest, int64, error) {
	var (
		cash    string
		actorID int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT cash_adjustment, actor_id FROM trade_revisions WHERE trade_id = ? AND revision = ?`,
		tradeID, revision,
	).Scan(&cash, &actorID)
	if err != nil {
		return nil, 0, fmt.Errorf("getting revision: %w", err)
	}

	manifest := &model.Manifest{}
	manifest.CashAdjustment, err = decimal.NewFromString(cash)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing cash adjustment %q: %w", cash, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT item_id, side FROM trade_items WHERE trade_id = ? AND revision = ? ORDER BY item_id`,
		tradeID, revision,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("getting manifest items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, side string
		if err := rows.Scan(&itemID, &side); err != nil {
			return nil, 0, fmt.Errorf("scanning manifest item: %w", err)
		}
		if side == model.SideOffered {
			manifest.OfferedItems = append(manifest.OfferedItems, itemID)
		} else {
			manifest.RequestedItems = append(manifest.RequestedItems, itemID)
		}
	}
	return manifest, actorID, rows.Err()
}

// insertRevision persists a manifest as a new revision. The composite
// primary key on trade_items makes an item on both sides unrepresentable.
func insertRevision(ctx context.Context, tx *sql.Tx, tradeID string, revision int, actorID int64, manifest *model.Manifest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trade_revisions (trade_id, revision, actor_id, cash_adjustment) VALUES (?, ?, ?, ?)`,
		tradeID, revision, actorID, manifest.CashAdjustment.String(),
	)
	if err != nil {
		return fmt.Errorf("creating revision: %w", err)
	}

	for _, itemID := range manifest.OfferedItems {
		if err := insertManifestItem(ctx, tx, tradeID, revision, itemID, model.SideOffered); err != nil {
			return err
		}
	}
	for _, itemID := range manifest.RequestedItems {
		if err := insertManifestItem(ctx, tx, tradeID, revision, itemID, model.SideRequested); err != nil {
			return err
		}
	}
	return nil
}

func insertManifestItem(ctx context.Context, tx *sql.Tx, tradeID string, revision int, itemID, side string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trade_items (trade_id, revision, item_id, side) VALUES (?, ?, ?, ?)`,
		tradeID, revision, itemID, side,
	)
	if err != nil {
		return fmt.Errorf("adding manifest item %s: %w", itemID, err)
	}
	return nil
}

// checkManifestItems verifies every referenced item exists. Stock is not
// checked here; proposals are speculative and stock is only enforced at
// settlement.
func checkManifestItems(ctx context.Context, tx *sql.Tx, manifest *model.Manifest) error {
	for _, itemID := range manifest.ItemIDs() {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, itemID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		if err != nil {
			return fmt.Errorf("checking item %s: %w", itemID, err)
		}
	}
	return nil
}

func tradeEvent(trade *model.Trade, recipient int64) *model.TradeEvent {
	return &model.TradeEvent{
		TradeID:   trade.ID,
		NewStatus: trade.Status,
		Manifest:  trade.Manifest,
		Recipient: recipient,
	}
}
