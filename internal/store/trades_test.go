package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/db"
	"github.com/vinilomarket/vinilo/internal/model"
)

func newTradeParties(t *testing.T, database *sql.DB) (sender, counterparty *model.User) {
	t.Helper()
	ctx := context.Background()
	sender, err := CreateUser(ctx, database, "proposer", "hash", model.RoleCustomer)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	counterparty, err = CreateUser(ctx, database, "store", "hash", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return sender, counterparty
}

func TestCreateTrade(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	offered := newTestItem(t, database, "Nevermind", 1)
	requested := newTestItem(t, database, "In Utero", 1)

	manifest := model.Manifest{
		OfferedItems:   []string{offered.ID},
		RequestedItems: []string{requested.ID},
		CashAdjustment: decimal.NewFromInt(-500),
	}
	trade, event, err := CreateTrade(ctx, database, sender.ID, counterparty.ID, manifest)
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}

	if trade.Status != model.TradeStatusPending {
		t.Errorf("expected pending, got %q", trade.Status)
	}
	if trade.CurrentTurn != counterparty.ID {
		t.Errorf("expected turn with counterparty %d, got %d", counterparty.ID, trade.CurrentTurn)
	}
	if len(trade.Manifest.OfferedItems) != 1 || trade.Manifest.OfferedItems[0] != offered.ID {
		t.Errorf("manifest did not round-trip: %+v", trade.Manifest)
	}
	if !trade.Manifest.CashAdjustment.Equal(decimal.NewFromInt(-500)) {
		t.Errorf("expected cash -500, got %s", trade.Manifest.CashAdjustment)
	}
	if event == nil || event.Recipient != counterparty.ID {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestCreateTradeValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	item := newTestItem(t, database, "Ummagumma", 1)

	_, _, err := CreateTrade(ctx, database, sender.ID, sender.ID,
		model.Manifest{OfferedItems: []string{item.ID}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for self-trade, got %v", err)
	}

	_, _, err = CreateTrade(ctx, database, sender.ID, counterparty.ID, model.Manifest{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty manifest, got %v", err)
	}

	_, _, err = CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID}, RequestedItems: []string{item.ID}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for overlapping sides, got %v", err)
	}

	_, _, err = CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID, item.ID}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for duplicate item, got %v", err)
	}

	_, _, err = CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{"ghost-item"}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown item, got %v", err)
	}
}

func TestProposeCounterFlipsTurn(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	a := newTestItem(t, database, "Animals", 1)
	b := newTestItem(t, database, "Meddle", 1)

	trade, _, err := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{a.ID}})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}

	counter := model.Manifest{
		OfferedItems:   []string{a.ID},
		RequestedItems: []string{b.ID},
		CashAdjustment: decimal.NewFromInt(1000),
	}
	updated, event, err := ProposeCounter(ctx, database, trade.ID, counterparty.ID, counter)
	if err != nil {
		t.Fatalf("ProposeCounter: %v", err)
	}

	if updated.Status != model.TradeStatusCounterOffer {
		t.Errorf("expected counter_offer, got %q", updated.Status)
	}
	if updated.CurrentTurn != sender.ID {
		t.Errorf("expected turn back with sender %d, got %d", sender.ID, updated.CurrentTurn)
	}
	if updated.Revision != 2 {
		t.Errorf("expected revision 2, got %d", updated.Revision)
	}
	if event == nil || event.Recipient != sender.ID {
		t.Errorf("unexpected event: %+v", event)
	}

	// The prior manifest stays in the history.
	revisions, err := ListTradeRevisions(ctx, database, trade.ID)
	if err != nil {
		t.Fatalf("ListTradeRevisions: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revisions))
	}
	if len(revisions[0].Manifest.RequestedItems) != 0 {
		t.Errorf("first revision changed: %+v", revisions[0].Manifest)
	}
	if len(revisions[1].Manifest.RequestedItems) != 1 {
		t.Errorf("second revision wrong: %+v", revisions[1].Manifest)
	}
}

func TestProposeCounterOutOfTurn(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	item := newTestItem(t, database, "Corazones", 1)

	trade, _, _ := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID}})

	// Turn is with the counterparty; the sender may not counter.
	_, _, err := ProposeCounter(ctx, database, trade.ID, sender.ID,
		model.Manifest{OfferedItems: []string{item.ID}, CashAdjustment: decimal.NewFromInt(1)})
	if !errors.Is(err, ErrTurnViolation) {
		t.Fatalf("expected ErrTurnViolation, got %v", err)
	}

	// Nothing moved.
	unchanged, _ := GetTrade(ctx, database, trade.ID)
	if unchanged.CurrentTurn != counterparty.ID || unchanged.Revision != 1 {
		t.Errorf("trade changed after rejected counter: %+v", unchanged)
	}
	if !unchanged.Manifest.CashAdjustment.IsZero() {
		t.Errorf("manifest changed after rejected counter: %+v", unchanged.Manifest)
	}
}

func TestAcceptTradeSettles(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	offered := newTestItem(t, database, "Ritmo y Sustancia", 2)
	requested := newTestItem(t, database, "Alta Fidelidad", 1)

	trade, _, err := CreateTrade(ctx, database, sender.ID, counterparty.ID, model.Manifest{
		OfferedItems:   []string{offered.ID},
		RequestedItems: []string{requested.ID},
		CashAdjustment: decimal.NewFromInt(-500),
	})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}

	updated, event, err := AcceptTrade(ctx, database, trade.ID, counterparty.ID)
	if err != nil {
		t.Fatalf("AcceptTrade: %v", err)
	}
	if updated.Status != model.TradeStatusAccepted {
		t.Errorf("expected accepted, got %q", updated.Status)
	}
	if event == nil || event.NewStatus != model.TradeStatusAccepted || event.Recipient != sender.ID {
		t.Errorf("unexpected event: %+v", event)
	}

	// Both sides lost one unit; the exhausted item flipped to sold_out.
	gotOffered, _ := GetItem(ctx, database, offered.ID)
	if gotOffered.Stock != 1 || gotOffered.Status != model.ItemStatusActive {
		t.Errorf("offered item: %+v", gotOffered)
	}
	gotRequested, _ := GetItem(ctx, database, requested.ID)
	if gotRequested.Stock != 0 || gotRequested.Status != model.ItemStatusSoldOut {
		t.Errorf("requested item: %+v", gotRequested)
	}

	// Cash adjustment was recorded for bookkeeping.
	var cash string
	err = database.QueryRowContext(ctx,
		`SELECT cash_adjustment FROM settlements WHERE trade_id = ?`, trade.ID,
	).Scan(&cash)
	if err != nil {
		t.Fatalf("reading settlement: %v", err)
	}
	if cash != "-500" {
		t.Errorf("expected cash -500, got %q", cash)
	}
}

func TestAcceptTradeInsufficientStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	offered := newTestItem(t, database, "Item Seven", 1)
	requested := newTestItem(t, database, "Item Nine", 0)

	trade, _, err := CreateTrade(ctx, database, sender.ID, counterparty.ID, model.Manifest{
		OfferedItems:   []string{offered.ID},
		RequestedItems: []string{requested.ID},
		CashAdjustment: decimal.NewFromInt(-500),
	})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}

	_, _, err = AcceptTrade(ctx, database, trade.ID, counterparty.ID)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(stockErr.ItemIDs) != 1 || stockErr.ItemIDs[0] != requested.ID {
		t.Errorf("expected error naming %s, got %v", requested.ID, stockErr.ItemIDs)
	}

	// No partial settlement: the offered item keeps its stock, the trade
	// stays open for renegotiation, and no audit line exists.
	gotOffered, _ := GetItem(ctx, database, offered.ID)
	if gotOffered.Stock != 1 {
		t.Errorf("offered item stock changed: %d", gotOffered.Stock)
	}
	unchanged, _ := GetTrade(ctx, database, trade.ID)
	if unchanged.Status != model.TradeStatusPending {
		t.Errorf("expected trade still pending, got %q", unchanged.Status)
	}
	var count int
	database.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlements WHERE trade_id = ?`, trade.ID).Scan(&count)
	if count != 0 {
		t.Errorf("expected no settlement rows, got %d", count)
	}
}

func TestAcceptTradeOutOfTurn(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	item := newTestItem(t, database, "Bocanada", 1)

	trade, _, _ := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID}})

	_, _, err := AcceptTrade(ctx, database, trade.ID, sender.ID)
	if !errors.Is(err, ErrTurnViolation) {
		t.Fatalf("expected ErrTurnViolation, got %v", err)
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.Stock != 1 {
		t.Errorf("stock changed on rejected accept: %d", got.Stock)
	}
}

func TestDeclineTradeIgnoresTurn(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	item := newTestItem(t, database, "Amor Amarillo", 1)

	trade, _, _ := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID}})

	// The sender does not hold the turn but may always decline.
	updated, event, err := DeclineTrade(ctx, database, trade.ID, sender.ID)
	if err != nil {
		t.Fatalf("DeclineTrade: %v", err)
	}
	if updated.Status != model.TradeStatusCancelled {
		t.Errorf("expected cancelled, got %q", updated.Status)
	}
	if event == nil || event.Recipient != counterparty.ID {
		t.Errorf("unexpected event: %+v", event)
	}

	// A third party may not.
	other, _ := CreateUser(ctx, database, "bystander", "hash", model.RoleCustomer)
	trade2, _, _ := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID}})
	_, _, err = DeclineTrade(ctx, database, trade2.ID, other.ID)
	if !errors.Is(err, ErrTurnViolation) {
		t.Errorf("expected ErrTurnViolation for non-participant, got %v", err)
	}
}

func TestTradeTerminalFinality(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	item := newTestItem(t, database, "Dynamo", 1)

	trade, _, _ := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID}})
	DeclineTrade(ctx, database, trade.ID, sender.ID)

	_, _, err := AcceptTrade(ctx, database, trade.ID, counterparty.ID)
	if !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
	_, _, err = ProposeCounter(ctx, database, trade.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{item.ID}})
	if !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
	_, _, err = DeclineTrade(ctx, database, trade.ID, sender.ID)
	if !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
}

func TestConcurrentAcceptsSingleWinner(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sender, counterparty := newTradeParties(t, database)
	contested := newTestItem(t, database, "White Album", 1)

	// Two open trades both want the only copy. Manifests are speculative,
	// so both proposals are legal; settlement decides.
	tradeA, _, err := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{RequestedItems: []string{contested.ID}})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}
	tradeB, _, err := CreateTrade(ctx, database, sender.ID, counterparty.ID,
		model.Manifest{OfferedItems: []string{contested.ID}})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, id := range []string{tradeA.ID, tradeB.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, results[i] = AcceptTrade(ctx, database, id, counterparty.ID)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		default:
			var stockErr *InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Fatalf("unexpected loser error: %v", err)
			}
			lost++
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one winner and one loser, got %d/%d", won, lost)
	}

	got, _ := GetItem(ctx, database, contested.ID)
	if got.Stock != 0 {
		t.Errorf("expected stock 0, got %d", got.Stock)
	}

	// The losing trade is still open for manual renegotiation.
	statuses := map[string]int{}
	for _, id := range []string{tradeA.ID, tradeB.ID} {
		trade, _ := GetTrade(ctx, database, id)
		statuses[trade.Status]++
	}
	if statuses[model.TradeStatusAccepted] != 1 || statuses[model.TradeStatusPending] != 1 {
		t.Errorf("unexpected trade statuses: %v", statuses)
	}
}
