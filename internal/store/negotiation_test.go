package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/db"
	"github.com/vinilomarket/vinilo/internal/model"
)

func newTestOrder(t *testing.T, database *sql.DB, intent string) *model.Order {
	t.Helper()
	ctx := context.Background()

	owner, err := CreateUser(ctx, database, "collector", "hash", model.RoleCustomer)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	order, err := CreateOrder(ctx, database, OrderIntake{
		OwnerID: owner.ID,
		Intent:  intent,
		Lines: []model.OrderLine{{
			Title:    "Abbey Road",
			Artist:   "The Beatles",
			Format:   "LP",
			Price:    decimal.NewFromInt(80000),
			Currency: model.CurrencyARS,
		}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}

func TestCreateOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentBuy)
	if order.Status != model.OrderStatusPending {
		t.Errorf("expected pending, got %q", order.Status)
	}
	if order.OrderNumber == "" {
		t.Error("expected an order number")
	}
	if len(order.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(order.Lines))
	}

	_, err := CreateOrder(ctx, database, OrderIntake{OwnerID: order.OwnerID, Intent: "lease"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown intent, got %v", err)
	}

	_, err = CreateOrder(ctx, database, OrderIntake{OwnerID: order.OwnerID, Intent: model.IntentBuy})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty lines, got %v", err)
	}

	_, err = CreateOrder(ctx, database, OrderIntake{
		OwnerID: order.OwnerID,
		Intent:  model.IntentBuy,
		Lines:   []model.OrderLine{{Title: "Wish You Were Here", Artist: "Pink Floyd", Price: decimal.NewFromInt(-1)}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for negative line price, got %v", err)
	}
}

func TestCreateOrderWithInitialOffer(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner, _ := CreateUser(ctx, database, "seller", "hash", model.RoleCustomer)
	price := decimal.NewFromInt(30000)
	order, err := CreateOrder(ctx, database, OrderIntake{
		OwnerID:         owner.ID,
		Intent:          model.IntentSell,
		Lines:           []model.OrderLine{{Title: "Kind of Blue", Artist: "Miles Davis", Price: price, Currency: model.CurrencyARS}},
		InitialPrice:    &price,
		InitialCurrency: model.CurrencyARS,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	offers, err := ListOrderOffers(ctx, database, order.ID)
	if err != nil {
		t.Fatalf("ListOrderOffers: %v", err)
	}
	if len(offers) != 1 || offers[0].Sender != model.SenderUser {
		t.Fatalf("expected 1 user offer, got %+v", offers)
	}
	if order.LastUserPrice == nil || !order.LastUserPrice.Equal(price) {
		t.Errorf("expected derived user price %s, got %v", price, order.LastUserPrice)
	}
}

func TestSetCounterOfferOnFreshOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	// SELL intent: the store's counter moves the order to counteroffered
	// with exactly one admin entry in the history.
	order := newTestOrder(t, database, model.IntentSell)

	updated, event, err := SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(45000), model.CurrencyARS, "")
	if err != nil {
		t.Fatalf("SetCounterOffer: %v", err)
	}
	if updated.Status != model.OrderStatusCounteroffered {
		t.Errorf("expected counteroffered, got %q", updated.Status)
	}

	offers, _ := ListOrderOffers(ctx, database, order.ID)
	if len(offers) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(offers))
	}
	if offers[0].Sender != model.SenderAdmin || !offers[0].Price.Equal(decimal.NewFromInt(45000)) {
		t.Errorf("unexpected entry: %+v", offers[0])
	}

	if event == nil || event.NewStatus != model.OrderStatusCounteroffered || event.Recipient != order.OwnerID {
		t.Errorf("unexpected event: %+v", event)
	}
	if event.LatestPrice == nil || !event.LatestPrice.Equal(decimal.NewFromInt(45000)) {
		t.Errorf("expected event price 45000, got %v", event.LatestPrice)
	}
}

func TestSetCounterOfferQuotesBuyIntent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentBuy)

	// First admin price on a buy intent is a quote.
	updated, _, err := SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(50000), model.CurrencyARS, "")
	if err != nil {
		t.Fatalf("SetCounterOffer: %v", err)
	}
	if updated.Status != model.OrderStatusQuoted {
		t.Errorf("expected quoted, got %q", updated.Status)
	}

	// A later admin price is a counter-offer.
	updated, _, err = SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(48000), model.CurrencyARS, "")
	if err != nil {
		t.Fatalf("second SetCounterOffer: %v", err)
	}
	if updated.Status != model.OrderStatusCounteroffered {
		t.Errorf("expected counteroffered, got %q", updated.Status)
	}
}

func TestSubmitUserCounter(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentBuy)
	SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(50000), model.CurrencyARS, "")

	updated, event, err := SubmitUserCounter(ctx, database, order.ID, decimal.NewFromInt(42000), model.CurrencyARS, "mi mejor oferta")
	if err != nil {
		t.Fatalf("SubmitUserCounter: %v", err)
	}
	if updated.Status != model.OrderStatusNegotiating {
		t.Errorf("expected negotiating, got %q", updated.Status)
	}
	if event == nil {
		t.Fatal("expected an event")
	}

	// Both standing offers are derivable without scanning the history.
	if updated.LastAdminPrice == nil || !updated.LastAdminPrice.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("expected admin price 50000, got %v", updated.LastAdminPrice)
	}
	if updated.LastUserPrice == nil || !updated.LastUserPrice.Equal(decimal.NewFromInt(42000)) {
		t.Errorf("expected user price 42000, got %v", updated.LastUserPrice)
	}
}

func TestSubmitUserCounterIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentSell)
	SubmitUserCounter(ctx, database, order.ID, decimal.NewFromInt(30000), model.CurrencyARS, "")

	// Double submission of the same ask appends nothing.
	_, event, err := SubmitUserCounter(ctx, database, order.ID, decimal.NewFromInt(30000), model.CurrencyARS, "")
	if err != nil {
		t.Fatalf("SubmitUserCounter: %v", err)
	}
	if event != nil {
		t.Error("expected no event for a no-op resubmission")
	}

	offers, _ := ListOrderOffers(ctx, database, order.ID)
	if len(offers) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(offers))
	}

	// A different price still goes through.
	_, event, err = SubmitUserCounter(ctx, database, order.ID, decimal.NewFromInt(32000), model.CurrencyARS, "")
	if err != nil {
		t.Fatalf("SubmitUserCounter: %v", err)
	}
	if event == nil {
		t.Error("expected an event for a new price")
	}
	offers, _ = ListOrderOffers(ctx, database, order.ID)
	if len(offers) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(offers))
	}
}

func TestSubmitInitialOffer(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentSell)

	updated, err := SubmitInitialOffer(ctx, database, order.ID, model.SenderUser, decimal.NewFromInt(25000), model.CurrencyARS, "")
	if err != nil {
		t.Fatalf("SubmitInitialOffer: %v", err)
	}
	if updated.Status != model.OrderStatusPending {
		t.Errorf("initial offer should not change status, got %q", updated.Status)
	}

	// Only legal while the history is empty.
	_, err = SubmitInitialOffer(ctx, database, order.ID, model.SenderUser, decimal.NewFromInt(26000), model.CurrencyARS, "")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestAcceptOrderIsTerminal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentSell)
	SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(45000), model.CurrencyARS, "")

	updated, event, err := AcceptOrder(ctx, database, order.ID)
	if err != nil {
		t.Fatalf("AcceptOrder: %v", err)
	}
	if updated.Status != model.OrderStatusSettled {
		t.Errorf("expected venta_finalizada, got %q", updated.Status)
	}
	if event == nil || event.NewStatus != model.OrderStatusSettled {
		t.Errorf("unexpected event: %+v", event)
	}

	// Terminal: no further appends or transitions, and the history is
	// exactly as it was.
	before, _ := ListOrderOffers(ctx, database, order.ID)

	_, _, err = SubmitUserCounter(ctx, database, order.ID, decimal.NewFromInt(40000), model.CurrencyARS, "")
	if !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
	_, _, err = SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(46000), model.CurrencyARS, "")
	if !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
	_, _, err = CancelOrder(ctx, database, order.ID)
	if !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}

	after, _ := ListOrderOffers(ctx, database, order.ID)
	if len(after) != len(before) {
		t.Errorf("history changed on a terminal order: %d -> %d", len(before), len(after))
	}
}

func TestAcceptOrderWithoutOffers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	// A fresh intent has no standing offer, so there is nothing to accept.
	order := newTestOrder(t, database, model.IntentSell)

	_, _, err := AcceptOrder(ctx, database, order.ID)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	got, _ := GetOrder(ctx, database, order.ID)
	if got.Status != model.OrderStatusPending {
		t.Errorf("expected order to stay pending, got %q", got.Status)
	}

	// Cancelling without history is still fine.
	updated, _, err := CancelOrder(ctx, database, order.ID)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if updated.Status != model.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %q", updated.Status)
	}
}

func TestCancelOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentBuy)
	updated, _, err := CancelOrder(ctx, database, order.ID)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if updated.Status != model.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %q", updated.Status)
	}

	_, _, err = AcceptOrder(ctx, database, order.ID)
	if !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
}

func TestNegotiationUnknownOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	_, _, err := SetCounterOffer(ctx, database, "no-such-order", decimal.NewFromInt(1000), model.CurrencyARS, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOfferHistoryAppendOnly(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	order := newTestOrder(t, database, model.IntentSell)

	prices := []int64{30000, 45000, 35000, 40000}
	SubmitUserCounter(ctx, database, order.ID, decimal.NewFromInt(prices[0]), model.CurrencyARS, "")
	SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(prices[1]), model.CurrencyARS, "")
	SubmitUserCounter(ctx, database, order.ID, decimal.NewFromInt(prices[2]), model.CurrencyARS, "")
	SetCounterOffer(ctx, database, order.ID, decimal.NewFromInt(prices[3]), model.CurrencyARS, "")

	offers, err := ListOrderOffers(ctx, database, order.ID)
	if err != nil {
		t.Fatalf("ListOrderOffers: %v", err)
	}
	if len(offers) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(offers))
	}
	for i, offer := range offers {
		if !offer.Price.Equal(decimal.NewFromInt(prices[i])) {
			t.Errorf("entry %d: expected price %d, got %s", i, prices[i], offer.Price)
		}
	}

	// Derived columns match the last entry per sender.
	got, _ := GetOrder(ctx, database, order.ID)
	if got.LastUserPrice == nil || !got.LastUserPrice.Equal(decimal.NewFromInt(35000)) {
		t.Errorf("expected last user price 35000, got %v", got.LastUserPrice)
	}
	if got.LastAdminPrice == nil || !got.LastAdminPrice.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("expected last admin price 40000, got %v", got.LastAdminPrice)
	}
}
