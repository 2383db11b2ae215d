package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/model"
	"github.com/vinilomarket/vinilo/internal/store"
)

// OrdersHandler handles order negotiation endpoints. Customers act on their
// own orders; the admin acts as the store side on any order.
type OrdersHandler struct {
	DB *sql.DB
}

type createOrderRequest struct {
	Intent          string            `json:"intent"`
	Lines           []model.OrderLine `json:"lines"`
	InitialPrice    *decimal.Decimal  `json:"initial_price,omitempty"`
	InitialCurrency string            `json:"initial_currency,omitempty"`
	InitialMessage  string            `json:"initial_message,omitempty"`
}

type offerRequest struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Message  string          `json:"message,omitempty"`
}

type orderDetailResponse struct {
	*model.Order
	Offers []model.Offer `json:"offers"`
}

// Create handles POST /api/orders.
func (h *OrdersHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := store.CreateOrder(r.Context(), h.DB, store.OrderIntake{
		OwnerID:         claims.UserID,
		Intent:          req.Intent,
		Lines:           req.Lines,
		InitialPrice:    req.InitialPrice,
		InitialCurrency: req.InitialCurrency,
		InitialMessage:  req.InitialMessage,
	})
	if err != nil {
		storeError(w, err)
		return
	}

	slog.Info("order created", "user", claims.Username, "order", order.OrderNumber, "intent", order.Intent)
	jsonResponse(w, http.StatusCreated, order)
}

// List handles GET /api/orders. Customers see their own orders, the admin
// sees everything.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	status := r.URL.Query().Get("status")
	if status != "" && !model.ValidOrderStatus(status) {
		jsonError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	ownerID := claims.UserID
	if isAdmin(r) {
		ownerID = 0
	}

	orders, err := store.ListOrders(r.Context(), h.DB, ownerID, status)
	if err != nil {
		storeError(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// Get handles GET /api/orders/{id}, returning the order with its full
// negotiation history.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}

	offers, err := store.ListOrderOffers(r.Context(), h.DB, order.ID)
	if err != nil {
		storeError(w, err)
		return
	}
	if offers == nil {
		offers = []model.Offer{}
	}
	jsonResponse(w, http.StatusOK, orderDetailResponse{Order: order, Offers: offers})
}

// Quote handles POST /api/orders/{id}/quote (admin only): the store's
// counter-offer.
func (h *OrdersHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, event, err := store.SetCounterOffer(r.Context(), h.DB, r.PathValue("id"), req.Price, req.Currency, req.Message)
	if err != nil {
		storeError(w, err)
		return
	}
	h.notifyOrder(r, event)

	claims := GetClaims(r.Context())
	slog.Info("store quoted order", "user", claims.Username, "order", order.OrderNumber, "price", req.Price, "status", order.Status)
	jsonResponse(w, http.StatusOK, order)
}

// Counter handles POST /api/orders/{id}/counter: the customer's answer to a
// standing quote.
func (h *OrdersHandler) Counter(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())
	if order.OwnerID != claims.UserID {
		// Countering is the owner's move even when an admin can see the order.
		jsonError(w, http.StatusForbidden, "only the order owner can counter")
		return
	}

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, event, err := store.SubmitUserCounter(r.Context(), h.DB, order.ID, req.Price, req.Currency, req.Message)
	if err != nil {
		storeError(w, err)
		return
	}
	// The customer counters toward the store, so the store account hears
	// about it instead of the event's default recipient.
	if event != nil {
		if storeAccount, err := store.GetStoreAccount(r.Context(), h.DB); err == nil && storeAccount > 0 {
			event.Recipient = storeAccount
			h.notifyOrder(r, event)
		}
	}

	slog.Info("customer countered order", "user", claims.Username, "order", updated.OrderNumber, "price", req.Price)
	jsonResponse(w, http.StatusOK, updated)
}

// Accept handles POST /api/orders/{id}/accept. Either side may close the
// deal on the last-standing offer.
func (h *OrdersHandler) Accept(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}

	updated, event, err := store.AcceptOrder(r.Context(), h.DB, order.ID)
	if err != nil {
		storeError(w, err)
		return
	}
	if !isAdmin(r) && event != nil {
		// Owner accepted; route the event to the store instead.
		if storeAccount, err := store.GetStoreAccount(r.Context(), h.DB); err == nil && storeAccount > 0 {
			event.Recipient = storeAccount
		}
	}
	h.notifyOrder(r, event)

	claims := GetClaims(r.Context())
	slog.Info("order settled", "user", claims.Username, "order", updated.OrderNumber)
	jsonResponse(w, http.StatusOK, updated)
}

// Cancel handles POST /api/orders/{id}/cancel.
func (h *OrdersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}

	updated, event, err := store.CancelOrder(r.Context(), h.DB, order.ID)
	if err != nil {
		storeError(w, err)
		return
	}
	if !isAdmin(r) && event != nil {
		if storeAccount, err := store.GetStoreAccount(r.Context(), h.DB); err == nil && storeAccount > 0 {
			event.Recipient = storeAccount
		}
	}
	h.notifyOrder(r, event)

	claims := GetClaims(r.Context())
	slog.Info("order cancelled", "user", claims.Username, "order", updated.OrderNumber)
	jsonResponse(w, http.StatusOK, updated)
}

// authorizedOrder loads the order and enforces ownership: customers only
// reach their own orders, and unknown IDs and foreign orders look the same.
func (h *OrdersHandler) authorizedOrder(w http.ResponseWriter, r *http.Request) (*model.Order, bool) {
	order, err := store.GetOrder(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return nil, false
	}
	if order == nil {
		jsonError(w, http.StatusNotFound, "order not found")
		return nil, false
	}

	claims := GetClaims(r.Context())
	if !isAdmin(r) && order.OwnerID != claims.UserID {
		jsonError(w, http.StatusNotFound, "order not found")
		return nil, false
	}
	return order, true
}

// notifyOrder turns an order transition event into a notification. A failed
// notification never fails the request.
func (h *OrdersHandler) notifyOrder(r *http.Request, event *model.OrderEvent) {
	if event == nil || event.Recipient == 0 {
		return
	}

	message := fmt.Sprintf("El pedido %s pasó a %s", event.OrderNumber, event.NewStatus)
	if event.LatestPrice != nil {
		message = fmt.Sprintf("El pedido %s pasó a %s (última oferta %s %s)",
			event.OrderNumber, event.NewStatus, event.LatestPrice, event.LatestCurrency)
	}
	err := store.CreateNotification(r.Context(), h.DB, event.Recipient, "Pedido actualizado", message, event.OrderID, "")
	if err != nil {
		slog.Error("failed to create order notification", "order", event.OrderID, "error", err)
	}
}
