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

// TradesHandler handles barter trade endpoints. When no counterparty is
// named the trade is addressed to the store account, which is the common
// case: collectors trading against the shop's catalog.
type TradesHandler struct {
	DB *sql.DB
}

type tradeManifestRequest struct {
	CounterpartyID int64           `json:"counterparty_id,omitempty"`
	OfferedItems   []string        `json:"offered_items"`
	RequestedItems []string        `json:"requested_items"`
	CashAdjustment decimal.Decimal `json:"cash_adjustment"`
}

type tradeDetailResponse struct {
	*model.Trade
	Revisions []model.TradeRevision `json:"revisions"`
}

// buildManifest assembles the request's item lists through the manifest
// editor so duplicates collapse and side conflicts surface as 400s.
func buildManifest(req tradeManifestRequest) (model.Manifest, error) {
	var manifest model.Manifest
	for _, id := range req.OfferedItems {
		if err := manifest.AddItem(id, model.SideOffered); err != nil {
			return manifest, err
		}
	}
	for _, id := range req.RequestedItems {
		if err := manifest.AddItem(id, model.SideRequested); err != nil {
			return manifest, err
		}
	}
	manifest.SetCashAdjustment(req.CashAdjustment)
	return manifest, nil
}

// Create handles POST /api/trades.
func (h *TradesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req tradeManifestRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	manifest, err := buildManifest(req)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	counterpartyID := req.CounterpartyID
	if counterpartyID == 0 {
		counterpartyID, err = store.GetStoreAccount(r.Context(), h.DB)
		if err != nil || counterpartyID == 0 {
			jsonError(w, http.StatusInternalServerError, "no store account configured")
			return
		}
	}

	trade, event, err := store.CreateTrade(r.Context(), h.DB, claims.UserID, counterpartyID, manifest)
	if err != nil {
		storeError(w, err)
		return
	}
	h.notifyTrade(r, event)

	slog.Info("trade proposed", "user", claims.Username, "trade", trade.ID, "counterparty", counterpartyID)
	jsonResponse(w, http.StatusCreated, trade)
}

// List handles GET /api/trades. Customers see trades they participate in,
// the admin sees everything.
func (h *TradesHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	status := r.URL.Query().Get("status")
	participantID := claims.UserID
	if isAdmin(r) {
		participantID = 0
	}

	trades, err := store.ListTrades(r.Context(), h.DB, participantID, status)
	if err != nil {
		storeError(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	jsonResponse(w, http.StatusOK, trades)
}

// Get handles GET /api/trades/{id}, returning the trade with its full
// revision history.
func (h *TradesHandler) Get(w http.ResponseWriter, r *http.Request) {
	trade, ok := h.authorizedTrade(w, r)
	if !ok {
		return
	}

	revisions, err := store.ListTradeRevisions(r.Context(), h.DB, trade.ID)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, tradeDetailResponse{Trade: trade, Revisions: revisions})
}

// Counter handles POST /api/trades/{id}/counter.
func (h *TradesHandler) Counter(w http.ResponseWriter, r *http.Request) {
	trade, ok := h.authorizedTrade(w, r)
	if !ok {
		return
	}

	var req tradeManifestRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	manifest, err := buildManifest(req)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, event, err := store.ProposeCounter(r.Context(), h.DB, trade.ID, h.tradeActor(r, trade), manifest)
	if err != nil {
		storeError(w, err)
		return
	}
	h.notifyTrade(r, event)

	claims := GetClaims(r.Context())
	slog.Info("trade countered", "user", claims.Username, "trade", updated.ID, "revision", updated.Revision)
	jsonResponse(w, http.StatusOK, updated)
}

// Accept handles POST /api/trades/{id}/accept: settlement.
func (h *TradesHandler) Accept(w http.ResponseWriter, r *http.Request) {
	trade, ok := h.authorizedTrade(w, r)
	if !ok {
		return
	}

	updated, event, err := store.AcceptTrade(r.Context(), h.DB, trade.ID, h.tradeActor(r, trade))
	if err != nil {
		storeError(w, err)
		return
	}
	h.notifyTrade(r, event)

	claims := GetClaims(r.Context())
	slog.Info("trade settled", "user", claims.Username, "trade", updated.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Decline handles POST /api/trades/{id}/decline.
func (h *TradesHandler) Decline(w http.ResponseWriter, r *http.Request) {
	trade, ok := h.authorizedTrade(w, r)
	if !ok {
		return
	}

	updated, event, err := store.DeclineTrade(r.Context(), h.DB, trade.ID, h.tradeActor(r, trade))
	if err != nil {
		storeError(w, err)
		return
	}
	h.notifyTrade(r, event)

	claims := GetClaims(r.Context())
	slog.Info("trade declined", "user", claims.Username, "trade", updated.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// authorizedTrade loads the trade and enforces participation: customers only
// reach trades they are part of, and unknown IDs and foreign trades look the
// same.
func (h *TradesHandler) authorizedTrade(w http.ResponseWriter, r *http.Request) (*model.Trade, bool) {
	trade, err := store.GetTrade(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return nil, false
	}
	if trade == nil {
		jsonError(w, http.StatusNotFound, "trade not found")
		return nil, false
	}

	claims := GetClaims(r.Context())
	if !isAdmin(r) && !trade.HasParticipant(claims.UserID) {
		jsonError(w, http.StatusNotFound, "trade not found")
		return nil, false
	}
	return trade, true
}

// tradeActor resolves who is acting on a trade. An admin who is not a
// participant acts as the store account, so any admin can work the store's
// side of the counter.
func (h *TradesHandler) tradeActor(r *http.Request, trade *model.Trade) int64 {
	claims := GetClaims(r.Context())
	if trade.HasParticipant(claims.UserID) || !isAdmin(r) {
		return claims.UserID
	}
	storeAccount, err := store.GetStoreAccount(r.Context(), h.DB)
	if err != nil || !trade.HasParticipant(storeAccount) {
		return claims.UserID
	}
	return storeAccount
}

// notifyTrade turns a trade transition event into a notification. A failed
// notification never fails the request.
func (h *TradesHandler) notifyTrade(r *http.Request, event *model.TradeEvent) {
	if event == nil || event.Recipient == 0 {
		return
	}

	message := fmt.Sprintf("El canje %s pasó a %s", event.TradeID, event.NewStatus)
	err := store.CreateNotification(r.Context(), h.DB, event.Recipient, "Canje actualizado", message, "", event.TradeID)
	if err != nil {
		slog.Error("failed to create trade notification", "trade", event.TradeID, "error", err)
	}
}
