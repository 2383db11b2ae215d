package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/vinilomarket/vinilo/internal/model"
	"github.com/vinilomarket/vinilo/internal/store"
)

// ItemsHandler handles catalog endpoints. Reads are open to every
// authenticated user; writes are the admin's catalog ingestion path.
type ItemsHandler struct {
	DB *sql.DB
}

type createItemRequest struct {
	Title      string          `json:"title"`
	Artist     string          `json:"artist"`
	Year       int             `json:"year"`
	Country    string          `json:"country"`
	Format     string          `json:"format"`
	Condition  string          `json:"condition"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Stock      int             `json:"stock"`
	Thumbnail  string          `json:"thumbnail"`
	DiscogsID  int64           `json:"discogs_id"`
	DiscogsURL string          `json:"discogs_url"`
}

type updateItemRequest struct {
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Condition string          `json:"condition"`
	Stock     int             `json:"stock"`
	Status    string          `json:"status"`
}

type resolveItemsRequest struct {
	IDs []string `json:"ids"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" {
		switch status {
		case model.ItemStatusActive, model.ItemStatusSoldOut, model.ItemStatusArchived:
		default:
			jsonError(w, http.StatusBadRequest, "unknown item status")
			return
		}
	}

	items, err := store.ListItems(r.Context(), h.DB, status)
	if err != nil {
		storeError(w, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := store.GetItem(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Resolve handles POST /api/items/resolve: a batch detail lookup so the
// trade manifest editor can render item IDs in one round trip. Unknown IDs
// are simply absent from the result.
func (h *ItemsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		jsonError(w, http.StatusBadRequest, "ids required")
		return
	}

	items, err := store.GetItemsByIDs(r.Context(), h.DB, req.IDs)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items (admin only).
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, model.Item{
		Title:      req.Title,
		Artist:     req.Artist,
		Year:       req.Year,
		Country:    req.Country,
		Format:     req.Format,
		Condition:  req.Condition,
		Price:      req.Price,
		Currency:   req.Currency,
		Stock:      req.Stock,
		Thumbnail:  req.Thumbnail,
		DiscogsID:  req.DiscogsID,
		DiscogsURL: req.DiscogsURL,
	})
	if err != nil {
		storeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item created", "user", claims.Username, "item", item.ID, "title", item.Title)
	jsonResponse(w, http.StatusCreated, item)
}

// Update handles PUT /api/items/{id} (admin only): the manual logistics
// edit path for price, condition, stock and status.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := store.UpdateItemLogistics(r.Context(), h.DB, r.PathValue("id"),
		req.Price, req.Currency, req.Condition, req.Stock, req.Status)
	if err != nil {
		storeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item updated", "user", claims.Username, "item", item.ID, "stock", item.Stock, "status", item.Status)
	jsonResponse(w, http.StatusOK, item)
}
