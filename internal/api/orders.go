package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/trgovina/internal/fulfillment"
	"github.com/erazemk/trgovina/internal/metrics"
	"github.com/erazemk/trgovina/internal/model"
	"github.com/erazemk/trgovina/internal/store"
)

// OrdersHandler handles order placement, reads and status changes.
type OrdersHandler struct {
	DB     *sql.DB
	Engine *fulfillment.Engine
}

type createOrderRequest struct {
	Items []model.OrderLine `json:"items"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Create handles POST /api/orders.
func (h *OrdersHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		jsonError(w, http.StatusBadRequest, "order must contain at least one item")
		return
	}

	order, err := store.PlaceOrder(r.Context(), h.DB, claims.UserID, req.Items)
	if err != nil {
		storeError(w, r, err, "Product not found")
		return
	}

	metrics.OrderPlaced()
	slog.Info("order placed", "order", order.ID, "user", claims.Email, "total", order.Total)
	jsonResponse(w, http.StatusCreated, order)
}

// List handles GET /api/orders.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := store.ListOrders(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// Mine handles GET /api/orders/my.
func (h *OrdersHandler) Mine(w http.ResponseWriter, r *http.Request) {
	orders, err := store.ListOrdersByCustomer(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// Stats handles GET /api/orders/stats.
func (h *OrdersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetOrderStats(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// Get handles GET /api/orders/{id}. Customers may only read their own orders.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := store.GetOrder(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if order == nil {
		jsonError(w, http.StatusNotFound, "Order not found")
		return
	}
	if order.OrderedBy != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleStaff) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	jsonResponse(w, http.StatusOK, order)
}

// UpdateStatus handles PUT /api/orders/{id}/status. Moving a pending order
// to "in progress" takes its items out of stock and records their sales.
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		jsonError(w, http.StatusBadRequest, "Status is required")
		return
	}

	order, err := h.Engine.TransitionOrderStatus(r.Context(), id, req.Status, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrInvalidTransition) {
			slog.Warn("order status change refused", "order", id, "status", req.Status, "user", claims.Email, "error", err)
		}
		storeError(w, r, err, "Order not found")
		return
	}

	slog.Info("order status changed", "order", order.ID, "status", order.Status, "user", claims.Email)
	jsonResponse(w, http.StatusOK, order)
}
