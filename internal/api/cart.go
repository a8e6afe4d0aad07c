package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/trgovina/internal/cart"
	"github.com/erazemk/trgovina/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// CartHandler handles the signed-in user's cart.
type CartHandler struct {
	Carts *cart.Service
}

type setCartItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Get handles GET /api/cart.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Get(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// SetItem handles PUT /api/cart/items. A zero quantity removes the product.
func (h *CartHandler) SetItem(w http.ResponseWriter, r *http.Request) {
	var req setCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == 0 {
		jsonError(w, http.StatusBadRequest, "productId required")
		return
	}

	c, err := h.Carts.SetItem(r.Context(), GetClaims(r.Context()).UserID, req.ProductID, req.Quantity)
	if err != nil {
		storeError(w, r, err, "Product not found")
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// RemoveItem handles DELETE /api/cart/items/{productId}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	c, err := h.Carts.RemoveItem(r.Context(), GetClaims(r.Context()).UserID, productID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// Clear handles DELETE /api/cart.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), GetClaims(r.Context()).UserID); err != nil {
		storeError(w, r, err, "")
		return
	}
	jsonMessage(w, "cart cleared")
}

// Checkout handles POST /api/cart/checkout.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	order, err := h.Carts.Checkout(r.Context(), claims.UserID)
	if err != nil {
		storeError(w, r, err, "Product not found")
		return
	}

	metrics.OrderPlaced()
	slog.Info("order placed", "order", order.ID, "user", claims.Email, "total", order.Total, "source", "cart")
	jsonResponse(w, http.StatusCreated, order)
}

// Events handles GET /api/cart/events, a websocket stream of the user's
// cart changes. Clients only receive; anything they send is discarded.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	// Subscribe before the handshake completes so no event after it is missed.
	events, cancel := h.Carts.Subscribe(claims.UserID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		slog.Warn("cart events upgrade failed", "user", claims.Email, "error", err)
		return
	}
	defer conn.Close()

	// The read loop handles pongs and notices when the client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
