package api

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/trgovina/internal/metrics"
	"github.com/erazemk/trgovina/internal/model"
	"github.com/erazemk/trgovina/internal/store"
)

// SalesHandler handles the sales ledger.
type SalesHandler struct {
	DB *sql.DB
}

type createSaleRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Create handles POST /api/sales, a direct sale outside of any order.
func (h *SalesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == 0 || req.Quantity <= 0 {
		jsonError(w, http.StatusBadRequest, "productId and a positive quantity required")
		return
	}

	sale, err := store.RecordSale(r.Context(), h.DB, req.ProductID, req.Quantity, claims.UserID)
	if err != nil {
		storeError(w, r, err, "Product not found")
		return
	}

	metrics.SalesRecorded(metrics.SourceDirect, 1)
	slog.Info("sale recorded", "sale", sale.ID, "product", sale.ProductName, "quantity", sale.Quantity, "user", claims.Email)
	jsonResponse(w, http.StatusCreated, sale)
}

// List handles GET /api/sales.
func (h *SalesHandler) List(w http.ResponseWriter, r *http.Request) {
	sales, err := store.ListSales(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if sales == nil {
		sales = []model.Sale{}
	}
	jsonResponse(w, http.StatusOK, sales)
}

// Stats handles GET /api/sales/stats.
func (h *SalesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	revenue, err := store.Revenue(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"revenue": revenue})
}

// Export handles GET /api/sales/export, the sales ledger as CSV.
func (h *SalesHandler) Export(w http.ResponseWriter, r *http.Request) {
	sales, err := store.ListSales(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "")
		return
	}

	filename := fmt.Sprintf("sales-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	cw.Write([]string{"Product", "Quantity", "Amount", "Sold By"})
	for _, s := range sales {
		cw.Write([]string{s.ProductName, strconv.Itoa(s.Quantity), s.TotalAmount.StringFixed(2), s.SoldByName})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("writing sales export", "error", err)
	}
}
