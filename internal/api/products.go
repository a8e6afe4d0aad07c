package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/trgovina/internal/imaging"
	"github.com/erazemk/trgovina/internal/model"
	"github.com/erazemk/trgovina/internal/store"
)

// ProductsHandler handles the product catalog.
type ProductsHandler struct {
	DB     *sql.DB
	Images imaging.Processor
}

type productRequest struct {
	Name     string           `json:"name"`
	Category string           `json:"category"`
	Price    *decimal.Decimal `json:"price"`
	Quantity int              `json:"quantity"`
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (req *productRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return "name required"
	}
	if req.Price == nil {
		return "price required"
	}
	if req.Price.IsNegative() {
		return "price must not be negative"
	}
	if req.Quantity < 0 {
		return "quantity must not be negative"
	}
	return ""
}

// List handles GET /api/products.
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := store.ListProducts(r.Context(), h.DB, r.URL.Query().Get("category"))
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	jsonResponse(w, http.StatusOK, products)
}

// Get handles GET /api/products/{id}.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if p == nil || p.Deleted() {
		jsonError(w, http.StatusNotFound, "Product not found")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Create handles POST /api/products. The body is JSON, or a multipart form
// with the same fields and an optional "image" file.
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	var image *imaging.Result

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload())
		if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
			jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
			return
		}
		req.Name = r.FormValue("name")
		req.Category = r.FormValue("category")
		if v := r.FormValue("price"); v != "" {
			price, err := decimal.NewFromString(v)
			if err != nil {
				jsonError(w, http.StatusBadRequest, "invalid price")
				return
			}
			req.Price = &price
		}
		if v := r.FormValue("quantity"); v != "" {
			q, err := strconv.Atoi(v)
			if err != nil {
				jsonError(w, http.StatusBadRequest, "invalid quantity")
				return
			}
			req.Quantity = q
		}

		if len(r.MultipartForm.File["image"]) > 0 {
			var ok bool
			if image, ok = h.readImage(w, r); !ok {
				return
			}
		}
	} else if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := req.validate(); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	p, err := store.CreateProduct(r.Context(), h.DB, req.Name, req.Category, *req.Price, req.Quantity)
	if err != nil {
		storeError(w, r, err, "")
		return
	}

	if image != nil {
		if err := store.SetProductImage(r.Context(), h.DB, p.ID, image.Data, image.MIME); err != nil {
			storeError(w, r, err, "Product not found")
			return
		}
		if p, err = store.GetProduct(r.Context(), h.DB, p.ID); err != nil {
			storeError(w, r, err, "")
			return
		}
	}

	slog.Info("product created", "product", p.Name, "id", p.ID, "by", GetClaims(r.Context()).Email)
	jsonResponse(w, http.StatusCreated, p)
}

// Update handles PUT /api/products/{id}.
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	if err := store.UpdateProduct(r.Context(), h.DB, id, req.Name, req.Category, *req.Price, req.Quantity); err != nil {
		storeError(w, r, err, "Product not found")
		return
	}

	p, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	slog.Info("product updated", "product", p.Name, "id", p.ID, "by", GetClaims(r.Context()).Email)
	jsonResponse(w, http.StatusOK, p)
}

// Delete handles DELETE /api/products/{id}.
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := store.DeleteProduct(r.Context(), h.DB, id); err != nil {
		storeError(w, r, err, "Product not found")
		return
	}

	slog.Info("product deleted", "id", id, "by", GetClaims(r.Context()).Email)
	jsonMessage(w, "Product deleted")
}

// AdjustStock handles POST /api/products/{id}/stock.
func (h *ProductsHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == 0 {
		jsonError(w, http.StatusBadRequest, "delta must not be zero")
		return
	}

	p, err := store.AdjustStock(r.Context(), h.DB, id, req.Delta)
	if err != nil {
		storeError(w, r, err, "Product not found")
		return
	}

	slog.Info("stock adjusted", "product", p.Name, "delta", req.Delta, "quantity", p.Quantity, "by", GetClaims(r.Context()).Email)
	jsonResponse(w, http.StatusOK, p)
}

// UploadImage handles PUT /api/products/{id}/image.
func (h *ProductsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload())
	if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	image, ok := h.readImage(w, r)
	if !ok {
		return
	}

	if err := store.SetProductImage(r.Context(), h.DB, id, image.Data, image.MIME); err != nil {
		storeError(w, r, err, "Product not found")
		return
	}

	jsonMessage(w, "image uploaded")
}

// readImage reads and normalizes the "image" file of a parsed multipart form.
func (h *ProductsHandler) readImage(w http.ResponseWriter, r *http.Request) (*imaging.Result, bool) {
	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return nil, false
	}
	defer file.Close()

	result, err := h.Images.Process(file)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, "image too large")
		return nil, false
	case errors.Is(err, imaging.ErrUnsupported):
		jsonError(w, http.StatusBadRequest, "image must be JPEG, PNG, GIF or WebP")
		return nil, false
	case err != nil:
		storeError(w, r, err, "")
		return nil, false
	}
	return result, true
}

// GetImage handles GET /api/products/{id}/image.
func (h *ProductsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	data, mimeType, err := store.GetProductImage(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// maxUpload bounds multipart bodies: the image limit plus room for form fields.
func (h *ProductsHandler) maxUpload() int64 {
	limit := h.Images.MaxBytes
	if limit <= 0 {
		limit = imaging.DefaultMaxBytes
	}
	return limit + 64<<10
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}
