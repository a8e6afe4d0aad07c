package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/trgovina/internal/cart"
	"github.com/erazemk/trgovina/internal/fulfillment"
	"github.com/erazemk/trgovina/internal/imaging"
	"github.com/erazemk/trgovina/internal/metrics"
	"github.com/erazemk/trgovina/internal/model"
)

// Options are the dependencies of the API router.
type Options struct {
	DB        *sql.DB
	JWTSecret string
	Engine    *fulfillment.Engine
	Carts     *cart.Service
	Images    imaging.Processor
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()
	db := opts.DB

	authHandler := &AuthHandler{DB: db, JWTSecret: opts.JWTSecret}
	usersHandler := &UsersHandler{DB: db}
	productsHandler := &ProductsHandler{DB: db, Images: opts.Images}
	ordersHandler := &OrdersHandler{DB: db, Engine: opts.Engine}
	salesHandler := &SalesHandler{DB: db}
	cartHandler := &CartHandler{Carts: opts.Carts}

	authMW := AuthMiddleware(opts.JWTSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireStaff := RequireRole(model.RoleStaff)

	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	staff := func(h http.HandlerFunc) http.Handler { return authMW(requireStaff(h)) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// Auth.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("POST /api/auth/register-staff", admin(authHandler.RegisterStaff))
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/auth/me", authed(authHandler.UpdateMe))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Products: read (public), write (staff+).
	mux.HandleFunc("GET /api/products", productsHandler.List)
	mux.HandleFunc("GET /api/products/{id}", productsHandler.Get)
	mux.HandleFunc("GET /api/products/{id}/image", productsHandler.GetImage)
	mux.Handle("POST /api/products", staff(productsHandler.Create))
	mux.Handle("PUT /api/products/{id}", staff(productsHandler.Update))
	mux.Handle("DELETE /api/products/{id}", staff(productsHandler.Delete))
	mux.Handle("PUT /api/products/{id}/image", staff(productsHandler.UploadImage))
	mux.Handle("POST /api/products/{id}/stock", staff(productsHandler.AdjustStock))

	// Orders.
	mux.Handle("POST /api/orders", authed(ordersHandler.Create))
	mux.Handle("GET /api/orders", staff(ordersHandler.List))
	mux.Handle("GET /api/orders/my", authed(ordersHandler.Mine))
	mux.Handle("GET /api/orders/stats", admin(ordersHandler.Stats))
	mux.Handle("GET /api/orders/{id}", authed(ordersHandler.Get))
	mux.Handle("PUT /api/orders/{id}/status", staff(ordersHandler.UpdateStatus))

	// Sales (staff+), stats (admin).
	mux.Handle("POST /api/sales", staff(salesHandler.Create))
	mux.Handle("GET /api/sales", staff(salesHandler.List))
	mux.Handle("GET /api/sales/export", staff(salesHandler.Export))
	mux.Handle("GET /api/sales/stats", admin(salesHandler.Stats))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("GET /api/users/staff", admin(usersHandler.ListStaff))
	mux.Handle("GET /api/users/customers", admin(usersHandler.ListCustomers))
	mux.Handle("GET /api/users/stats", admin(usersHandler.Stats))
	mux.Handle("PUT /api/users/staff/{id}/toggle-status", admin(usersHandler.ToggleStaffStatus))

	// Cart (any signed-in user).
	mux.Handle("GET /api/cart", authed(cartHandler.Get))
	mux.Handle("PUT /api/cart/items", authed(cartHandler.SetItem))
	mux.Handle("DELETE /api/cart/items/{productId}", authed(cartHandler.RemoveItem))
	mux.Handle("DELETE /api/cart", authed(cartHandler.Clear))
	mux.Handle("POST /api/cart/checkout", authed(cartHandler.Checkout))
	mux.Handle("GET /api/cart/events", authed(cartHandler.Events))

	return LoggingMiddleware(metrics.Middleware(mux))
}
