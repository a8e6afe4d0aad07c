package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/trgovina/internal/model"
	"github.com/erazemk/trgovina/internal/store"
)

// UsersHandler handles user administration endpoints (admin only).
type UsersHandler struct {
	DB *sql.DB
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

// ListStaff handles GET /api/users/staff.
func (h *UsersHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.RoleStaff)
}

// ListCustomers handles GET /api/users/customers.
func (h *UsersHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.RoleCustomer)
}

func (h *UsersHandler) list(w http.ResponseWriter, r *http.Request, role string) {
	users, err := store.ListUsers(r.Context(), h.DB, role)
	if err != nil {
		slog.Error("failed to list users", "role", role, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Stats handles GET /api/users/stats.
func (h *UsersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetUserStats(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// ToggleStaffStatus handles PUT /api/users/staff/{id}/toggle-status.
func (h *UsersHandler) ToggleStaffStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "User not found")
		return
	}
	if user.Role != model.RoleStaff {
		jsonError(w, http.StatusBadRequest, "Can only toggle status for staff members")
		return
	}

	if err := store.SetUserActive(r.Context(), h.DB, id, !user.IsActive); err != nil {
		storeError(w, r, err, "User not found")
		return
	}
	user.IsActive = !user.IsActive

	state := "disabled"
	if user.IsActive {
		state = "enabled"
	}
	slog.Info("staff status changed", "staff", user.Email, "state", state, "by", GetClaims(r.Context()).Email)
	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "Staff " + state + " successfully",
		"user":    user,
	})
}
