package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/store"
)

// recentTransactions is how many transactions GET /api/user/items returns.
const recentTransactions = 5

// UserHandler handles the signed-in user's own cards, items and profile.
type UserHandler struct {
	DB *sql.DB
}

type pairingTokenResponse struct {
	PairingToken string    `json:"pairing_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PairingToken handles POST /api/user/pairing-token.
func (h *UserHandler) PairingToken(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || user.DeletedAt != nil {
		writeError(w, r, model.ErrUserNotFound)
		return
	}

	token, code, err := store.CreatePairingCode(r.Context(), h.DB, user.ID, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("pairing code issued", "user_id", user.ID, "expires_at", code.ExpiresAt)
	jsonResponse(w, http.StatusCreated, pairingTokenResponse{
		PairingToken: token,
		ExpiresAt:    code.ExpiresAt,
	})
}

type userItemsResponse struct {
	Items              []model.Item        `json:"items"`
	RecentTransactions []model.Transaction `json:"recent_transactions"`
}

// Items handles GET /api/user/items.
func (h *UserHandler) Items(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	items, err := store.ListHeldItems(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := store.ListUserTransactions(r.Context(), h.DB, claims.UserID, recentTransactions)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if items == nil {
		items = []model.Item{}
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	jsonResponse(w, http.StatusOK, userItemsResponse{Items: items, RecentTransactions: txs})
}

// Cards handles GET /api/user/cards.
func (h *UserHandler) Cards(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	cards, err := store.ListUserCards(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cards == nil {
		cards = []model.Card{}
	}
	jsonResponse(w, http.StatusOK, cards)
}

// DeactivateCard handles DELETE /api/user/cards/{id}.
func (h *UserHandler) DeactivateCard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid card id")
		return
	}

	claims := GetClaims(r.Context())
	ok, err := store.DeactivateCard(r.Context(), h.DB, claims.UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		jsonError(w, http.StatusNotFound, "card not found")
		return
	}

	slog.Info("card deactivated", "user_id", claims.UserID, "card_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "card deactivated"})
}

// Profile handles GET /api/user/profile.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || user.DeletedAt != nil {
		writeError(w, r, model.ErrUserNotFound)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	FullName string `json:"full_name"`
}

// UpdateProfile handles PATCH /api/user/profile.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	user, err := store.UpdateUserFullName(r.Context(), h.DB, claims.UserID, strings.TrimSpace(req.FullName))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, model.ErrUserNotFound)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// List handles GET /api/admin/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/admin/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		jsonError(w, http.StatusBadRequest, "email required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleUser
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	existing, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "email already exists")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.ID, req.Email, req.FullName, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("user created", "user", claims.Email, "new_user", user.Email, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

type deleteUserConflict struct {
	Error         string       `json:"error"`
	BorrowedItems []model.Item `json:"borrowed_items"`
}

type deleteUserResponse struct {
	Message       string       `json:"message"`
	ReleasedItems []model.Item `json:"released_items"`
}

// Delete handles DELETE /api/admin/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Prevent self-deletion.
	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	held, err := store.DeleteUser(r.Context(), h.DB, id, force)
	if errors.Is(err, model.ErrUserHasBorrowedItems) {
		jsonResponse(w, http.StatusConflict, deleteUserConflict{
			Error:         "user has borrowed items",
			BorrowedItems: held,
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if held == nil {
		held = []model.Item{}
	}
	slog.Info("user deleted", "user", claims.Email, "deleted_user", id, "released_items", len(held))
	jsonResponse(w, http.StatusOK, deleteUserResponse{Message: "user deleted", ReleasedItems: held})
}
