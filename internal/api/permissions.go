package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/store"
)

// PermissionsHandler handles restricted cabinet permissions.
type PermissionsHandler struct {
	DB *sql.DB
}

type createPermissionRequest struct {
	UserID        string     `json:"user_id"`
	LocationID    int64      `json:"location_id"`
	Status        string     `json:"status"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
	RequestReason string     `json:"request_reason"`
}

type updatePermissionRequest struct {
	Status     string     `json:"status"`
	ValidUntil *time.Time `json:"valid_until"`
}

// Create handles POST /api/admin/permissions.
func (h *PermissionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.LocationID <= 0 {
		jsonError(w, http.StatusBadRequest, "user_id and location_id required")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || user.DeletedAt != nil {
		writeError(w, r, model.ErrUserNotFound)
		return
	}
	loc, err := store.GetLocation(r.Context(), h.DB, req.LocationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if loc == nil {
		jsonError(w, http.StatusNotFound, "location not found")
		return
	}

	claims := GetClaims(r.Context())
	p := model.AccessPermission{
		UserID:        req.UserID,
		LocationID:    req.LocationID,
		Status:        req.Status,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		RequestReason: req.RequestReason,
	}
	if p.Status == model.PermissionApproved {
		p.ApprovedBy = claims.UserID
	}

	perm, err := store.CreatePermission(r.Context(), h.DB, p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("permission created",
		"user", claims.Email, "target_user", perm.UserID,
		"location_id", perm.LocationID, "status", perm.Status,
	)
	jsonResponse(w, http.StatusCreated, perm)
}

// Update handles PUT /api/admin/permissions/{id}.
func (h *PermissionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid permission id")
		return
	}

	var req updatePermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	perm, err := store.UpdatePermission(r.Context(), h.DB, id, req.Status, req.ValidUntil, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("permission updated", "user", claims.Email, "permission_id", id, "status", perm.Status)
	jsonResponse(w, http.StatusOK, perm)
}
