package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/store"
)

// ItemsHandler handles item administration endpoints.
type ItemsHandler struct {
	DB *sql.DB
}

type setItemStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles PUT /api/admin/items/{id}/status.
func (h *ItemsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req setItemStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := store.SetItemStatus(r.Context(), h.DB, id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item status set", "user", claims.Email, "item_id", id, "status", item.Status)
	jsonResponse(w, http.StatusOK, item)
}

// Overdue handles GET /api/admin/items/overdue.
func (h *ItemsHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListOverdueItems(r.Context(), h.DB, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}
