package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/store"
)

// SessionsHandler handles cabinet session administration.
type SessionsHandler struct {
	DB *sql.DB
}

type sessionDetail struct {
	*model.Session
	Transactions []model.Transaction `json:"transactions"`
	HasEvidence  bool                `json:"has_evidence"`
}

// Get handles GET /api/admin/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s, err := store.GetSession(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s == nil {
		writeError(w, r, model.ErrSessionNotFound)
		return
	}

	txs, err := store.ListSessionTransactions(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	evidence, _, err := store.GetEvidence(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, sessionDetail{
		Session:      s,
		Transactions: txs,
		HasEvidence:  evidence != nil,
	})
}

// ForceClose handles POST /api/admin/sessions/{id}/force-close.
func (h *SessionsHandler) ForceClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s, err := store.ForceCloseSession(r.Context(), h.DB, id, time.Now())
	if errors.Is(err, model.ErrSessionClosed) {
		jsonResponse(w, http.StatusConflict, map[string]string{
			"error":  "session already closed",
			"status": s.Status,
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("session force closed", "user", claims.Email, "session_id", id, "cabinet_id", s.CabinetID)
	jsonResponse(w, http.StatusOK, s)
}

// Evidence handles GET /api/admin/sessions/{id}/evidence.
func (h *SessionsHandler) Evidence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	data, mime, err := store.GetEvidence(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no evidence")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
