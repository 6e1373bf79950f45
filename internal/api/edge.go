package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/save4223/save4223server/internal/access"
	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/reconcile"
	"github.com/save4223/save4223server/internal/store"
)

// EdgeHandler serves the cabinet edge devices.
type EdgeHandler struct {
	DB         *sql.DB
	Access     *access.Engine
	Reconciler *reconcile.Reconciler
}

type authorizeRequest struct {
	CardUID   string `json:"card_uid"`
	CabinetID int64  `json:"cabinet_id"`
}

type denial struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason"`
	UserID     string `json:"user_id,omitempty"`
}

// Authorize handles POST /api/edge/authorize.
func (h *EdgeHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CardUID == "" || req.CabinetID <= 0 {
		jsonError(w, http.StatusBadRequest, "card_uid and cabinet_id required")
		return
	}

	d, err := h.Access.Authorize(r.Context(), req.CardUID, req.CabinetID)
	switch {
	case err == nil:
		slog.Info("cabinet access granted", "cabinet_id", d.CabinetID, "user_id", d.UserID, "session_id", d.SessionID)
		jsonResponse(w, http.StatusOK, d)
	case errors.Is(err, model.ErrCardNotRegistered):
		// Unknown cards are refused, not reported missing.
		jsonResponse(w, http.StatusForbidden, denial{Reason: "card not registered"})
	case errors.Is(err, model.ErrCardInactive):
		jsonResponse(w, http.StatusForbidden, denial{Reason: "card deactivated"})
	case errors.Is(err, model.ErrCabinetNotFound):
		jsonResponse(w, http.StatusNotFound, denial{Reason: "cabinet not found"})
	case errors.Is(err, model.ErrNoValidPermission):
		var userID string
		if d != nil {
			userID = d.UserID
		}
		slog.Warn("restricted cabinet access denied", "cabinet_id", req.CabinetID, "user_id", userID)
		jsonResponse(w, http.StatusForbidden, denial{
			Reason: "access denied: restricted cabinet, no valid permission",
			UserID: userID,
		})
	default:
		writeError(w, r, err)
	}
}

// LocalSync handles GET /api/edge/local-sync.
func (h *EdgeHandler) LocalSync(w http.ResponseWriter, r *http.Request) {
	var filter *int64
	if v := r.URL.Query().Get("cabinet_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid cabinet_id")
			return
		}
		filter = &id
	}

	snap, err := h.Access.BuildSyncSnapshot(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("X-Snapshot-Signature", snap.Signature)
	jsonResponse(w, http.StatusOK, snap)
}

type syncSessionRequest struct {
	SessionID     string   `json:"session_id"`
	UserID        string   `json:"user_id"`
	CabinetID     int64    `json:"cabinet_id"`
	StartRfids    []string `json:"start_rfids"`
	EndRfids      []string `json:"end_rfids"`
	EvidenceImage string   `json:"evidence_image"`
}

type syncSessionResponse struct {
	Success bool `json:"success"`
	*reconcile.Result
}

// SyncSession handles POST /api/edge/sync-session.
func (h *EdgeHandler) SyncSession(w http.ResponseWriter, r *http.Request) {
	var req syncSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Reconciler.ReconcileSession(r.Context(), reconcile.Request{
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		CabinetID:     req.CabinetID,
		StartRfids:    req.StartRfids,
		EndRfids:      req.EndRfids,
		EvidenceImage: req.EvidenceImage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, syncSessionResponse{Success: true, Result: res})
}

type pairCardRequest struct {
	PairingToken string `json:"pairing_token"`
	CardUID      string `json:"card_uid"`
}

type pairCardResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
	CardUID string `json:"cardUid"`
}

// PairCard handles POST /api/edge/pair-card.
func (h *EdgeHandler) PairCard(w http.ResponseWriter, r *http.Request) {
	var req pairCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PairingToken == "" || req.CardUID == "" {
		jsonError(w, http.StatusBadRequest, "pairing_token and card_uid required")
		return
	}

	res, err := store.PairCard(r.Context(), h.DB, req.PairingToken, req.CardUID, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := "Card successfully linked to your account"
	if res.Reactivated {
		msg = "Card already linked to your account"
	}
	slog.Info("card paired", "user_id", res.Card.UserID, "card_id", res.Card.ID, "reactivated", res.Reactivated)
	jsonResponse(w, http.StatusOK, pairCardResponse{
		Success: true,
		Message: msg,
		UserID:  res.Card.UserID,
		CardUID: res.Card.CardUID,
	})
}
