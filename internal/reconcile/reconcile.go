// Package reconcile turns the before and after RFID snapshots of a cabinet
// session into borrow and return transactions.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/save4223/save4223server/internal/imaging"
	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/obs"
	"github.com/save4223/save4223server/internal/store"
)

// Reasons a tag was skipped.
const (
	SkipUnknownTag      = "unknown_tag"
	SkipAlreadyBorrowed = "already_borrowed"
	SkipAlreadyRecorded = "already_recorded"
)

// Request is a session close event from an edge device.
type Request struct {
	SessionID  string
	UserID     string
	CabinetID  int64
	StartRfids []string
	EndRfids   []string

	// EvidenceImage is an optional base64 JPEG or PNG.
	EvidenceImage string
}

// Applied is a transaction written by this call.
type Applied struct {
	TransactionID int64      `json:"transaction_id"`
	ItemID        string     `json:"item_id"`
	RfidTag       string     `json:"rfid_tag"`
	ItemName      string     `json:"item_name,omitempty"`
	Action        string     `json:"action"`
	DueAt         *time.Time `json:"due_at,omitempty"`
}

// Skipped is a tag that produced no transaction.
type Skipped struct {
	RfidTag string `json:"rfid_tag"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
}

// Summary counts the applied actions.
type Summary struct {
	Borrowed int `json:"borrowed"`
	Returned int `json:"returned"`
}

// Result is the outcome of ReconcileSession.
type Result struct {
	SessionID     string    `json:"session_id"`
	SessionStatus string    `json:"session_status"`
	Transactions  []Applied `json:"transactions"`
	Skipped       []Skipped `json:"skipped"`
	Summary       Summary   `json:"summary"`
	EvidenceSaved bool      `json:"evidence_saved"`
}

// Reconciler applies session close events to item custody.
type Reconciler struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// New creates a Reconciler.
func New(db *sql.DB, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{DB: db, Logger: logger, Now: time.Now}
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// ReconcileSession closes the session and applies the snapshot difference:
// tags present at start but not at end are borrowed by req.UserID, tags
// present at end but not at start are returned.
//
// The call is safe to repeat. Each (session, item, action) is applied at
// most once, so a resent close event produces no new transactions. Per-tag
// problems are reported in Result.Skipped; only store failures abort.
func (r *Reconciler) ReconcileSession(ctx context.Context, req Request) (*Result, error) {
	if req.SessionID == "" || req.UserID == "" || req.CabinetID <= 0 {
		return nil, fmt.Errorf("%w: session_id, user_id and cabinet_id are required", model.ErrValidation)
	}

	cabinet, err := store.GetLocation(ctx, r.DB, req.CabinetID)
	if err != nil {
		return nil, err
	}
	if cabinet == nil {
		return nil, fmt.Errorf("%w: cabinet %d does not exist", model.ErrValidation, req.CabinetID)
	}

	now := r.now()
	start, end := Dedupe(req.StartRfids), Dedupe(req.EndRfids)

	session, err := store.CompleteSession(ctx, r.DB, req.SessionID, req.CabinetID, req.UserID, start, end, now)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID:     session.ID,
		SessionStatus: session.Status,
		Transactions:  []Applied{},
		Skipped:       []Skipped{},
	}

	evidencePath := ""
	if req.EvidenceImage != "" {
		if r.saveEvidence(ctx, req.SessionID, req.EvidenceImage) {
			evidencePath = model.EvidencePath(req.SessionID)
			res.EvidenceSaved = true
		}
	}

	borrowed, returned := Diff(start, end)
	types := make(map[int64]*model.ItemType)

	for _, tag := range borrowed {
		item, err := store.GetItemByRfid(ctx, r.DB, tag)
		if err != nil {
			return nil, err
		}
		if item == nil {
			res.skip(tag, model.ActionBorrow, SkipUnknownTag)
			continue
		}

		itemType, ok := types[item.ItemTypeID]
		if !ok {
			if itemType, err = store.GetItemType(ctx, r.DB, item.ItemTypeID); err != nil {
				return nil, err
			}
			types[item.ItemTypeID] = itemType
		}
		due := now.Add(itemType.BorrowDuration())

		id, reason, err := r.apply(ctx, model.Transaction{
			SessionID:         req.SessionID,
			ItemID:            item.ID,
			UserID:            req.UserID,
			ActionType:        model.ActionBorrow,
			EvidenceImagePath: evidencePath,
			Timestamp:         now,
		}, func(tx *sql.Tx) error {
			return store.ApplyBorrow(ctx, tx, item.ID, req.UserID, due)
		})
		if err != nil {
			return nil, err
		}
		if reason != "" {
			res.skip(tag, model.ActionBorrow, reason)
			continue
		}
		res.Transactions = append(res.Transactions, Applied{
			TransactionID: id,
			ItemID:        item.ID,
			RfidTag:       tag,
			ItemName:      item.ItemTypeName,
			Action:        model.ActionBorrow,
			DueAt:         &due,
		})
		res.Summary.Borrowed++
	}

	for _, tag := range returned {
		item, err := store.GetItemByRfid(ctx, r.DB, tag)
		if err != nil {
			return nil, err
		}
		if item == nil {
			res.skip(tag, model.ActionReturn, SkipUnknownTag)
			continue
		}

		id, reason, err := r.apply(ctx, model.Transaction{
			SessionID:         req.SessionID,
			ItemID:            item.ID,
			UserID:            req.UserID,
			ActionType:        model.ActionReturn,
			EvidenceImagePath: evidencePath,
			Timestamp:         now,
		}, func(tx *sql.Tx) error {
			return store.ApplyReturn(ctx, tx, item.ID)
		})
		if err != nil {
			return nil, err
		}
		if reason != "" {
			res.skip(tag, model.ActionReturn, reason)
			continue
		}
		res.Transactions = append(res.Transactions, Applied{
			TransactionID: id,
			ItemID:        item.ID,
			RfidTag:       tag,
			ItemName:      item.ItemTypeName,
			Action:        model.ActionReturn,
		})
		res.Summary.Returned++
	}

	obs.ReconcileTransactions.WithLabelValues(model.ActionBorrow).Add(float64(res.Summary.Borrowed))
	obs.ReconcileTransactions.WithLabelValues(model.ActionReturn).Add(float64(res.Summary.Returned))

	r.Logger.Info("session reconciled",
		"session_id", req.SessionID,
		"cabinet_id", req.CabinetID,
		"user_id", req.UserID,
		"borrowed", res.Summary.Borrowed,
		"returned", res.Summary.Returned,
		"skipped", len(res.Skipped),
	)
	return res, nil
}

// apply writes the log row and the custody change for one item in a single
// transaction. A non-empty reason means nothing was written.
func (r *Reconciler) apply(ctx context.Context, t model.Transaction, mutate func(*sql.Tx) error) (int64, string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, inserted, err := store.RecordTransaction(ctx, tx, t)
	if err != nil {
		return 0, "", err
	}
	if !inserted {
		return 0, SkipAlreadyRecorded, nil
	}

	if err := mutate(tx); err != nil {
		if errors.Is(err, model.ErrItemAlreadyBorrowed) {
			return 0, SkipAlreadyBorrowed, nil
		}
		return 0, "", err
	}

	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("committing transaction: %w", err)
	}
	return id, "", nil
}

// saveEvidence stores the photo and reports whether it was kept. A bad photo
// never fails the sync.
func (r *Reconciler) saveEvidence(ctx context.Context, sessionID, encoded string) bool {
	photo, err := imaging.FromBase64(encoded)
	if err != nil {
		r.Logger.Warn("discarding evidence image", "session_id", sessionID, "error", err)
		return false
	}
	if err := store.SaveEvidence(ctx, r.DB, sessionID, photo.Data, photo.MIME); err != nil {
		r.Logger.Warn("saving evidence image failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

func (res *Result) skip(tag, action, reason string) {
	res.Skipped = append(res.Skipped, Skipped{RfidTag: tag, Action: action, Reason: reason})
	obs.ReconcileSkipped.WithLabelValues(reason).Inc()
}
