package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/obs"
	"github.com/save4223/save4223server/internal/store"
)

// Decision is the result of an Authorize call. On a permission denial the
// decision is returned alongside the error with UserID set, so the device
// can log who was refused.
type Decision struct {
	Authorized  bool   `json:"authorized"`
	SessionID   string `json:"session_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	UserName    string `json:"user_name,omitempty"`
	CabinetID   int64  `json:"cabinet_id,omitempty"`
	CabinetName string `json:"cabinet_name,omitempty"`
}

// Authorize decides whether cardUID may open cabinetID. On a grant a new
// session ID is allocated and an ACTIVE session row is recorded.
//
// Errors: model.ErrCardNotRegistered, model.ErrCardInactive,
// model.ErrCabinetNotFound, model.ErrNoValidPermission, or a store failure.
func (e *Engine) Authorize(ctx context.Context, cardUID string, cabinetID int64) (*Decision, error) {
	timeout := e.AuthorizeTimeout
	if timeout <= 0 {
		timeout = DefaultAuthorizeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d, err := e.authorize(ctx, cardUID, cabinetID)
	obs.AuthorizeTotal.WithLabelValues(authorizeResult(err)).Inc()
	return d, err
}

func (e *Engine) authorize(ctx context.Context, cardUID string, cabinetID int64) (*Decision, error) {
	now := e.now()

	card, err := store.GetCardByUID(ctx, e.DB, cardUID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, model.ErrCardNotRegistered
	}
	if !card.IsActive {
		return nil, model.ErrCardInactive
	}

	if err := store.TouchCard(ctx, e.DB, card.ID, now); err != nil {
		e.logger().Warn("recording card use failed", "card_id", card.ID, "error", err)
	}

	user, err := store.GetUser(ctx, e.DB, card.UserID)
	if err != nil {
		return nil, err
	}
	if user != nil && user.DeletedAt != nil {
		return nil, model.ErrCardInactive
	}

	cabinet, err := store.GetLocation(ctx, e.DB, cabinetID)
	if err != nil {
		return nil, err
	}
	if cabinet == nil {
		return nil, model.ErrCabinetNotFound
	}

	if cabinet.IsRestricted {
		allowed, err := e.hasValidPermission(ctx, card.UserID, cabinetID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &Decision{UserID: card.UserID, CabinetID: cabinetID}, model.ErrNoValidPermission
		}
	}

	d := &Decision{
		Authorized:  true,
		SessionID:   uuid.NewString(),
		UserID:      card.UserID,
		UserName:    user.DisplayName(),
		CabinetID:   cabinet.ID,
		CabinetName: cabinet.Name,
	}

	// The session is also created by the first sync if this write is lost.
	if err := store.OpenSession(ctx, e.DB, d.SessionID, cabinet.ID, card.UserID, now); err != nil {
		e.logger().Warn("recording session start failed", "session_id", d.SessionID, "error", err)
	}

	return d, nil
}

func (e *Engine) hasValidPermission(ctx context.Context, userID string, cabinetID int64) (bool, error) {
	perms, err := store.ListUserLocationPermissions(ctx, e.DB, userID, cabinetID)
	if err != nil {
		return false, fmt.Errorf("checking permission: %w", err)
	}
	now := e.now()
	for _, p := range perms {
		if p.Authorizes(now) {
			return true, nil
		}
	}
	return false, nil
}

func authorizeResult(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, model.ErrCardNotRegistered):
		return "card_not_registered"
	case errors.Is(err, model.ErrCardInactive):
		return "card_inactive"
	case errors.Is(err, model.ErrCabinetNotFound):
		return "cabinet_not_found"
	case errors.Is(err, model.ErrNoValidPermission):
		return "no_permission"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
