package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/save4223/save4223server/internal/model"
)

const cardColumns = `id, user_id, card_uid, is_active, last_used_at, created_at`

func scanCard(row interface{ Scan(...any) error }) (*model.Card, error) {
	c := &model.Card{}
	if err := row.Scan(&c.ID, &c.UserID, &c.CardUID, &c.IsActive, &c.LastUsedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCard registers a new active card for a user.
func CreateCard(ctx context.Context, q Querier, userID, cardUID string) (*model.Card, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO user_cards (user_id, card_uid, is_active, created_at) VALUES (?, ?, 1, ?)`,
		userID, cardUID, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating card: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting card id: %w", err)
	}

	return GetCard(ctx, q, id)
}

// GetCard returns a card by ID.
func GetCard(ctx context.Context, q Querier, id int64) (*model.Card, error) {
	c, err := scanCard(q.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM user_cards WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}
	return c, nil
}

// GetCardByUID returns a card by its NFC UID, active or not.
func GetCardByUID(ctx context.Context, q Querier, cardUID string) (*model.Card, error) {
	c, err := scanCard(q.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM user_cards WHERE card_uid = ?`, cardUID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting card by uid: %w", err)
	}
	return c, nil
}

// ListUserCards returns all cards of a user, newest first.
func ListUserCards(ctx context.Context, q Querier, userID string) ([]model.Card, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM user_cards WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// TouchCard records that a card was just presented at a cabinet.
func TouchCard(ctx context.Context, q Querier, id int64, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE user_cards SET last_used_at = ? WHERE id = ?`, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating card last use: %w", err)
	}
	return nil
}

// ReactivateCard marks a card active again.
func ReactivateCard(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE user_cards SET is_active = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("reactivating card: %w", err)
	}
	return nil
}

// DeactivateCard deactivates one of the user's cards. It returns false if the
// user owns no card with that ID.
func DeactivateCard(ctx context.Context, q Querier, userID string, id int64) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE user_cards SET is_active = 0 WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("deactivating card: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking deactivated card: %w", err)
	}
	return n > 0, nil
}

// DeactivateUserCards deactivates every card of a user.
func DeactivateUserCards(ctx context.Context, q Querier, userID string) error {
	_, err := q.ExecContext(ctx, `UPDATE user_cards SET is_active = 0 WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deactivating user cards: %w", err)
	}
	return nil
}

// CardHolder is an active card joined with its owner's profile.
type CardHolder struct {
	CardUID    string
	UserID     string
	Email      string
	FullName   string
	Role       string
	LastUsedAt *time.Time
}

// DisplayName mirrors model.User.DisplayName for joined rows.
func (h CardHolder) DisplayName() string {
	u := model.User{Email: h.Email, FullName: h.FullName}
	return u.DisplayName()
}

// ListActiveCardHolders returns every active card whose owner is not deleted.
func ListActiveCardHolders(ctx context.Context, q Querier) ([]CardHolder, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT c.card_uid, p.id, p.email, p.full_name, p.role, c.last_used_at
		 FROM user_cards c
		 JOIN profiles p ON p.id = c.user_id
		 WHERE c.is_active = 1 AND p.deleted_at IS NULL
		 ORDER BY c.card_uid`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active cards: %w", err)
	}
	defer rows.Close()

	var holders []CardHolder
	for rows.Next() {
		var h CardHolder
		var fullName sql.NullString
		if err := rows.Scan(&h.CardUID, &h.UserID, &h.Email, &fullName, &h.Role, &h.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning active card: %w", err)
		}
		h.FullName = fullName.String
		holders = append(holders, h)
	}
	return holders, rows.Err()
}
