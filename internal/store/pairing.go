package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/save4223/save4223server/internal/model"
	"golang.org/x/crypto/blake2b"
)

// HashPairingToken returns the stored digest of a pairing token.
func HashPairingToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreatePairingCode issues a fresh pairing token for a user, replacing any
// code the user had before. Only the token digest is stored; the plain token
// is returned once.
func CreatePairingCode(ctx context.Context, q Querier, userID string, at time.Time) (string, *model.PairingCode, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generating pairing token: %w", err)
	}
	token := hex.EncodeToString(buf)

	code := &model.PairingCode{
		UserID:    userID,
		TokenHash: HashPairingToken(token),
		ExpiresAt: at.UTC().Add(model.PairingCodeLifetime),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO pairing_codes (user_id, token_hash, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET token_hash = excluded.token_hash, expires_at = excluded.expires_at`,
		code.UserID, code.TokenHash, code.ExpiresAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("storing pairing code: %w", err)
	}
	return token, code, nil
}

// GetPairingCode looks up a code by its plain token.
func GetPairingCode(ctx context.Context, q Querier, token string) (*model.PairingCode, error) {
	code := &model.PairingCode{}
	err := q.QueryRowContext(ctx,
		`SELECT user_id, token_hash, expires_at FROM pairing_codes WHERE token_hash = ?`,
		HashPairingToken(token),
	).Scan(&code.UserID, &code.TokenHash, &code.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting pairing code: %w", err)
	}
	return code, nil
}

// DeletePairingCode removes the user's pairing code, if any.
func DeletePairingCode(ctx context.Context, q Querier, userID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM pairing_codes WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting pairing code: %w", err)
	}
	return nil
}

// PairResult describes the outcome of PairCard.
type PairResult struct {
	Card        *model.Card
	Reactivated bool
}

// PairCard links cardUID to the user who issued token. A card the user
// already owns is reactivated; a card owned by someone else fails with
// model.ErrCardClaimed. The code is consumed only when pairing succeeds.
func PairCard(ctx context.Context, db *sql.DB, token, cardUID string, at time.Time) (*PairResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	code, err := GetPairingCode(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if code == nil || code.Expired(at) {
		return nil, model.ErrPairingCodeInvalid
	}

	existing, err := GetCardByUID(ctx, tx, cardUID)
	if err != nil {
		return nil, err
	}

	res := &PairResult{}
	switch {
	case existing != nil && existing.UserID != code.UserID:
		return nil, model.ErrCardClaimed
	case existing != nil:
		if err := ReactivateCard(ctx, tx, existing.ID); err != nil {
			return nil, err
		}
		existing.IsActive = true
		res.Card = existing
		res.Reactivated = true
	default:
		card, err := CreateCard(ctx, tx, code.UserID, cardUID)
		if err != nil {
			return nil, err
		}
		res.Card = card
	}

	if err := DeletePairingCode(ctx, tx, code.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return res, nil
}
