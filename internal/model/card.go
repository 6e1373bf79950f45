package model

import "time"

// Card is an NFC card bound to a user. Cards are deactivated, never deleted.
type Card struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	CardUID    string     `json:"card_uid"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PairingCode is a short-lived single-use code linking a new card to a user.
// Only a digest of the token is stored.
type PairingCode struct {
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PairingCodeLifetime is how long an issued pairing code stays valid.
const PairingCodeLifetime = 5 * time.Minute

// Expired reports whether the code can no longer be used at now.
func (p *PairingCode) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
