package access

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/save4223/save4223server/internal/store"
	"golang.org/x/crypto/blake2b"
)

// AllUnrestricted is the wildcard entry of CabinetPermissions.
const AllUnrestricted = "*"

// CabinetPermissions lists the cabinets a card may open: every unrestricted
// cabinet plus the explicitly permitted IDs. It encodes as ["*", 2, 5].
type CabinetPermissions struct {
	Explicit []int64
}

// MarshalJSON implements json.Marshaler.
func (c CabinetPermissions) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(c.Explicit)+1)
	out = append(out, AllUnrestricted)
	for _, id := range c.Explicit {
		out = append(out, id)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CabinetPermissions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Explicit = nil
	for _, r := range raw {
		var id int64
		if err := json.Unmarshal(r, &id); err == nil {
			c.Explicit = append(c.Explicit, id)
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err != nil || s != AllUnrestricted {
			return fmt.Errorf("invalid cabinet permission %s", r)
		}
	}
	return nil
}

// Allows reports whether the permissions open cabinetID given its restriction.
func (c CabinetPermissions) Allows(cabinetID int64, restricted bool) bool {
	return !restricted || slices.Contains(c.Explicit, cabinetID)
}

// SnapshotUser is one active card in the offline snapshot.
type SnapshotUser struct {
	CardUID            string             `json:"card_uid"`
	UserID             string             `json:"user_id"`
	UserName           string             `json:"user_name"`
	Role               string             `json:"role"`
	CabinetPermissions CabinetPermissions `json:"cabinet_permissions"`
	LastUsedAt         *time.Time         `json:"last_used_at,omitempty"`
}

// Snapshot is the denormalised directory edge devices cache for offline
// authorization.
type Snapshot struct {
	LastUpdated        time.Time      `json:"last_updated"`
	CabinetID          *int64         `json:"cabinet_id,omitempty"`
	Users              []SnapshotUser `json:"users"`
	RestrictedCabinets []int64        `json:"restricted_cabinets"`
	TotalUsers         int            `json:"total_users"`
	Signature          string         `json:"signature,omitempty"`
}

// BuildSyncSnapshot assembles the offline snapshot. With a cabinet filter
// only cards that can open that cabinet are included. The result is signed
// with the engine's edge secret.
func (e *Engine) BuildSyncSnapshot(ctx context.Context, cabinetFilter *int64) (*Snapshot, error) {
	now := e.now()

	holders, err := store.ListActiveCardHolders(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	restricted, err := store.ListRestrictedLocationIDs(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	perms, err := store.ListApprovedPermissions(ctx, e.DB)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]int64)
	for _, p := range perms {
		if !p.Authorizes(now) {
			continue
		}
		if !slices.Contains(byUser[p.UserID], p.LocationID) {
			byUser[p.UserID] = append(byUser[p.UserID], p.LocationID)
		}
	}

	snap := &Snapshot{
		LastUpdated:        now,
		CabinetID:          cabinetFilter,
		Users:              []SnapshotUser{},
		RestrictedCabinets: restricted,
	}
	for _, h := range holders {
		cp := CabinetPermissions{Explicit: byUser[h.UserID]}
		if cabinetFilter != nil && !cp.Allows(*cabinetFilter, slices.Contains(restricted, *cabinetFilter)) {
			continue
		}
		snap.Users = append(snap.Users, SnapshotUser{
			CardUID:            h.CardUID,
			UserID:             h.UserID,
			UserName:           h.DisplayName(),
			Role:               h.Role,
			CabinetPermissions: cp,
			LastUsedAt:         h.LastUsedAt,
		})
	}
	snap.TotalUsers = len(snap.Users)

	if err := snap.Sign(e.EdgeSecret); err != nil {
		return nil, err
	}
	return snap, nil
}

// CanOpen reproduces the server's grant decision from the snapshot alone.
// Cabinets the snapshot does not list as restricted are treated as open.
func (s *Snapshot) CanOpen(cardUID string, cabinetID int64) bool {
	restricted := slices.Contains(s.RestrictedCabinets, cabinetID)
	for _, u := range s.Users {
		if u.CardUID == cardUID {
			return u.CabinetPermissions.Allows(cabinetID, restricted)
		}
	}
	return false
}

// Sign sets Signature to the keyed BLAKE2b-256 MAC of the snapshot's JSON
// encoding without the signature field.
func (s *Snapshot) Sign(secret string) error {
	mac, err := s.mac(secret)
	if err != nil {
		return err
	}
	s.Signature = hex.EncodeToString(mac)
	return nil
}

// Verify reports whether Signature matches the snapshot contents under secret.
func (s *Snapshot) Verify(secret string) bool {
	got, err := hex.DecodeString(s.Signature)
	if err != nil {
		return false
	}
	want, err := s.mac(secret)
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

func (s *Snapshot) mac(secret string) ([]byte, error) {
	unsigned := *s
	unsigned.Signature = ""
	data, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	h, err := blake2b.New256(macKey(secret))
	if err != nil {
		return nil, fmt.Errorf("creating snapshot mac: %w", err)
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// macKey returns the secret as a BLAKE2b key. Keys are limited to 64 bytes,
// so longer secrets are hashed down first.
func macKey(secret string) []byte {
	if len(secret) <= blake2b.Size {
		return []byte(secret)
	}
	sum := blake2b.Sum512([]byte(secret))
	return sum[:]
}
