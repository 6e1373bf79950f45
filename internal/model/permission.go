package model

import "time"

// AccessPermission grants one user access to one restricted location.
type AccessPermission struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	LocationID    int64      `json:"location_id"`
	Status        string     `json:"status"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	RequestReason string     `json:"request_reason,omitempty"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Permission statuses.
const (
	PermissionPending  = "PENDING"
	PermissionApproved = "APPROVED"
	PermissionRejected = "REJECTED"
	PermissionRevoked  = "REVOKED"
)

// ValidPermissionStatus reports whether status is a known permission status.
func ValidPermissionStatus(status string) bool {
	switch status {
	case PermissionPending, PermissionApproved, PermissionRejected, PermissionRevoked:
		return true
	}
	return false
}

// Authorizes reports whether the permission opens its location at now.
// Only APPROVED permissions whose validity has not ended qualify.
// ValidFrom is informational and does not gate access.
func (p *AccessPermission) Authorizes(now time.Time) bool {
	if p.Status != PermissionApproved {
		return false
	}
	return p.ValidUntil == nil || p.ValidUntil.After(now)
}
