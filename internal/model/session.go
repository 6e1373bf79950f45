package model

import "time"

// Session is one open-to-close interaction between a user and a cabinet.
type Session struct {
	ID                 string     `json:"id"`
	CabinetID          int64      `json:"cabinet_id"`
	UserID             string     `json:"user_id"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	Status             string     `json:"status"`
	SnapshotStartRfids []string   `json:"snapshot_start_rfids"`
	SnapshotEndRfids   []string   `json:"snapshot_end_rfids"`
}

// Session statuses. ACTIVE is the only non-terminal status.
const (
	SessionActive      = "ACTIVE"
	SessionCompleted   = "COMPLETED"
	SessionTimeout     = "TIMEOUT"
	SessionForceClosed = "FORCE_CLOSED"
)

// Terminal reports whether the session has left ACTIVE.
func (s *Session) Terminal() bool {
	return s.Status != SessionActive
}

// Transaction is an append-only inventory event derived from a session.
type Transaction struct {
	ID                int64     `json:"id"`
	SessionID         string    `json:"session_id"`
	ItemID            string    `json:"item_id"`
	UserID            string    `json:"user_id"`
	ActionType        string    `json:"action_type"`
	EvidenceImagePath string    `json:"evidence_image_path,omitempty"`
	Timestamp         time.Time `json:"timestamp"`

	// Joined fields (not always populated).
	RfidTag      string `json:"rfid_tag,omitempty"`
	ItemTypeName string `json:"item_type_name,omitempty"`
	CabinetID    int64  `json:"cabinet_id,omitempty"`
}

// Transaction actions.
const (
	ActionBorrow            = "BORROW"
	ActionReturn            = "RETURN"
	ActionMissingUnexpected = "MISSING_UNEXPECTED"
)

// EvidencePath is the storage reference recorded on transactions of a
// session that carried an evidence photo.
func EvidencePath(sessionID string) string {
	return "sessions/" + sessionID + "/evidence.jpg"
}
