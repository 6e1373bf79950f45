package model

import "time"

// Location is a physical storage unit. Cabinets are the units edge devices guard.
type Location struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	ParentID     *int64    `json:"parent_id,omitempty"`
	IsRestricted bool      `json:"is_restricted"`
	CreatedAt    time.Time `json:"created_at"`
}

// Location types.
const (
	LocationTypeCabinet = "CABINET"
	LocationTypeDrawer  = "DRAWER"
	LocationTypeBin     = "BIN"
)
