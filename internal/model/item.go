package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Item is an individually tracked physical tool identified by its RFID tag.
type Item struct {
	ID              string     `json:"id"`
	ItemTypeID      int64      `json:"item_type_id"`
	RfidTag         string     `json:"rfid_tag"`
	Status          string     `json:"status"`
	HomeLocationID  *int64     `json:"home_location_id,omitempty"`
	CurrentHolderID *string    `json:"current_holder_id,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	ItemTypeName     string `json:"item_type_name,omitempty"`
	HomeLocationName string `json:"home_location_name,omitempty"`
}

// Item statuses.
const (
	ItemStatusAvailable   = "AVAILABLE"
	ItemStatusBorrowed    = "BORROWED"
	ItemStatusMissing     = "MISSING"
	ItemStatusMaintenance = "MAINTENANCE"
)

// ValidItemStatus reports whether status is a known item status.
func ValidItemStatus(status string) bool {
	switch status {
	case ItemStatusAvailable, ItemStatusBorrowed, ItemStatusMissing, ItemStatusMaintenance:
		return true
	}
	return false
}

// CheckCustody verifies the custody invariant: an item is BORROWED exactly
// when it has both a holder and a due date.
func (i *Item) CheckCustody() error {
	held := i.CurrentHolderID != nil && i.DueAt != nil
	if i.Status == ItemStatusBorrowed && !held {
		return fmt.Errorf("item %s is borrowed without holder and due date", i.ID)
	}
	if i.Status != ItemStatusBorrowed && (i.CurrentHolderID != nil || i.DueAt != nil) {
		return fmt.Errorf("item %s is %s but still has custody fields set", i.ID, i.Status)
	}
	return nil
}

// Overdue reports whether a borrowed item is past its due date at now.
func (i *Item) Overdue(now time.Time) bool {
	return i.Status == ItemStatusBorrowed && i.DueAt != nil && now.After(*i.DueAt)
}

// ItemType is a catalog entry shared by many items.
type ItemType struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category,omitempty"`
	Description       string    `json:"description,omitempty"`
	MaxBorrowDuration string    `json:"max_borrow_duration"`
	CreatedAt         time.Time `json:"created_at"`
}

// Item categories.
const (
	CategoryTool       = "TOOL"
	CategoryConsumable = "CONSUMABLE"
	CategoryDevice     = "DEVICE"
)

// DefaultBorrowDuration applies when an item type has no usable duration.
const DefaultBorrowDuration = 7 * 24 * time.Hour

// DefaultBorrowDurationText is DefaultBorrowDuration in the stored text form.
const DefaultBorrowDurationText = "7 days"

// ParseBorrowDuration parses an interval such as "14 days", "2 weeks",
// "36 hours" or a Go duration string such as "90m".
func ParseBorrowDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive: %q", s)
		}
		return d, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration amount: %q", s)
	}

	var unit time.Duration
	switch strings.TrimSuffix(fields[1], "s") {
	case "minute", "min":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration unit: %q", s)
	}
	return time.Duration(n) * unit, nil
}

// BorrowDuration returns the loan period for items of this type,
// falling back to DefaultBorrowDuration when unset or unparsable.
func (t *ItemType) BorrowDuration() time.Duration {
	if t == nil {
		return DefaultBorrowDuration
	}
	d, err := ParseBorrowDuration(t.MaxBorrowDuration)
	if err != nil {
		return DefaultBorrowDuration
	}
	return d
}
