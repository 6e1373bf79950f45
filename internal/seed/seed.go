// Package seed loads demo data: one user with a card, an open and a
// restricted cabinet, and a few tagged items.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/store"
)

// Demo identifiers.
const (
	TestUserID    = "550e8400-e29b-41d4-a716-446655440000"
	TestUserEmail = "test@example.com"
	TestCardUID   = "TEST123"
)

// ErrAlreadySeeded is returned when the demo user already exists.
var ErrAlreadySeeded = errors.New("database already seeded")

// Result holds the IDs of the created records.
type Result struct {
	UserID              string
	OpenCabinetID       int64
	RestrictedCabinetID int64
	DrawerID            int64
	RfidTags            []string
}

// Seed inserts the demo data in one transaction.
func Seed(ctx context.Context, db *sql.DB, now time.Time) (*Result, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := store.GetUser(ctx, tx, TestUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadySeeded
	}

	user, err := store.CreateUser(ctx, tx, TestUserID, TestUserEmail, "Test User", model.RoleUser)
	if err != nil {
		return nil, err
	}

	open, err := store.CreateLocation(ctx, tx, "Cabinet A - Open Access", model.LocationTypeCabinet, nil, false)
	if err != nil {
		return nil, err
	}
	restricted, err := store.CreateLocation(ctx, tx, "Cabinet B - Restricted", model.LocationTypeCabinet, nil, true)
	if err != nil {
		return nil, err
	}
	drawer, err := store.CreateLocation(ctx, tx, "Drawer 1", model.LocationTypeDrawer, &open.ID, false)
	if err != nil {
		return nil, err
	}

	if _, err := store.CreateCard(ctx, tx, user.ID, TestCardUID); err != nil {
		return nil, err
	}

	from := now.UTC()
	until := from.Add(30 * 24 * time.Hour)
	if _, err := store.CreatePermission(ctx, tx, model.AccessPermission{
		UserID:        user.ID,
		LocationID:    restricted.ID,
		Status:        model.PermissionApproved,
		ValidFrom:     &from,
		ValidUntil:    &until,
		RequestReason: "Test access",
	}); err != nil {
		return nil, err
	}

	scope, err := store.CreateItemType(ctx, tx, "Oscilloscope", model.CategoryDevice, "Digital oscilloscope", "14 days")
	if err != nil {
		return nil, err
	}
	screwdrivers, err := store.CreateItemType(ctx, tx, "Screwdriver Set", model.CategoryTool, "Precision screwdrivers", "7 days")
	if err != nil {
		return nil, err
	}

	res := &Result{
		UserID:              user.ID,
		OpenCabinetID:       open.ID,
		RestrictedCabinetID: restricted.ID,
		DrawerID:            drawer.ID,
	}
	for _, it := range []struct {
		typeID int64
		tag    string
	}{
		{scope.ID, "RFID-OSC-001"},
		{scope.ID, "RFID-OSC-002"},
		{screwdrivers.ID, "RFID-TOOL-001"},
	} {
		if _, err := store.CreateItem(ctx, tx, it.typeID, it.tag, &open.ID); err != nil {
			return nil, err
		}
		res.RfidTags = append(res.RfidTags, it.tag)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return res, nil
}
