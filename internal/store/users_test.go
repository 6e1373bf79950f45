package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/save4223/save4223server/internal/db"
	"github.com/save4223/save4223server/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "", "test@example.com", "Test User", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected generated id")
	}
	if user.DisplayName() != "Test User" {
		t.Errorf("expected display name 'Test User', got %q", user.DisplayName())
	}

	got, err := GetUserByEmail(ctx, database, "test@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Errorf("expected user %s, got %+v", user.ID, got)
	}

	missing, err := GetUser(ctx, database, "nope")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestCreateUserRejectsInvalidRole(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := CreateUser(context.Background(), database, "", "x@example.com", "", "ROOT")
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteUserRefusesWhileHoldingItems(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)

	if err := ApplyBorrow(ctx, database, f.item.ID, f.user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ApplyBorrow: %v", err)
	}

	held, err := DeleteUser(ctx, database, f.user.ID, false)
	if !errors.Is(err, model.ErrUserHasBorrowedItems) {
		t.Fatalf("expected ErrUserHasBorrowedItems, got %v", err)
	}
	if len(held) != 1 || held[0].RfidTag != "RFID-OSC-001" {
		t.Errorf("expected held item to be reported, got %+v", held)
	}

	u, _ := GetUser(ctx, database, f.user.ID)
	if u.DeletedAt != nil {
		t.Error("user must not be deleted when refused")
	}
}

func TestDeleteUserForceReleasesItems(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)

	if err := ApplyBorrow(ctx, database, f.item.ID, f.user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ApplyBorrow: %v", err)
	}
	card, err := CreateCard(ctx, database, f.user.ID, "CARD-1")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	perm, err := CreatePermission(ctx, database, model.AccessPermission{
		UserID: f.user.ID, LocationID: f.cabinet.ID, Status: model.PermissionApproved,
	})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}

	held, err := DeleteUser(ctx, database, f.user.ID, true)
	if err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if len(held) != 1 {
		t.Errorf("expected 1 released item, got %d", len(held))
	}

	item, _ := GetItem(ctx, database, f.item.ID)
	if item.Status != model.ItemStatusMaintenance {
		t.Errorf("expected MAINTENANCE, got %s", item.Status)
	}
	if err := item.CheckCustody(); err != nil {
		t.Error(err)
	}

	c, _ := GetCard(ctx, database, card.ID)
	if c.IsActive {
		t.Error("expected card to be deactivated")
	}
	p, _ := GetPermission(ctx, database, perm.ID)
	if p.Status != model.PermissionRevoked {
		t.Errorf("expected REVOKED permission, got %s", p.Status)
	}
	u, _ := GetUser(ctx, database, f.user.ID)
	if u.DeletedAt == nil {
		t.Error("expected user to be soft-deleted")
	}

	// Deleting again reports not found.
	if _, err := DeleteUser(ctx, database, f.user.ID, true); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateUserFullName(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)

	u, err := UpdateUserFullName(ctx, database, f.other.ID, "Bob Builder")
	if err != nil {
		t.Fatalf("UpdateUserFullName: %v", err)
	}
	if u.DisplayName() != "Bob Builder" {
		t.Errorf("expected new display name, got %q", u.DisplayName())
	}

	missing, err := UpdateUserFullName(ctx, database, "nope", "x")
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing user, got %+v (%v)", missing, err)
	}
}
