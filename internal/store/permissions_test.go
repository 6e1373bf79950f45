package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/save4223/save4223server/internal/db"
	"github.com/save4223/save4223server/internal/model"
)

func TestPermissionLifecycle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)

	p, err := CreatePermission(ctx, database, model.AccessPermission{
		UserID:        f.user.ID,
		LocationID:    f.cabinet.ID,
		RequestReason: "lab course",
	})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if p.Status != model.PermissionPending {
		t.Errorf("expected PENDING, got %s", p.Status)
	}

	until := time.Now().UTC().Add(30 * 24 * time.Hour)
	p, err = UpdatePermission(ctx, database, p.ID, model.PermissionApproved, &until, f.other.ID)
	if err != nil {
		t.Fatalf("UpdatePermission: %v", err)
	}
	if p.ApprovedBy != f.other.ID || p.ValidUntil == nil {
		t.Errorf("unexpected approved permission: %+v", p)
	}
	if !p.Authorizes(time.Now()) {
		t.Error("expected approved permission to authorize")
	}

	perms, err := ListUserLocationPermissions(ctx, database, f.user.ID, f.cabinet.ID)
	if err != nil {
		t.Fatalf("ListUserLocationPermissions: %v", err)
	}
	if len(perms) != 1 {
		t.Errorf("expected 1 permission, got %d", len(perms))
	}

	approved, err := ListApprovedPermissions(ctx, database)
	if err != nil {
		t.Fatalf("ListApprovedPermissions: %v", err)
	}
	if len(approved) != 1 {
		t.Errorf("expected 1 approved permission, got %d", len(approved))
	}

	if _, err := UpdatePermission(ctx, database, 999, model.PermissionRevoked, nil, ""); !errors.Is(err, model.ErrPermissionNotFound) {
		t.Errorf("expected ErrPermissionNotFound, got %v", err)
	}
	if _, err := UpdatePermission(ctx, database, p.ID, "MAYBE", nil, ""); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
