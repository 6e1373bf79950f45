package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/save4223/save4223server/internal/model"
)

type fixture struct {
	user     *model.User
	other    *model.User
	cabinet  *model.Location
	itemType *model.ItemType
	item     *model.Item
}

func newFixture(t *testing.T, database *sql.DB) fixture {
	t.Helper()
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "", "alice@example.com", "Alice", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	other, err := CreateUser(ctx, database, "", "bob@example.com", "", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	cabinet, err := CreateLocation(ctx, database, "Cabinet A", model.LocationTypeCabinet, nil, false)
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	itemType, err := CreateItemType(ctx, database, "Oscilloscope", model.CategoryDevice, "", "14 days")
	if err != nil {
		t.Fatalf("CreateItemType: %v", err)
	}
	item, err := CreateItem(ctx, database, itemType.ID, "RFID-OSC-001", &cabinet.ID)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	return fixture{user: user, other: other, cabinet: cabinet, itemType: itemType, item: item}
}
