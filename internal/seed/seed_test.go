package seed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/save4223/save4223server/internal/db"
	"github.com/save4223/save4223server/internal/store"
)

func TestSeed(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	res, err := Seed(ctx, database, time.Now())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(res.RfidTags) != 3 {
		t.Errorf("expected 3 items, got %d", len(res.RfidTags))
	}

	card, err := store.GetCardByUID(ctx, database, TestCardUID)
	if err != nil || card == nil || card.UserID != TestUserID {
		t.Fatalf("expected demo card for test user, got %+v (%v)", card, err)
	}

	restricted, _ := store.GetLocation(ctx, database, res.RestrictedCabinetID)
	if !restricted.IsRestricted {
		t.Error("expected Cabinet B to be restricted")
	}

	item, _ := store.GetItemByRfid(ctx, database, "RFID-OSC-001")
	if item == nil || item.ItemTypeName != "Oscilloscope" {
		t.Errorf("unexpected seeded item: %+v", item)
	}

	if _, err := Seed(ctx, database, time.Now()); !errors.Is(err, ErrAlreadySeeded) {
		t.Errorf("expected ErrAlreadySeeded on second run, got %v", err)
	}
}
