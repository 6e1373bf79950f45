package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/save4223/save4223server/internal/model"
)

// CreateItemType creates an item type. An empty maxBorrow stores the default.
func CreateItemType(ctx context.Context, q Querier, name, category, description, maxBorrow string) (*model.ItemType, error) {
	if maxBorrow == "" {
		maxBorrow = model.DefaultBorrowDurationText
	}
	if _, err := model.ParseBorrowDuration(maxBorrow); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO item_types (name, category, description, max_borrow_duration, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		name, nullString(category), nullString(description), maxBorrow, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating item type: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item type id: %w", err)
	}

	return GetItemType(ctx, q, id)
}

// GetItemType returns an item type by ID.
func GetItemType(ctx context.Context, q Querier, id int64) (*model.ItemType, error) {
	t := &model.ItemType{}
	var category, description sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, name, category, description, max_borrow_duration, created_at
		 FROM item_types WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &category, &description, &t.MaxBorrowDuration, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item type: %w", err)
	}
	t.Category = category.String
	t.Description = description.String
	return t, nil
}

const itemSelect = `SELECT i.id, i.item_type_id, i.rfid_tag, i.status, i.home_location_id,
	i.current_holder_id, i.due_at, i.updated_at, t.name, COALESCE(l.name, '')
	FROM items i
	JOIN item_types t ON t.id = i.item_type_id
	LEFT JOIN locations l ON l.id = i.home_location_id`

func scanItem(row interface{ Scan(...any) error }) (*model.Item, error) {
	item := &model.Item{}
	if err := row.Scan(&item.ID, &item.ItemTypeID, &item.RfidTag, &item.Status, &item.HomeLocationID,
		&item.CurrentHolderID, &item.DueAt, &item.UpdatedAt, &item.ItemTypeName, &item.HomeLocationName); err != nil {
		return nil, err
	}
	return item, nil
}

func listItems(ctx context.Context, q Querier, where string, args ...any) ([]model.Item, error) {
	rows, err := q.QueryContext(ctx, itemSelect+` WHERE `+where+` ORDER BY i.rfid_tag`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CreateItem creates an AVAILABLE item with a fresh UUID.
func CreateItem(ctx context.Context, q Querier, itemTypeID int64, rfidTag string, homeLocationID *int64) (*model.Item, error) {
	id := uuid.NewString()
	_, err := q.ExecContext(ctx,
		`INSERT INTO items (id, item_type_id, rfid_tag, status, home_location_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, itemTypeID, rfidTag, model.ItemStatusAvailable, homeLocationID, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return GetItem(ctx, q, id)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, q Querier, id string) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, itemSelect+` WHERE i.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// GetItemByRfid returns the item carrying an RFID tag.
func GetItemByRfid(ctx context.Context, q Querier, rfidTag string) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, itemSelect+` WHERE i.rfid_tag = ?`, rfidTag))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item by rfid: %w", err)
	}
	return item, nil
}

// ListHeldItems returns the items currently borrowed by a user.
func ListHeldItems(ctx context.Context, q Querier, userID string) ([]model.Item, error) {
	return listItems(ctx, q, `i.status = ? AND i.current_holder_id = ?`, model.ItemStatusBorrowed, userID)
}

// ListOverdueItems returns borrowed items whose due date is before at.
func ListOverdueItems(ctx context.Context, q Querier, at time.Time) ([]model.Item, error) {
	borrowed, err := listItems(ctx, q, `i.status = ?`, model.ItemStatusBorrowed)
	if err != nil {
		return nil, err
	}
	var overdue []model.Item
	for _, item := range borrowed {
		if item.Overdue(at) {
			overdue = append(overdue, item)
		}
	}
	return overdue, nil
}

// ApplyBorrow hands an item to a user until dueAt. It only succeeds if the
// item is not already borrowed; otherwise it returns
// model.ErrItemAlreadyBorrowed and leaves the row untouched.
func ApplyBorrow(ctx context.Context, q Querier, itemID, userID string, dueAt time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE items SET status = ?, current_holder_id = ?, due_at = ?, updated_at = ?
		 WHERE id = ? AND status != ?`,
		model.ItemStatusBorrowed, userID, dueAt.UTC(), now(), itemID, model.ItemStatusBorrowed,
	)
	if err != nil {
		return fmt.Errorf("applying borrow: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking borrow: %w", err)
	}
	if n == 1 {
		return nil
	}

	item, err := GetItem(ctx, q, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return model.ErrItemNotFound
	}
	return model.ErrItemAlreadyBorrowed
}

// ApplyReturn marks an item AVAILABLE and clears its custody fields,
// whoever held it.
func ApplyReturn(ctx context.Context, q Querier, itemID string) error {
	return setReleased(ctx, q, itemID, model.ItemStatusAvailable, "applying return")
}

// ForceRelease moves an item to MAINTENANCE and clears its custody fields.
// Used when the holder can no longer return it.
func ForceRelease(ctx context.Context, q Querier, itemID string) error {
	return setReleased(ctx, q, itemID, model.ItemStatusMaintenance, "force releasing item")
}

// SetItemStatus is the manual status override. Only statuses without custody
// are accepted; the holder and due date are always cleared.
func SetItemStatus(ctx context.Context, q Querier, itemID, status string) (*model.Item, error) {
	switch status {
	case model.ItemStatusAvailable, model.ItemStatusMissing, model.ItemStatusMaintenance:
	default:
		return nil, fmt.Errorf("%w: status %q cannot be set manually", model.ErrValidation, status)
	}
	if err := setReleased(ctx, q, itemID, status, "setting item status"); err != nil {
		return nil, err
	}
	return GetItem(ctx, q, itemID)
}

func setReleased(ctx context.Context, q Querier, itemID, status, op string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE items SET status = ?, current_holder_id = NULL, due_at = NULL, updated_at = ?
		 WHERE id = ?`,
		status, now(), itemID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return model.ErrItemNotFound
	}
	return nil
}
