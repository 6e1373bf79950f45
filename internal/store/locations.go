package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/save4223/save4223server/internal/model"
)

const locationColumns = `id, name, type, parent_id, is_restricted, created_at`

func scanLocation(row interface{ Scan(...any) error }) (*model.Location, error) {
	l := &model.Location{}
	if err := row.Scan(&l.ID, &l.Name, &l.Type, &l.ParentID, &l.IsRestricted, &l.CreatedAt); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateLocation creates a cabinet, drawer or bin.
func CreateLocation(ctx context.Context, q Querier, name, locType string, parentID *int64, restricted bool) (*model.Location, error) {
	switch locType {
	case model.LocationTypeCabinet, model.LocationTypeDrawer, model.LocationTypeBin:
	default:
		return nil, fmt.Errorf("%w: invalid location type %q", model.ErrValidation, locType)
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO locations (name, type, parent_id, is_restricted, created_at) VALUES (?, ?, ?, ?, ?)`,
		name, locType, parentID, restricted, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating location: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting location id: %w", err)
	}

	return GetLocation(ctx, q, id)
}

// GetLocation returns a location by ID.
func GetLocation(ctx context.Context, q Querier, id int64) (*model.Location, error) {
	l, err := scanLocation(q.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return l, nil
}

// ListLocations returns all locations.
func ListLocations(ctx context.Context, q Querier) ([]model.Location, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}

// ListRestrictedLocationIDs returns the IDs of all restricted locations.
func ListRestrictedLocationIDs(ctx context.Context, q Querier) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM locations WHERE is_restricted = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing restricted locations: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning restricted location: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
