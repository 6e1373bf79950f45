package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/save4223/save4223server/internal/model"
)

const userColumns = `id, email, full_name, role, created_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var fullName sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &fullName, &u.Role, &u.CreatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	return u, nil
}

// CreateUser creates a new profile. An empty id gets a fresh UUID.
func CreateUser(ctx context.Context, q Querier, id, email, fullName, role string) (*model.User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: invalid role %q", model.ErrValidation, role)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, nullString(fullName), role, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return GetUser(ctx, q, id)
}

// GetUser returns a profile by ID, including soft-deleted ones.
func GetUser(ctx context.Context, q Querier, id string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM profiles WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the live profile with the given email.
func GetUserByEmail(ctx context.Context, q Querier, email string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM profiles WHERE email = ? AND deleted_at IS NULL`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted profiles.
func ListUsers(ctx context.Context, q Querier) ([]model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM profiles WHERE deleted_at IS NULL ORDER BY email`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserFullName sets the display name of a live profile. It returns
// nil if no such profile exists.
func UpdateUserFullName(ctx context.Context, q Querier, id, fullName string) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE profiles SET full_name = ? WHERE id = ? AND deleted_at IS NULL`,
		nullString(fullName), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking updated user: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return GetUser(ctx, q, id)
}

// CountAdmins returns the number of live admin profiles.
func CountAdmins(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE role = ? AND deleted_at IS NULL`, model.RoleAdmin,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return n, nil
}

// DeleteUser soft-deletes a profile together with everything that lets it
// act on the cabinets: cards are deactivated, permissions revoked and any
// pending pairing code dropped.
//
// If the user still holds borrowed items the call fails with
// model.ErrUserHasBorrowedItems and returns the held items, unless force is
// set, in which case every held item is moved to MAINTENANCE with
// ForceRelease. The returned slice lists the held items in both cases.
func DeleteUser(ctx context.Context, db *sql.DB, id string, force bool) ([]model.Item, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := GetUser(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if u == nil || u.DeletedAt != nil {
		return nil, model.ErrUserNotFound
	}

	held, err := ListHeldItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if len(held) > 0 && !force {
		return held, model.ErrUserHasBorrowedItems
	}

	for _, item := range held {
		if err := ForceRelease(ctx, tx, item.ID); err != nil {
			return nil, err
		}
	}
	if err := DeactivateUserCards(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := RevokeUserPermissions(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := DeletePairingCode(ctx, tx, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now(), id,
	); err != nil {
		return nil, fmt.Errorf("deleting user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return held, nil
}
