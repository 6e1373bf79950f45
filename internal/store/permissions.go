package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/save4223/save4223server/internal/model"
)

const permissionColumns = `id, user_id, location_id, status, valid_from, valid_until, request_reason, approved_by, created_at`

func scanPermission(row interface{ Scan(...any) error }) (*model.AccessPermission, error) {
	p := &model.AccessPermission{}
	var reason, approvedBy sql.NullString
	if err := row.Scan(&p.ID, &p.UserID, &p.LocationID, &p.Status, &p.ValidFrom, &p.ValidUntil,
		&reason, &approvedBy, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.RequestReason = reason.String
	p.ApprovedBy = approvedBy.String
	return p, nil
}

func listPermissions(ctx context.Context, q Querier, where string, args ...any) ([]model.AccessPermission, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM access_permissions WHERE `+where+` ORDER BY id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	defer rows.Close()

	var perms []model.AccessPermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

// CreatePermission records an access permission. Status defaults to PENDING.
func CreatePermission(ctx context.Context, q Querier, p model.AccessPermission) (*model.AccessPermission, error) {
	if p.Status == "" {
		p.Status = model.PermissionPending
	}
	if !model.ValidPermissionStatus(p.Status) {
		return nil, fmt.Errorf("%w: invalid permission status %q", model.ErrValidation, p.Status)
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO access_permissions
		 (user_id, location_id, status, valid_from, valid_until, request_reason, approved_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.LocationID, p.Status, utc(p.ValidFrom), utc(p.ValidUntil),
		nullString(p.RequestReason), nullString(p.ApprovedBy), now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating permission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting permission id: %w", err)
	}

	return GetPermission(ctx, q, id)
}

// GetPermission returns a permission by ID.
func GetPermission(ctx context.Context, q Querier, id int64) (*model.AccessPermission, error) {
	p, err := scanPermission(q.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM access_permissions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting permission: %w", err)
	}
	return p, nil
}

// UpdatePermission changes a permission's status and validity window.
// approvedBy is recorded when the new status is APPROVED.
func UpdatePermission(ctx context.Context, q Querier, id int64, status string, validUntil *time.Time, approvedBy string) (*model.AccessPermission, error) {
	if !model.ValidPermissionStatus(status) {
		return nil, fmt.Errorf("%w: invalid permission status %q", model.ErrValidation, status)
	}

	var approver sql.NullString
	if status == model.PermissionApproved {
		approver = nullString(approvedBy)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE access_permissions
		 SET status = ?, valid_until = ?, approved_by = COALESCE(?, approved_by)
		 WHERE id = ?`,
		status, utc(validUntil), approver, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating permission: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking updated permission: %w", err)
	}
	if n == 0 {
		return nil, model.ErrPermissionNotFound
	}
	return GetPermission(ctx, q, id)
}

// ListUserLocationPermissions returns every permission a user has for one location.
func ListUserLocationPermissions(ctx context.Context, q Querier, userID string, locationID int64) ([]model.AccessPermission, error) {
	return listPermissions(ctx, q, `user_id = ? AND location_id = ?`, userID, locationID)
}

// ListApprovedPermissions returns all APPROVED permissions. Callers check
// the validity window with AccessPermission.Authorizes.
func ListApprovedPermissions(ctx context.Context, q Querier) ([]model.AccessPermission, error) {
	return listPermissions(ctx, q, `status = ?`, model.PermissionApproved)
}

// ListUserPermissions returns all permissions of a user.
func ListUserPermissions(ctx context.Context, q Querier, userID string) ([]model.AccessPermission, error) {
	return listPermissions(ctx, q, `user_id = ?`, userID)
}

// RevokeUserPermissions revokes every non-revoked permission of a user.
func RevokeUserPermissions(ctx context.Context, q Querier, userID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE access_permissions SET status = ? WHERE user_id = ? AND status != ?`,
		model.PermissionRevoked, userID, model.PermissionRevoked,
	)
	if err != nil {
		return fmt.Errorf("revoking permissions: %w", err)
	}
	return nil
}
