package model

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors wrap one of these so callers can classify
// failures with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrAccessDenied = errors.New("access denied")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
)

var (
	ErrCardNotRegistered    = fmt.Errorf("%w: card not registered", ErrNotFound)
	ErrCardInactive         = fmt.Errorf("%w: card deactivated", ErrAccessDenied)
	ErrCabinetNotFound      = fmt.Errorf("%w: cabinet not found", ErrNotFound)
	ErrNoValidPermission    = fmt.Errorf("%w: restricted cabinet, no valid permission", ErrAccessDenied)
	ErrItemNotFound         = fmt.Errorf("%w: item not found", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrSessionNotFound      = fmt.Errorf("%w: session not found", ErrNotFound)
	ErrPermissionNotFound   = fmt.Errorf("%w: permission not found", ErrNotFound)
	ErrItemAlreadyBorrowed  = fmt.Errorf("%w: item already borrowed", ErrConflict)
	ErrCardClaimed          = fmt.Errorf("%w: card already linked to another user", ErrConflict)
	ErrUserHasBorrowedItems = fmt.Errorf("%w: user still holds borrowed items", ErrConflict)
	ErrSessionClosed        = fmt.Errorf("%w: session already closed", ErrConflict)
	ErrPairingCodeInvalid   = fmt.Errorf("%w: invalid or expired pairing code", ErrValidation)
)
