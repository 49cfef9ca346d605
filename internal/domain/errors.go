package domain

import "errors"

var (
	// Validation Errors
	ErrInvalidKind      = errors.New("unknown list kind")
	ErrInvalidParent    = errors.New("parent node ID must be positive")
	ErrInvalidItemID    = errors.New("item ID must be positive")
	ErrEmptyTitle       = errors.New("title cannot be empty")
	ErrTitleTooLong     = errors.New("title exceeds 1023 characters")
	ErrBodyTooLong      = errors.New("body exceeds 65535 bytes")
	ErrInvalidLink      = errors.New("invalid link type or link target")
	ErrInvalidDirection = errors.New("direction must be up or down")
	ErrInvalidPosition  = errors.New("position out of range")

	// Ordering errors
	ErrItemNotFound        = errors.New("item not found in parent")
	ErrLockUnavailable     = errors.New("position lock unavailable")
	ErrConstraintViolation = errors.New("position constraint violated")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden - insufficient permissions")
)

// IsValidationError reports whether err was caused by bad caller input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidKind, ErrInvalidParent, ErrInvalidItemID, ErrEmptyTitle,
		ErrTitleTooLong, ErrBodyTooLong, ErrInvalidLink, ErrInvalidDirection,
		ErrInvalidPosition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
