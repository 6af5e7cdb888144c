package domain

import "errors"

var (
	ErrInvalidState           = errors.New("invalid state")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// IsRetryable reports whether err signals a lock or version conflict that
// may succeed when the whole operation is attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
