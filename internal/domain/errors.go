package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conditional update lost against a concurrent
	// writer and may be retried.
	ErrConflict = errors.New("conflict")

	// ErrEmptyCart rejects checkout of an empty cart before any side effect.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInvalidQuantity rejects non-positive line quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrUnsupportedPayment rejects payment methods outside the closed set.
	ErrUnsupportedPayment = errors.New("unsupported payment method")

	// ErrPaymentDeclined means the gateway refused the charge; nothing was
	// written.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrPaymentIndeterminate means the charge outcome is unknown (timeout).
	// The caller must retry with the same idempotency key, never a fresh one.
	ErrPaymentIndeterminate = errors.New("payment outcome indeterminate")

	// ErrInvalidTransition rejects a disallowed order status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPersistence means order materialization failed after inventory was
	// compensated; the placement may be retried with the same key.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalid builds a ValidationError.
func Invalid(msg string) error { return &ValidationError{Msg: msg} }

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// IsRetryable reports whether the caller may retry the placement with the
// same idempotency key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPaymentIndeterminate) || errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistence)
}
