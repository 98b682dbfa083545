package attempt

import (
	"context"
	"time"
)

// Attempt states, in saga order. A row stuck in StateReserved marks a crash
// between inventory reservation and order creation and must be compensated.
const (
	StateStarted     = "started"
	StateReserved    = "reserved"
	StateCompleted   = "completed"
	StateCompensated = "compensated"
)

type Attempt struct {
	IdempotencyKey string
	UserID         string
	State          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Reservation struct {
	ProductID string
	Quantity  int
	Released  bool
}

type Repository interface {
	// Begin records the attempt before any effectful step; repeated calls
	// with the same key are no-ops.
	Begin(ctx context.Context, key, userID string) error
	SetState(ctx context.Context, key, state string) error
	// AddReservation records a per-product reservation durably, at most one
	// row per (key, product). It reports whether this call inserted the row;
	// false means another attempt on the same key recorded it first.
	AddReservation(ctx context.Context, key, productID string, quantity int) (bool, error)
	Reservations(ctx context.Context, key string) ([]Reservation, error)
	MarkReleased(ctx context.Context, key, productID string) error
	// StaleReserved lists attempts stuck in the reserved state longer than
	// the given age, for the boot-time recovery pass.
	StaleReserved(ctx context.Context, olderThan time.Duration) ([]Attempt, error)
}
