package order

import (
	"context"

	"storefront/internal/domain"
)

type CreateInput struct {
	UserID          string
	TotalCents      int64
	PaymentMethod   string
	PaymentStatus   domain.PaymentStatus
	ShippingAddress string
	Phone           string
	IdempotencyKey  string
	Items           []ItemInput
}

type ItemInput struct {
	ProductID  string
	Quantity   int
	PriceCents int64
}

type Repository interface {
	// CreateWithItems writes the order row and all line items in one
	// transaction. A duplicate idempotency key yields domain.ErrConflict.
	CreateWithItems(ctx context.Context, in CreateInput) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	// UpdateStatus moves order_status conditioned on the expected current
	// value; domain.ErrConflict when the row changed underneath.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error
	SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
}
