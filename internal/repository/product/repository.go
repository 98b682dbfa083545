package product

import (
	"context"

	"storefront/internal/domain"
)

type CreateInput struct {
	CategoryID  *string
	Title       string
	Description string
	PriceCents  int64
	Stock       int
	Images      []string
}

type UpdateInput struct {
	CategoryID  *string
	Title       string
	Description string
	PriceCents  int64
	Stock       int
	Images      []string
}

type Repository interface {
	List(ctx context.Context, categoryID string) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, in CreateInput) (*domain.Product, error)
	// Update applies a full update conditioned on the product version and
	// returns domain.ErrConflict when a concurrent writer got there first.
	Update(ctx context.Context, id string, expectedVersion int, in UpdateInput) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	// Upsert inserts a product or, when one with the same title exists,
	// overwrites its catalog fields. Used by the bulk importer.
	Upsert(ctx context.Context, in CreateInput) (*domain.Product, error)

	// Reserve decrements stock and increments sold in a single conditional
	// update that succeeds only while stock covers the quantity.
	Reserve(ctx context.Context, productID string, quantity int) error
	// Release undoes a reservation (compensation).
	Release(ctx context.Context, productID string, quantity int) error
}
