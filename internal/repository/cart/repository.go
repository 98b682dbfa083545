package cart

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	// ListByUser returns the user's cart rows with the product joined in.
	ListByUser(ctx context.Context, userID string) ([]domain.CartItem, error)
	// Add upserts a cart row, accumulating quantity on an existing pair.
	Add(ctx context.Context, userID, productID string, quantity int) (*domain.CartItem, error)
	ChangeQuantity(ctx context.Context, userID, itemID string, quantity int) error
	Remove(ctx context.Context, userID, itemID string) error
	// DeleteByIDs removes exactly the given rows for the user and reports how
	// many were deleted. Rows added after a checkout snapshot are untouched.
	DeleteByIDs(ctx context.Context, userID string, itemIDs []string) (int, error)
}
