package category

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	List(ctx context.Context) ([]domain.Category, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Category, error)
	Create(ctx context.Context, name, slug string) (*domain.Category, error)
	// UpsertBySlug creates the category or refreshes its name when the slug
	// already exists.
	UpsertBySlug(ctx context.Context, name, slug string) (*domain.Category, error)
}
