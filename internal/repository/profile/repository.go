package profile

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	// UpdateContact overwrites the stored phone and address.
	UpdateContact(ctx context.Context, id, phone, address string) error
}
