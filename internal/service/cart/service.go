package cart

import (
	"context"
	"errors"

	"storefront/internal/domain"
)

type cartRepo interface {
	ListByUser(ctx context.Context, userID string) ([]domain.CartItem, error)
	Add(ctx context.Context, userID, productID string, quantity int) (*domain.CartItem, error)
	ChangeQuantity(ctx context.Context, userID, itemID string, quantity int) error
	Remove(ctx context.Context, userID, itemID string) error
}

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type Service struct {
	repo     cartRepo
	products productRepo
}

func New(repo cartRepo, products productRepo) *Service {
	return &Service{repo: repo, products: products}
}

// Cart is the customer-facing view with a running total.
type Cart struct {
	Items      []domain.CartItem `json:"items"`
	TotalCents int64             `json:"totalCents"`
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart := &Cart{Items: items}
	for _, item := range items {
		if item.Product != nil {
			cart.TotalCents += item.Product.PriceCents * int64(item.Quantity)
		}
	}
	return cart, nil
}

func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) (*domain.CartItem, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Invalid("product not found")
		}
		return nil, err
	}
	return s.repo.Add(ctx, userID, productID, quantity)
}

func (s *Service) ChangeQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	return s.repo.ChangeQuantity(ctx, userID, itemID, quantity)
}

func (s *Service) Remove(ctx context.Context, userID, itemID string) error {
	return s.repo.Remove(ctx, userID, itemID)
}
