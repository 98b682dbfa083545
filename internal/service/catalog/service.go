package catalog

import (
	"context"
	"strings"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

type productRepo interface {
	List(ctx context.Context, categoryID string) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, in productrepo.CreateInput) (*domain.Product, error)
	Update(ctx context.Context, id string, expectedVersion int, in productrepo.UpdateInput) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type categoryRepo interface {
	List(ctx context.Context) ([]domain.Category, error)
	Create(ctx context.Context, name, slug string) (*domain.Category, error)
}

type Service struct {
	products   productRepo
	categories categoryRepo
}

func New(products productRepo, categories categoryRepo) *Service {
	return &Service{products: products, categories: categories}
}

func (s *Service) ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error) {
	return s.products.List(ctx, categoryID)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.List(ctx)
}

type ProductInput struct {
	CategoryID  *string  `json:"categoryId,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	PriceCents  int64    `json:"priceCents"`
	Stock       int      `json:"stock"`
	Images      []string `json:"images,omitempty"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Invalid("title required")
	}
	if in.PriceCents < 0 {
		return domain.Invalid("price must not be negative")
	}
	if in.Stock < 0 {
		return domain.Invalid("stock must not be negative")
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return s.products.Create(ctx, productrepo.CreateInput{
		CategoryID:  in.CategoryID,
		Title:       in.Title,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Images:      in.Images,
	})
}

// UpdateProduct applies a full update conditioned on the version the caller
// last saw, surfacing domain.ErrConflict on a concurrent edit.
func (s *Service) UpdateProduct(ctx context.Context, id string, expectedVersion int, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return s.products.Update(ctx, id, expectedVersion, productrepo.UpdateInput{
		CategoryID:  in.CategoryID,
		Title:       in.Title,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Images:      in.Images,
	})
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.products.Delete(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, name, slug string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("name required")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = strings.ReplaceAll(strings.ToLower(name), " ", "-")
	}
	return s.categories.Create(ctx, name, slug)
}
