package seed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type productSeed struct {
	Title       string
	Description string
	PriceCents  int64
	Stock       int
	Category    string
}

type categorySeed struct {
	Name string
	Slug string
}

// Apply inserts basic seed data for manual testing. It is idempotent via ON CONFLICT.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ensureProfile(ctx, pool, "admin@storefront.local", "Store Admin", "admin"); err != nil {
		return fmt.Errorf("ensure admin profile: %w", err)
	}
	if err := ensureProfile(ctx, pool, "customer@storefront.local", "Demo Customer", "customer"); err != nil {
		return fmt.Errorf("ensure customer profile: %w", err)
	}

	categories := []categorySeed{
		{Name: "Apparel", Slug: "apparel"},
		{Name: "Accessories", Slug: "accessories"},
	}
	categoryIDs := make(map[string]string, len(categories))
	for _, c := range categories {
		id, err := ensureCategory(ctx, pool, c)
		if err != nil {
			return fmt.Errorf("ensure category %s: %w", c.Slug, err)
		}
		categoryIDs[c.Slug] = id
	}

	products := []productSeed{
		{
			Title:       "Demo T-Shirt",
			Description: "Soft cotton tee for demo purposes",
			PriceCents:  1999,
			Stock:       50,
			Category:    "apparel",
		},
		{
			Title:       "Demo Mug",
			Description: "Ceramic mug with demo logo",
			PriceCents:  1299,
			Stock:       80,
			Category:    "accessories",
		},
		{
			Title:       "Demo Tote Bag",
			Description: "Reusable canvas tote",
			PriceCents:  899,
			Stock:       30,
			Category:    "accessories",
		},
	}

	for _, p := range products {
		if err := upsertProduct(ctx, pool, categoryIDs[p.Category], p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Title, err)
		}
	}

	return nil
}

func ensureProfile(ctx context.Context, pool *pgxpool.Pool, email, fullName, role string) error {
	const q = `
INSERT INTO profiles (email, full_name, role)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET full_name = EXCLUDED.full_name, role = EXCLUDED.role
`
	_, err := pool.Exec(ctx, q, email, fullName, role)
	return err
}

func ensureCategory(ctx context.Context, pool *pgxpool.Pool, c categorySeed) (string, error) {
	const q = `
INSERT INTO categories (name, slug)
VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text
`
	var id string
	if err := pool.QueryRow(ctx, q, c.Name, c.Slug).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func upsertProduct(ctx context.Context, pool *pgxpool.Pool, categoryID string, p productSeed) error {
	const q = `
INSERT INTO products (category_id, title, description, price_cents, stock)
SELECT NULLIF($1, '')::uuid, $2, $3, $4, $5
WHERE NOT EXISTS (SELECT 1 FROM products WHERE title = $2)
`
	_, err := pool.Exec(ctx, q, categoryID, p.Title, p.Description, p.PriceCents, p.Stock)
	return err
}
