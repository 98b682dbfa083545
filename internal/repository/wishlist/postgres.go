package wishlist

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"storefront/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) ListByUser(ctx context.Context, userID string) ([]domain.WishlistItem, error) {
	const q = `
SELECT wi.id::text, wi.user_id::text, wi.product_id::text, wi.created_at,
       p.id::text, p.category_id::text, p.title, COALESCE(p.description, ''), p.price_cents, p.stock, p.sold, p.images, p.version, p.created_at, p.updated_at
FROM wishlist_items wi
JOIN products p ON p.id = wi.product_id
WHERE wi.user_id = $1
ORDER BY wi.created_at DESC
`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WishlistItem
	for rows.Next() {
		var item domain.WishlistItem
		var p domain.Product
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.ProductID, &item.CreatedAt,
			&p.ID, &p.CategoryID, &p.Title, &p.Description, &p.PriceCents, &p.Stock, &p.Sold, &p.Images, &p.Version, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Product = &p
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postgresRepo) Add(ctx context.Context, userID, productID string) (*domain.WishlistItem, error) {
	const q = `
INSERT INTO wishlist_items (user_id, product_id)
VALUES ($1, $2)
ON CONFLICT (user_id, product_id) DO UPDATE SET product_id = EXCLUDED.product_id
RETURNING id::text, user_id::text, product_id::text, created_at
`
	var item domain.WishlistItem
	if err := r.pool.QueryRow(ctx, q, userID, productID).Scan(
		&item.ID, &item.UserID, &item.ProductID, &item.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *postgresRepo) Remove(ctx context.Context, userID, itemID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM wishlist_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
