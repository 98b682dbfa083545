package product

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"storefront/internal/domain"
)

const productColumns = `id::text, category_id::text, title, COALESCE(description, ''), price_cents, stock, sold, images, version, created_at, updated_at`

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) List(ctx context.Context, categoryID string) ([]domain.Product, error) {
	q := `
SELECT ` + productColumns + `
FROM products
ORDER BY created_at DESC
`
	args := []interface{}{}
	if categoryID != "" {
		q = `
SELECT ` + productColumns + `
FROM products
WHERE category_id = $1
ORDER BY created_at DESC
`
		args = append(args, categoryID)
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Printf("product repo: list error=%v", err)
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Printf("product repo: list rows error=%v", err)
		return nil, err
	}
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	const q = `
SELECT ` + productColumns + `
FROM products
WHERE id = $1
`
	p, err := scanProduct(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("product repo: get id=%s error=%v", id, err)
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) Create(ctx context.Context, in CreateInput) (*domain.Product, error) {
	const q = `
INSERT INTO products (category_id, title, description, price_cents, stock, images)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, COALESCE($6, '[]'::jsonb))
RETURNING ` + productColumns + `
`
	var categoryID interface{}
	if in.CategoryID != nil && *in.CategoryID != "" {
		categoryID = *in.CategoryID
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, q, categoryID, in.Title, in.Description, in.PriceCents, in.Stock, in.Images))
	if err != nil {
		r.logger.Printf("product repo: create title=%q error=%v", in.Title, err)
		return nil, err
	}
	r.logger.Printf("product repo: created id=%s title=%q", p.ID, p.Title)
	return p, nil
}

func (r *postgresRepo) Update(ctx context.Context, id string, expectedVersion int, in UpdateInput) (*domain.Product, error) {
	const q = `
UPDATE products
SET category_id = $1,
    title = $2,
    description = NULLIF($3, ''),
    price_cents = $4,
    stock = $5,
    images = COALESCE($6, '[]'::jsonb),
    version = version + 1,
    updated_at = now()
WHERE id = $7 AND version = $8
RETURNING ` + productColumns + `
`
	var categoryID interface{}
	if in.CategoryID != nil && *in.CategoryID != "" {
		categoryID = *in.CategoryID
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, q, categoryID, in.Title, in.Description, in.PriceCents, in.Stock, in.Images, id, expectedVersion))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is gone or the version moved on.
			if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrConflict
		}
		r.logger.Printf("product repo: update id=%s error=%v", id, err)
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, in CreateInput) (*domain.Product, error) {
	const q = `
UPDATE products
SET category_id = COALESCE($1::uuid, category_id),
    description = NULLIF($2, ''),
    price_cents = $3,
    stock = $4,
    images = COALESCE($5, '[]'::jsonb),
    version = version + 1,
    updated_at = now()
WHERE title = $6
RETURNING ` + productColumns + `
`
	var categoryID interface{}
	if in.CategoryID != nil && *in.CategoryID != "" {
		categoryID = *in.CategoryID
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, q, categoryID, in.Description, in.PriceCents, in.Stock, in.Images, in.Title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.Create(ctx, in)
		}
		r.logger.Printf("product repo: upsert title=%q error=%v", in.Title, err)
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		r.logger.Printf("product repo: delete id=%s error=%v", id, err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) Reserve(ctx context.Context, productID string, quantity int) error {
	const q = `
UPDATE products
SET stock = stock - $2,
    sold = sold + $2,
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND stock >= $2
`
	cmd, err := r.pool.Exec(ctx, q, productID, quantity)
	if err != nil {
		r.logger.Printf("product repo: reserve id=%s qty=%d error=%v", productID, quantity, err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		var available int
		err := r.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		return &domain.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
	}
	return nil
}

func (r *postgresRepo) Release(ctx context.Context, productID string, quantity int) error {
	const q = `
UPDATE products
SET stock = stock + $2,
    sold = GREATEST(sold - $2, 0),
    version = version + 1,
    updated_at = now()
WHERE id = $1
`
	cmd, err := r.pool.Exec(ctx, q, productID, quantity)
	if err != nil {
		r.logger.Printf("product repo: release id=%s qty=%d error=%v", productID, quantity, err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.logger.Printf("product repo: released id=%s qty=%d", productID, quantity)
	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(
		&p.ID,
		&p.CategoryID,
		&p.Title,
		&p.Description,
		&p.PriceCents,
		&p.Stock,
		&p.Sold,
		&p.Images,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
