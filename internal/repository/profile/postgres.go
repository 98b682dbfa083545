package profile

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"storefront/internal/domain"
)

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

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	const q = `
SELECT id::text, role, full_name, email, COALESCE(phone, ''), COALESCE(address, ''), created_at
FROM profiles
WHERE id = $1
`
	var p domain.Profile
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Role, &p.FullName, &p.Email, &p.Phone, &p.Address, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("profile repo: get id=%s error=%v", id, err)
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepo) UpdateContact(ctx context.Context, id, phone, address string) error {
	const q = `
UPDATE profiles
SET phone = NULLIF($1, ''), address = NULLIF($2, '')
WHERE id = $3
`
	cmd, err := r.pool.Exec(ctx, q, phone, address, id)
	if err != nil {
		r.logger.Printf("profile repo: update contact id=%s error=%v", id, err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
