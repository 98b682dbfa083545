package attempt

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
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

func (r *postgresRepo) Begin(ctx context.Context, key, userID string) error {
	const q = `
INSERT INTO checkout_attempts (idempotency_key, user_id, state)
VALUES ($1, $2, 'started')
ON CONFLICT (idempotency_key) DO NOTHING
`
	_, err := r.pool.Exec(ctx, q, key, userID)
	if err != nil {
		r.logger.Printf("attempt repo: begin key=%s error=%v", key, err)
	}
	return err
}

func (r *postgresRepo) SetState(ctx context.Context, key, state string) error {
	const q = `
UPDATE checkout_attempts
SET state = $1, updated_at = now()
WHERE idempotency_key = $2
`
	_, err := r.pool.Exec(ctx, q, state, key)
	if err != nil {
		r.logger.Printf("attempt repo: set state key=%s state=%s error=%v", key, state, err)
	}
	return err
}

func (r *postgresRepo) AddReservation(ctx context.Context, key, productID string, quantity int) (bool, error) {
	const q = `
INSERT INTO stock_reservations (idempotency_key, product_id, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (idempotency_key, product_id) DO NOTHING
`
	cmd, err := r.pool.Exec(ctx, q, key, productID, quantity)
	if err != nil {
		r.logger.Printf("attempt repo: add reservation key=%s product_id=%s error=%v", key, productID, err)
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *postgresRepo) Reservations(ctx context.Context, key string) ([]Reservation, error) {
	const q = `
SELECT product_id::text, quantity, released
FROM stock_reservations
WHERE idempotency_key = $1
ORDER BY product_id ASC
`
	rows, err := r.pool.Query(ctx, q, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ProductID, &res.Quantity, &res.Released); err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func (r *postgresRepo) MarkReleased(ctx context.Context, key, productID string) error {
	const q = `
UPDATE stock_reservations
SET released = true
WHERE idempotency_key = $1 AND product_id = $2
`
	_, err := r.pool.Exec(ctx, q, key, productID)
	return err
}

func (r *postgresRepo) StaleReserved(ctx context.Context, olderThan time.Duration) ([]Attempt, error) {
	const q = `
SELECT idempotency_key, user_id::text, state, created_at, updated_at
FROM checkout_attempts
WHERE state = 'reserved' AND updated_at < now() - $1::interval
ORDER BY updated_at ASC
`
	rows, err := r.pool.Query(ctx, q, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.IdempotencyKey, &a.UserID, &a.State, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
