package checkout

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"storefront/internal/redisx"
	"storefront/internal/service/payment"
)

// AuthCache remembers settled authorization outcomes per idempotency key so
// a retried indeterminate attempt is resolved locally when the prior outcome
// is known. A nil cache is a no-op and checkout falls back to gateway-side
// idempotency alone.
type AuthCache struct {
	rdb *redis.Client
}

func NewAuthCache(rdb *redis.Client) *AuthCache {
	if rdb == nil {
		return nil
	}
	return &AuthCache{rdb: rdb}
}

func (c *AuthCache) Get(ctx context.Context, key string) (payment.Outcome, bool) {
	if c == nil {
		return "", false
	}
	v, err := c.rdb.Get(ctx, fmt.Sprintf(redisx.KeyPaymentAuth, key)).Result()
	if err != nil {
		return "", false
	}
	switch payment.Outcome(v) {
	case payment.OutcomeApproved, payment.OutcomeDeclined:
		return payment.Outcome(v), true
	}
	return "", false
}

func (c *AuthCache) Set(ctx context.Context, key string, outcome payment.Outcome) {
	if c == nil {
		return
	}
	// Cache failures only cost an extra gateway round trip on retry.
	_ = c.rdb.Set(ctx, fmt.Sprintf(redisx.KeyPaymentAuth, key), string(outcome), redisx.TTLPaymentAuth).Err()
}
