package payment

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Outcome of a charge authorization. Indeterminate means the gateway's answer
// is unknown (timeout, connection drop); the charge may or may not have gone
// through and the attempt must be retried with the same idempotency key.
type Outcome string

const (
	OutcomeApproved      Outcome = "approved"
	OutcomeDeclined      Outcome = "declined"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// Gateway authorizes a charge. Implementations must be idempotent per key:
// repeating an authorization with the same key returns the settled outcome
// of the first charge instead of charging again.
type Gateway interface {
	Authorize(ctx context.Context, amountCents int64, method, idempotencyKey string) (Outcome, error)
}

// SimulatedGateway stands in for a real provider during local runs. It keeps
// per-key outcomes so retries observe gateway-side idempotency, and maps a
// context deadline into an indeterminate outcome the way a network timeout
// would.
type SimulatedGateway struct {
	Latency     time.Duration
	DeclineRate float64

	outcomes syncMap
}

func (g *SimulatedGateway) Authorize(ctx context.Context, amountCents int64, method, idempotencyKey string) (Outcome, error) {
	if prior, ok := g.outcomes.load(idempotencyKey); ok {
		return prior, nil
	}

	latency := g.Latency
	if latency == 0 {
		latency = 2 * time.Second
	}
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return OutcomeIndeterminate, nil
		}
		return OutcomeIndeterminate, ctx.Err()
	}

	outcome := OutcomeApproved
	if g.DeclineRate > 0 && rand.Float64() < g.DeclineRate {
		outcome = OutcomeDeclined
	}
	g.outcomes.store(idempotencyKey, outcome)
	return outcome, nil
}
