package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stagelyhq/stagely-backend/pkg/redis"
)

// defaultIdempotencyTTL keeps delivery markers around long enough to cover
// Stripe's retry window.
const defaultIdempotencyTTL = 72 * time.Hour

// IdempotencyGuard deduplicates webhook deliveries by event id. The first
// delivery claims a Redis marker; replays within the TTL are acknowledged
// without reprocessing.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = defaultIdempotencyTTL
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}

// CheckAndMark claims the event id and reports whether it was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.SetNX(ctx, g.key(eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !claimed, nil
}

// Delete releases the marker so a failed event can be redelivered.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}
