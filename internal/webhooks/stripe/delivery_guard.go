package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Claim is the outcome of reserving a Stripe event id.
type Claim int

const (
	// ClaimAcquired means this delivery owns the event and must Complete or
	// Release it.
	ClaimAcquired Claim = iota
	// ClaimDone means an earlier delivery already processed the event.
	ClaimDone
	// ClaimInFlight means another delivery is processing the event right now.
	ClaimInFlight
)

const (
	markerPending = "pending"
	markerDone    = "done"
)

type guardStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// DeliveryGuard dedupes Stripe event deliveries by event id. A claimed event
// is pending until completed; pending claims expire after pendingTTL so a
// crashed worker does not block redelivery forever.
type DeliveryGuard struct {
	store      guardStore
	doneTTL    time.Duration
	pendingTTL time.Duration
	scope      string
}

func NewDeliveryGuard(store guardStore, ttl time.Duration, scope string) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	pending := 5 * time.Minute
	if ttl < pending {
		pending = ttl
	}
	return &DeliveryGuard{store: store, doneTTL: ttl, pendingTTL: pending, scope: scope}, nil
}

// Claim reserves eventID for this delivery.
func (g *DeliveryGuard) Claim(ctx context.Context, eventID string) (Claim, error) {
	key, err := g.key(eventID)
	if err != nil {
		return 0, err
	}
	// the marker can expire between SetNX and Get; one retry covers it
	for attempt := 0; attempt < 2; attempt++ {
		set, err := g.store.SetNX(ctx, key, markerPending, g.pendingTTL)
		if err != nil {
			return 0, fmt.Errorf("claim event: %w", err)
		}
		if set {
			return ClaimAcquired, nil
		}
		marker, err := g.store.Get(ctx, key)
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read event marker: %w", err)
		}
		if marker == markerDone {
			return ClaimDone, nil
		}
		return ClaimInFlight, nil
	}
	return ClaimInFlight, nil
}

// Complete records eventID as processed for the full ttl.
func (g *DeliveryGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markerDone, g.doneTTL)
}

// Release forgets a pending claim so Stripe's redelivery is processed.
func (g *DeliveryGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *DeliveryGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
