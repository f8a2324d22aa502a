package stripewebhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
	// vanish drops the key on the next Get, as if it expired after SetNX
	vanish bool
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vanish {
		m.vanish = false
		delete(m.keys, key)
	}
	v, ok := m.keys[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "settle:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestDeliveryGuardLifecycle(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, 24*time.Hour, "stripe-webhook")
	require.NoError(t, err)
	ctx := context.Background()
	key := "settle:idempotency:stripe-webhook:evt_1"

	claim, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim)
	assert.Equal(t, 5*time.Minute, store.ttls[key])

	claim, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimInFlight, claim)

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	claim, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimDone, claim)
}

func TestDeliveryGuardReleaseAllowsRetry(t *testing.T) {
	guard, err := NewDeliveryGuard(newMemoryStore(), time.Hour, "stripe-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "evt_2"))

	claim, err := guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim)
}

func TestDeliveryGuardRetriesExpiredMarker(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, time.Hour, "stripe-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.Claim(ctx, "evt_3")
	require.NoError(t, err)
	store.vanish = true

	claim, err := guard.Claim(ctx, "evt_3")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim)
}

func TestDeliveryGuardErrors(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, time.Minute, "stripe-webhook")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, guard.pendingTTL)

	_, err = guard.Claim(context.Background(), "")
	assert.Error(t, err)

	store.setErr = errors.New("redis down")
	_, err = guard.Claim(context.Background(), "evt_4")
	assert.Error(t, err)

	_, err = NewDeliveryGuard(nil, time.Hour, "scope")
	assert.Error(t, err)
	_, err = NewDeliveryGuard(newMemoryStore(), 0, "scope")
	assert.Error(t, err)
	_, err = NewDeliveryGuard(newMemoryStore(), time.Hour, "")
	assert.Error(t, err)
}
