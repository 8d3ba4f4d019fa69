package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type memIdempotencyStore struct {
	keys     map[string]string
	setNXErr error
	deleted  []string
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{keys: make(map[string]string)}
}

func (m *memIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setNXErr != nil {
		return false, m.setNXErr
	}
	if _, exists := m.keys[key]; exists {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *memIdempotencyStore) IdempotencyKey(scope, id string) string {
	return strings.Join([]string{"sg", "idempotency", scope, id}, ":")
}

func TestCheckAndMarkFirstDeliveryIsFresh(t *testing.T) {
	store := newMemIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("construct guard: %v", err)
	}

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("check and mark: %v", err)
	}
	if seen {
		t.Fatalf("first delivery must not be marked as seen")
	}

	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("check and mark replay: %v", err)
	}
	if !seen {
		t.Fatalf("replay must be marked as seen")
	}
}

func TestCheckAndMarkScopesKeys(t *testing.T) {
	store := newMemIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("construct guard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt_1"); err != nil {
		t.Fatalf("check and mark: %v", err)
	}
	if _, ok := store.keys["sg:idempotency:stripe:evt_1"]; !ok {
		t.Fatalf("expected scoped key, have %v", store.keys)
	}
}

func TestCheckAndMarkStoreFailurePropagates(t *testing.T) {
	store := newMemIdempotencyStore()
	store.setNXErr = errors.New("redis down")
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("construct guard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt_1"); err == nil {
		t.Fatalf("store failure must propagate")
	}
}

func TestDeleteReleasesMarkerForRedelivery(t *testing.T) {
	store := newMemIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("construct guard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt_1"); err != nil {
		t.Fatalf("check and mark: %v", err)
	}
	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("check and mark after delete: %v", err)
	}
	if seen {
		t.Fatalf("deleted marker must allow the event through again")
	}
}
