package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultStateTTL = 10 * time.Minute

// StateStore keeps single-use OAuth state tokens to mitigate CSRF on the
// federated sign-in callback.
type StateStore struct {
	store *TTLStore
	ttl   time.Duration
}

func NewStateStore(rc *redis.Client, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateStore{store: NewTTLStore(rc, "oauth:state:"), ttl: ttl}
}

// Save records state. The payload travels back to the callback untouched.
func (s *StateStore) Save(ctx context.Context, state, payload string) error {
	if payload == "" {
		payload = "1"
	}
	return s.store.Set(ctx, state, payload, s.ttl)
}

// Consume validates and removes state, returning its payload.
func (s *StateStore) Consume(ctx context.Context, state string) (string, bool) {
	if state == "" {
		return "", false
	}
	v, ok, err := s.store.Take(ctx, state)
	if err != nil {
		Sugar.Warnf("oauth state consume failed err=%v", err)
		return "", false
	}
	return v, ok
}
