package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist remembers revoked session tokens until they would have expired anyway.
type TokenBlacklist struct {
	store *TTLStore
}

func NewTokenBlacklist(rc *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{store: NewTTLStore(rc, "jwt:blacklist:")}
}

// Revoke blacklists token until expiresAt.
func (b *TokenBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return b.store.Set(ctx, token, "1", ttl)
}

// IsRevoked reports whether token was revoked before its natural expiry.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, token string) bool {
	_, ok, err := b.store.Get(ctx, token)
	if err != nil {
		// fail open so a Redis outage does not sign everybody out
		return false
	}
	return ok
}
