package store

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/utils"
)

// ProfileCache is the offline copy of each profile, keyed by user id. It has no
// expiry: the copy lives until it is re-keyed by migration or forgotten on delete.
type ProfileCache struct {
	kv *utils.TTLStore
}

func NewProfileCache(rc *redis.Client) *ProfileCache {
	return &ProfileCache{kv: utils.NewTTLStore(rc, "profile:fallback:")}
}

func (c *ProfileCache) Get(ctx context.Context, userID string) (*models.UserProfile, bool, error) {
	var p models.UserProfile
	ok, err := c.kv.GetJSON(ctx, userID, &p)
	if err != nil || !ok {
		return nil, false, err
	}
	return &p, true, nil
}

func (c *ProfileCache) Put(ctx context.Context, p *models.UserProfile) error {
	return c.kv.SetJSON(ctx, p.UserID, p, 0)
}

func (c *ProfileCache) Delete(ctx context.Context, userID string) error {
	return c.kv.Delete(ctx, userID)
}

// Rekey moves the copy stored under from to to. It reports whether a copy existed.
func (c *ProfileCache) Rekey(ctx context.Context, from, to string) (bool, error) {
	p, ok, err := c.Get(ctx, from)
	if err != nil || !ok {
		return false, err
	}
	p.UserID = to
	if err := c.Put(ctx, p); err != nil {
		return false, err
	}
	return true, c.Delete(ctx, from)
}
