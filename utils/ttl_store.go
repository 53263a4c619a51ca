package utils

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

type ttlEntry struct {
	value     string
	expiresAt time.Time
}

func (e ttlEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// TTLStore is a small key/value store with expirations. It uses Redis when a
// client is supplied and a process-local map otherwise (single instance only).
type TTLStore struct {
	rc     *redis.Client
	prefix string

	mu  sync.Mutex
	mem map[string]ttlEntry
}

// NewTTLStore namespaces every key under prefix.
func NewTTLStore(rc *redis.Client, prefix string) *TTLStore {
	return &TTLStore{rc: rc, prefix: prefix, mem: map[string]ttlEntry{}}
}

func (s *TTLStore) key(k string) string { return s.prefix + k }

func opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, redisOpTimeout)
}

// Set stores value under key. A non-positive ttl keeps the key until deleted.
func (s *TTLStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if s.rc != nil {
		ctx, cancel := opCtx(ctx)
		defer cancel()
		return s.rc.Set(ctx, s.key(key), value, ttl).Err()
	}
	e := ttlEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.mem[key] = e
	s.mu.Unlock()
	return nil
}

// Get returns the value for key and whether it was present.
func (s *TTLStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.rc != nil {
		ctx, cancel := opCtx(ctx)
		defer cancel()
		v, err := s.rc.Get(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return v, true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.mem[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(time.Now()) {
		delete(s.mem, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Take reads and removes key in one step, so a value can be consumed only once.
func (s *TTLStore) Take(ctx context.Context, key string) (string, bool, error) {
	if s.rc != nil {
		ctx, cancel := opCtx(ctx)
		defer cancel()
		v, err := s.rc.GetDel(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return v, true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.mem[key]
	if !ok {
		return "", false, nil
	}
	delete(s.mem, key)
	if e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (s *TTLStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if s.rc != nil {
		ctx, cancel := opCtx(ctx)
		defer cancel()
		return s.rc.SetNX(ctx, s.key(key), value, ttl).Result()
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.mem[key]; ok && !e.expired(now) {
		return false, nil
	}
	e := ttlEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.mem[key] = e
	return true, nil
}

// Incr bumps an integer counter. The ttl is applied when the counter is created.
func (s *TTLStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if s.rc != nil {
		ctx, cancel := opCtx(ctx)
		defer cancel()
		n, err := s.rc.Incr(ctx, s.key(key)).Result()
		if err != nil {
			return 0, err
		}
		if n == 1 && ttl > 0 {
			_ = s.rc.Expire(ctx, s.key(key), ttl).Err()
		}
		return n, nil
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.mem[key]
	if !ok || e.expired(now) {
		e = ttlEntry{value: "0"}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	s.mem[key] = e
	return n, nil
}

// Delete removes key.
func (s *TTLStore) Delete(ctx context.Context, key string) error {
	if s.rc != nil {
		ctx, cancel := opCtx(ctx)
		defer cancel()
		return s.rc.Del(ctx, s.key(key)).Err()
	}
	s.mu.Lock()
	delete(s.mem, key)
	s.mu.Unlock()
	return nil
}

// SetJSON marshals v and stores it under key.
func (s *TTLStore) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(b), ttl)
}

// GetJSON decodes the value under key into out.
func (s *TTLStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return false, err
	}
	return true, nil
}
