package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLStoreMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewTTLStore(nil, "t:")

	require.NoError(t, s.Set(ctx, "short", "v", 10*time.Millisecond))
	require.NoError(t, s.Set(ctx, "forever", "w", 0))

	v, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, ok, _ = s.Get(ctx, "short")
	assert.False(t, ok)

	v, ok, _ = s.Get(ctx, "forever")
	assert.True(t, ok)
	assert.Equal(t, "w", v)
}

func TestTTLStoreTakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewTTLStore(nil, "t:")
	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	v, ok, err := s.Take(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, _ = s.Take(ctx, "k")
	assert.False(t, ok)
}

func TestTTLStoreSetNXAndIncr(t *testing.T) {
	ctx := context.Background()
	s := NewTTLStore(nil, "t:")

	ok, err := s.SetNX(ctx, "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.SetNX(ctx, "lock", "1", time.Minute)
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		n, err := s.Incr(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
}

func TestTTLStoreJSON(t *testing.T) {
	ctx := context.Background()
	s := NewTTLStore(nil, "t:")
	type payload struct {
		Day  int    `json:"day"`
		Name string `json:"name"`
	}
	require.NoError(t, s.SetJSON(ctx, "p", payload{Day: 5, Name: "Brave"}, 0))

	var got payload
	ok, err := s.GetJSON(ctx, "p", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Day: 5, Name: "Brave"}, got)

	require.NoError(t, s.Delete(ctx, "p"))
	ok, err = s.GetJSON(ctx, "p", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
