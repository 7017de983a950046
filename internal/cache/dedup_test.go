package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDedup(t *testing.T) (*RedisDedup, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	dedup, err := NewRedisDedup(context.Background(), RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { dedup.Close() })
	return dedup, mr
}

func TestRedisDedup(t *testing.T) {
	dedup, mr := newTestDedup(t)
	ctx := context.Background()

	_, found, err := dedup.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, dedup.Remember(ctx, "abc", "report-1"))
	require.NoError(t, dedup.Remember(ctx, "abc", "report-2"))

	id, found, err := dedup.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "report-1", id, "first mapping wins")

	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"abc"))

	require.NoError(t, dedup.Forget(ctx, "abc"))
	_, found, err = dedup.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, dedup.Remember(ctx, "abc", "report-2"))
	id, found, err = dedup.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "report-2", id, "a forgotten hash takes a new mapping")
}

func TestRedisDedupExpiry(t *testing.T) {
	dedup, mr := newTestDedup(t)
	ctx := context.Background()

	require.NoError(t, dedup.Remember(ctx, "h", "r"))
	mr.FastForward(2 * time.Hour)

	_, found, err := dedup.Lookup(ctx, "h")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRedisDedupUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisDedup(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
