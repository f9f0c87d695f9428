package redisx

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestClaim_FirstWins(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	key := fmt.Sprintf(KeyDedupSettlement, "ref-1")

	ok, err := Claim(ctx, rdb, key, "sig-a", TTLDedup)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Claim(ctx, rdb, key, "sig-b", TTLDedup)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "sig-a", got)
	assert.Equal(t, TTLDedup, mr.TTL(key))
}

func TestClaim_ExpiresAndRelease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	key := fmt.Sprintf(KeyDedup, "audit", "evt-1")

	ok, err := Claim(ctx, rdb, key, "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	exists, err := Exists(ctx, rdb, key)
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = Claim(ctx, rdb, key, "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, Release(ctx, rdb, key))

	ok, err = Claim(ctx, rdb, key, "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaim_ServerDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	_, err := Claim(context.Background(), rdb, "k", "v", time.Minute)
	assert.Error(t, err)
}
