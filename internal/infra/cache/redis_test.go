package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*TransportMethodCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewTransportMethodCache(client, time.Minute), mr
}

func TestGet_Miss(t *testing.T) {
	c, _ := setupTestRedis(t)

	_, ok, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetThenGet(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	raw := json.RawMessage(`[{"type":"air"},{"type":"road"}]`)
	require.NoError(t, c.Set(ctx, raw))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(raw), string(got))

	assert.Equal(t, time.Minute, mr.TTL(transportMethodsKey))
}

func TestGet_Expired(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, json.RawMessage(`[]`)))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_CorruptValueIsMiss(t *testing.T) {
	c, mr := setupTestRedis(t)

	require.NoError(t, mr.Set(transportMethodsKey, "{not json"))

	_, ok, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_RedisDown(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	_, ok, err := c.Get(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, json.RawMessage(`[]`)))
	require.NoError(t, c.Delete(ctx))
	assert.False(t, mr.Exists(transportMethodsKey))
}
