package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const transportMethodsKey = "shipping:transport-methods"

// 配送手段一覧のキャッシュ（配送APIの応答をそのまま持つ）
type TransportMethodCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewTransportMethodCache(client redis.Cmdable, ttl time.Duration) *TransportMethodCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TransportMethodCache{client: client, ttl: ttl}
}

// 無ければ ok=false。壊れた値も無い扱い
func (c *TransportMethodCache) Get(ctx context.Context) (json.RawMessage, bool, error) {
	data, err := c.client.Get(ctx, transportMethodsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	if !json.Valid(data) {
		return nil, false, nil
	}
	return json.RawMessage(data), true, nil
}

func (c *TransportMethodCache) Set(ctx context.Context, raw json.RawMessage) error {
	if err := c.client.Set(ctx, transportMethodsKey, []byte(raw), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *TransportMethodCache) Delete(ctx context.Context) error {
	if err := c.client.Del(ctx, transportMethodsKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
