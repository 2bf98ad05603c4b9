package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenCache is a TokenCache shared by processes through Redis. Entries
// expire with their token; tokens without expiry are kept for DefaultTTL.
type RedisTokenCache struct {
	rdb        *redis.Client
	prefix     string
	DefaultTTL time.Duration
}

// NewRedisTokenCache returns a cache storing tokens under prefix.
func NewRedisTokenCache(rdb *redis.Client, prefix string) *RedisTokenCache {
	if prefix == "" {
		prefix = "integrations:token:"
	}
	return &RedisTokenCache{rdb: rdb, prefix: prefix, DefaultTTL: time.Hour}
}

// Get implements TokenCache.
func (c *RedisTokenCache) Get(ctx context.Context, key string) (Token, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("redis token cache: get %s: %w", key, err)
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, false, fmt.Errorf("redis token cache: decode %s: %w", key, err)
	}
	return tok, true, nil
}

// Set implements TokenCache.
func (c *RedisTokenCache) Set(ctx context.Context, key string, tok Token) error {
	ttl := c.DefaultTTL
	if !tok.ExpiresAt.IsZero() {
		ttl = time.Until(tok.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("redis token cache: encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis token cache: set %s: %w", key, err)
	}
	return nil
}

// Delete implements TokenCache.
func (c *RedisTokenCache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis token cache: delete %s: %w", key, err)
	}
	return nil
}
