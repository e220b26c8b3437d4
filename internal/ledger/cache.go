package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "ledger:statement:version"

// StatementCache caches main-account statements in Redis behind a version
// counter; every ledger write bumps the version so stale listings are never
// served.
type StatementCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatementCache instantiates the cache helper.
func NewStatementCache(client *redis.Client, ttl time.Duration) *StatementCache {
	return &StatementCache{client: client, ttl: ttl}
}

func (c *StatementCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *StatementCache) key(ctx context.Context, filter StatementFilter) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:statement:%d:%d:%d:%d:%t", filter.From.Unix(), filter.To.Unix(), filter.Limit, ver, filter.Ascending), nil
}

// Fetch loads a cached statement or populates it via loader. Cache failures
// fall through to the loader so reads never depend on Redis availability.
func (c *StatementCache) Fetch(ctx context.Context, filter StatementFilter, loader func(context.Context) (Statement, error)) (Statement, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, filter)
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached Statement
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}
	statement, err := loader(ctx)
	if err != nil {
		return Statement{}, err
	}
	if raw, err := json.Marshal(statement); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return statement, nil
}

// Bump invalidates every cached statement by incrementing the version.
func (c *StatementCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
