package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketsync/marketsync/internal/domain"
)

// defaultMarketTTL bounds staleness when no TTL is configured.
const defaultMarketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache with JSON values under
// market:{id} keys. Entries expire after the configured TTL so a market
// that stops being polled eventually falls out of the cache on its own.
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A zero or
// negative ttl selects the default of five minutes.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

var _ domain.MarketCache = (*MarketCache)(nil)

func marketKey(id string) string { return "market:" + id }

// Set stores a market record, replacing any previous entry.
func (mc *MarketCache) Set(ctx context.Context, m domain.MarketRecord) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.MarketID, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(m.MarketID), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.MarketID, err)
	}
	return nil
}

// Get retrieves a market record by ID. It returns domain.ErrNotFound when
// the entry does not exist or has expired.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.MarketRecord, error) {
	data, err := mc.rdb.Get(ctx, marketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketRecord{}, domain.ErrNotFound
		}
		return domain.MarketRecord{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var m domain.MarketRecord
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return m, nil
}

// Invalidate removes cached entries for the given market IDs. Missing keys
// are not an error, so invalidating after an upsert is always safe.
func (mc *MarketCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = marketKey(id)
	}
	if err := mc.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate %d markets: %w", len(ids), err)
	}
	return nil
}
