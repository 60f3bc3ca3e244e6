package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/router"
	"github.com/vaultloop/dca-engine/internal/types"
)

// QuoteCache is a short-TTL redis cache for preview quotes. Executions
// always re-quote; only the preview endpoint reads from here.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewQuoteCache(rdb *redis.Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: rdb, ttl: ttl}
}

func quoteKey(source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16) string {
	return fmt.Sprintf("quote:%s:%s:%d:%d", source, target, amountIn, slippageBps)
}

// GetQuote returns the cached quote, or nil on a miss.
func (c *QuoteCache) GetQuote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16) (*router.Quote, error) {
	raw, err := c.rdb.Get(ctx, quoteKey(source, target, amountIn, slippageBps)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail to get cached quote: %w", err)
	}
	var q router.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("fail to decode cached quote: %w", err)
	}
	return &q, nil
}

func (c *QuoteCache) SetQuote(ctx context.Context, source, target types.AssetID, amountIn fixedpoint.Amount, slippageBps uint16, q router.Quote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("fail to encode quote: %w", err)
	}
	if err := c.rdb.Set(ctx, quoteKey(source, target, amountIn, slippageBps), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("fail to cache quote: %w", err)
	}
	return nil
}
