package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"portfolio-systemv1/internal/marketdays"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const (
	// Quotes go stale fast intraday, but a post-close price is good
	// until the next session opens.
	openTTL   = 1 * time.Minute
	closedTTL = 6 * time.Hour
)

// CacheConfig configures the Redis quote cache.
type CacheConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache wraps an Oracle and memoizes live quotes in Redis under
// quote:<SYMBOL> keys. Historical closes are passed through untouched.
// If Redis is unavailable the cache degrades to the inner oracle.
type Cache struct {
	inner  Oracle
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// NewCache creates a quote cache and pings Redis.
func NewCache(cfg CacheConfig, inner Oracle) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[pricecache] connected to %s", cfg.Addr)
	return &Cache{inner: inner, client: client}, nil
}

type cachedQuote struct {
	Price string    `json:"price"`
	AsOf  time.Time `json:"as_of"`
}

func quoteKey(symbol string) string { return "quote:" + symbol }

// Current serves quotes from Redis where possible and fetches the
// misses from the inner oracle in one batch call.
func (c *Cache) Current(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	missed := make([]string, 0, len(symbols))

	for _, sym := range symbols {
		q, ok := c.lookup(ctx, sym)
		if ok {
			out[sym] = q
		} else {
			missed = append(missed, sym)
		}
	}
	if len(missed) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Current(ctx, missed)
	if err != nil {
		if len(out) > 0 {
			// partial result beats no result
			return out, nil
		}
		return nil, err
	}
	for sym, q := range fresh {
		out[sym] = q
		c.store(ctx, sym, q)
	}
	return out, nil
}

// Historical passes through to the inner oracle.
func (c *Cache) Historical(ctx context.Context, symbol string, from, to time.Time) ([]Close, error) {
	return c.inner.Historical(ctx, symbol, from, to)
}

func (c *Cache) lookup(ctx context.Context, symbol string) (Quote, bool) {
	raw, err := c.client.Get(ctx, quoteKey(symbol)).Result()
	if err != nil {
		if err != goredis.Nil && ctx.Err() == nil {
			log.Printf("[pricecache] get %s: %v", symbol, err)
		}
		return Quote{}, false
	}
	var cq cachedQuote
	if err := json.Unmarshal([]byte(raw), &cq); err != nil {
		return Quote{}, false
	}
	price, err := decimal.NewFromString(cq.Price)
	if err != nil || !price.IsPositive() {
		return Quote{}, false
	}
	// A quote from before the last session close is no longer current.
	if cq.AsOf.Before(marketdays.LastClose(time.Now())) && marketdays.IsMarketOpen(time.Now()) {
		return Quote{}, false
	}
	return Quote{Symbol: symbol, Price: price, AsOf: cq.AsOf}, true
}

func (c *Cache) store(ctx context.Context, symbol string, q Quote) {
	ttl := closedTTL
	if marketdays.IsMarketOpen(time.Now()) {
		ttl = openTTL
	}
	raw, err := json.Marshal(cachedQuote{Price: q.Price.String(), AsOf: q.AsOf})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, quoteKey(symbol), raw, ttl).Err(); err != nil && ctx.Err() == nil {
		log.Printf("[pricecache] set %s: %v", symbol, err)
	}
}
