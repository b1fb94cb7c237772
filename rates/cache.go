// Package rates supplies USD conversion rates with bounded staleness. Lookups
// check the in-memory tier, then the persistent store, then the external
// price source, writing through on the way back. A fetch failure degrades to
// a rate of 1 so that payment creation never blocks on price-feed
// availability.
package rates

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
	"golang.org/x/sync/singleflight"
)

// Cache is the in-memory tier plus the refresh machinery.
type Cache struct {
	mu      sync.RWMutex
	entries map[types.Currency]types.RateEntry

	store  RateStore
	source Source
	ttl    time.Duration

	group singleflight.Group
	now   func() time.Time

	log logger.Logger
	rec metrics.Recorder
}

// NewCache creates a rate cache with the given TTL for both tiers.
func NewCache(store RateStore, source Source, ttl time.Duration, log logger.Logger, rec metrics.Recorder) *Cache {
	return &Cache{
		entries: make(map[types.Currency]types.RateEntry),
		store:   store,
		source:  source,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
		rec:     rec,
	}
}

// SetNow overrides the clock, for tests.
func (c *Cache) SetNow(now func() time.Time) {
	c.now = now
}

// GetRate returns the currency's USD rate. It never returns an error: on any
// fetch failure it logs, counts the fallback, and returns 1 so the caller's
// USD amount degrades instead of failing.
func (c *Cache) GetRate(ctx context.Context, currency types.Currency) decimal.Decimal {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[currency]
	c.mu.RUnlock()
	if ok && now.Sub(entry.UpdatedAt) < c.ttl {
		return entry.USDRate
	}

	if stored, ok := c.store.Get(currency); ok && now.Sub(stored.UpdatedAt) < c.ttl {
		c.remember(*stored)
		return stored.USDRate
	}

	// Concurrent misses for the same currency share one upstream fetch.
	v, err, _ := c.group.Do(string(currency), func() (interface{}, error) {
		rate, err := c.source.FetchRate(ctx, currency)
		if err != nil {
			return decimal.Zero, err
		}

		fresh := types.RateEntry{Currency: currency, USDRate: rate, UpdatedAt: c.now()}
		c.store.Upsert(fresh)
		c.remember(fresh)
		return rate, nil
	})
	if err != nil {
		c.log.Warn("rate fetch failed, falling back to 1", map[string]any{
			"currency": currency,
			"error":    err.Error(),
		})
		c.rec.IncCounter("rate_fallbacks", map[string]string{"currency": string(currency)})
		return decimal.NewFromInt(1)
	}

	return v.(decimal.Decimal)
}

// RefreshAll proactively refreshes every supported currency so the
// synchronous path usually hits a warm cache.
func (c *Cache) RefreshAll(ctx context.Context) {
	for currency := range types.SupportedCurrencies {
		rate, err := c.source.FetchRate(ctx, currency)
		if err != nil {
			c.log.Warn("rate refresh failed", map[string]any{
				"currency": currency,
				"error":    err.Error(),
			})
			continue
		}

		fresh := types.RateEntry{Currency: currency, USDRate: rate, UpdatedAt: c.now()}
		c.store.Upsert(fresh)
		c.remember(fresh)
	}
}

// Run refreshes all rates on the TTL cadence until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	c.RefreshAll(ctx)

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshAll(ctx)
		}
	}
}

func (c *Cache) remember(entry types.RateEntry) {
	c.mu.Lock()
	c.entries[entry.Currency] = entry
	c.mu.Unlock()
}
