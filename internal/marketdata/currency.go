package marketdata

import (
	"context"
	"sync"
	"time"
)

// RateProvider fetches a fresh currency conversion rate table. Implementations
// typically call an external FX API; out of scope per spec.md §1, so only
// the interface is specified here.
type RateProvider func(ctx context.Context) (map[string]float64, error)

// staticFallbackRates is the hard-coded table used when the refreshed cache
// is empty or older than MaxCacheAge. Rates are "units of display currency
// per 1 unit of native currency," USD as display currency.
var staticFallbackRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"JPY": 0.0067,
	"KRW": 0.00073,
}

// MaxCacheAge is the staleness horizon past which the refreshed cache is
// considered unusable and the static fallback table is used instead.
const MaxCacheAge = 2 * time.Hour

// RefreshInterval is how often CurrencyCache should be refreshed (spec.md
// §4.1: "a rate cache is refreshed hourly").
const RefreshInterval = time.Hour

// CurrencyCache holds a periodically refreshed FX rate table with a static
// fallback, so normalization never hard-fails.
type CurrencyCache struct {
	mu         sync.RWMutex
	rates      map[string]float64
	lastUpdate time.Time
	provider   RateProvider
}

// NewCurrencyCache constructs an empty cache; call Refresh once at startup
// and then on a RefreshInterval schedule (internal/supervisor owns that
// scheduling via robfig/cron).
func NewCurrencyCache(provider RateProvider) *CurrencyCache {
	return &CurrencyCache{provider: provider}
}

// Refresh fetches a new rate table from the provider.
func (c *CurrencyCache) Refresh(ctx context.Context) error {
	rates, err := c.provider(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = rates
	c.lastUpdate = time.Now()
	return nil
}

// Convert returns the display-currency value of amount in the given native
// currency, and whether the result is approximate (static fallback used).
func (c *CurrencyCache) Convert(amount float64, nativeCurrency string) (converted float64, approximate bool) {
	c.mu.RLock()
	rates := c.rates
	fresh := !c.lastUpdate.IsZero() && time.Since(c.lastUpdate) <= MaxCacheAge
	c.mu.RUnlock()

	if fresh {
		if rate, ok := rates[nativeCurrency]; ok {
			return amount * rate, false
		}
	}
	rate, ok := staticFallbackRates[nativeCurrency]
	if !ok {
		return amount, true
	}
	return amount * rate, true
}
