package marketdata

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/obs"
)

// limitedAdapter pairs an Adapter with its own token bucket, sized from the
// adapter's documented quota minus a safety margin (caller-supplied).
type limitedAdapter struct {
	Adapter
	limiter *rate.Limiter
}

// Chain is an ordered list of adapters, tried in order for any asset
// regardless of its class, plus the last-known-good cache used for
// staleness fallback.
type Chain struct {
	mu       sync.Mutex
	adapters []limitedAdapter
	lastGood map[string]cachedQuote
}

type cachedQuote struct {
	quote domain.Quote
	at    time.Time
}

// NewChain builds a failover chain from adapters in priority order. rps/burst
// configure each adapter's token bucket identically; there is no
// per-adapter override.
func NewChain(adapters []Adapter, rps float64, burst int) *Chain {
	c := &Chain{lastGood: make(map[string]cachedQuote)}
	for _, a := range adapters {
		c.adapters = append(c.adapters, limitedAdapter{Adapter: a, limiter: rate.NewLimiter(rate.Limit(rps), burst)})
	}
	return c
}

// Quote tries each adapter in order, returning the first success. On total
// failure, it falls back to the cached last-known-good quote if within
// StalenessLimit; otherwise returns apperr.SourceUnavailable.
func (c *Chain) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	log := obs.Component("marketdata")
	var lastErr error

	for _, a := range c.adapters {
		if err := a.limiter.Wait(ctx); err != nil {
			lastErr = apperr.Wrap(apperr.TransientUpstream, "rate limit wait on %s: %v", a.Name(), err)
			log.Warn().Str("adapter", a.Name()).Err(err).Msg("rate limiter wait failed")
			continue
		}
		q, err := a.Quote(ctx, asset)
		if err != nil {
			lastErr = err
			log.Warn().Str("adapter", a.Name()).Str("asset", asset.String()).Err(err).Msg("adapter quote failed, trying next")
			continue
		}
		q.Adapter = a.Name()
		c.mu.Lock()
		c.lastGood[asset.String()] = cachedQuote{quote: q, at: time.Now()}
		c.mu.Unlock()
		return q, nil
	}

	c.mu.Lock()
	cached, ok := c.lastGood[asset.String()]
	c.mu.Unlock()
	if ok && time.Since(cached.at) <= StalenessLimit {
		stale := cached.quote
		stale.Age = time.Since(cached.at)
		return stale, nil
	}

	if lastErr == nil {
		lastErr = apperr.SourceUnavailable
	}
	return domain.Quote{}, apperr.Wrap(apperr.SourceUnavailable, "all adapters exhausted for %s: %v", asset, lastErr)
}

// Series tries each adapter in order, returning the first success with no
// staleness fallback (a partial historical series is not safe to reuse).
func (c *Chain) Series(ctx context.Context, asset domain.Asset, width domain.BarWidth, count int) (domain.Series, error) {
	log := obs.Component("marketdata")
	var lastErr error

	for _, a := range c.adapters {
		if err := a.limiter.Wait(ctx); err != nil {
			lastErr = apperr.Wrap(apperr.TransientUpstream, "rate limit wait on %s: %v", a.Name(), err)
			continue
		}
		s, err := a.Series(ctx, asset, width, count)
		if err != nil {
			lastErr = err
			log.Warn().Str("adapter", a.Name()).Str("asset", asset.String()).Err(err).Msg("adapter series failed, trying next")
			continue
		}
		return s, nil
	}
	if lastErr == nil {
		lastErr = apperr.SourceUnavailable
	}
	return domain.Series{}, apperr.Wrap(apperr.SourceUnavailable, "all adapters exhausted for %s series: %v", asset, lastErr)
}
