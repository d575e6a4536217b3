// Package marketdata implements the Market Data Fan-In (C1): a uniform
// quote/series interface over per-asset-class adapter chains, with
// per-adapter rate limiting, ordered failover and currency normalization.
// Grounded on SynapseStrike's provider/data_provider.go (synchronous
// adapter contract) and provider/alpaca_stock_data.go (poll-only equity
// adapter), generalized to a class-agnostic Adapter interface with an
// ordered fallback chain instead of one hardcoded broker.
package marketdata

import (
	"context"
	"time"

	"github.com/axiomtrader/assistant/internal/domain"
)

// Adapter is a single market-data source for one or more asset classes.
type Adapter interface {
	Name() string
	Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error)
	Series(ctx context.Context, asset domain.Asset, width domain.BarWidth, count int) (domain.Series, error)
}

// Subscriber is implemented by adapters that support streaming updates
// (spec.md's optional subscribe(asset, callback)). Not all adapters support
// it — equity adapters in this assistant are poll-only, matching Alpaca's
// REST-only historical/quote surface.
type Subscriber interface {
	Subscribe(ctx context.Context, asset domain.Asset, callback func(domain.Quote)) error
}

// StalenessLimit is the maximum age at which a last-known-good Quote is
// still returned (tagged with its Age) instead of failing with
// apperr.SourceUnavailable.
const StalenessLimit = 2 * time.Minute
