package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
)

type fakeAdapter struct {
	name  string
	quote domain.Quote
	err   error
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return f.quote, nil
}
func (f *fakeAdapter) Series(ctx context.Context, asset domain.Asset, width domain.BarWidth, count int) (domain.Series, error) {
	return domain.Series{}, nil
}

func testAsset() domain.Asset { return domain.Asset{ID: "X", Class: domain.AssetClassEquity} }

func TestChainFallsBackToSecondAdapter(t *testing.T) {
	failing := &fakeAdapter{name: "primary", err: apperr.TransientUpstream}
	ok := &fakeAdapter{name: "secondary", quote: domain.Quote{Asset: testAsset(), Price: 42}}

	chain := NewChain([]Adapter{failing, ok}, 100, 10)
	q, err := chain.Quote(context.Background(), testAsset())
	require.NoError(t, err)
	assert.Equal(t, 42.0, q.Price)
	assert.Equal(t, "secondary", q.Adapter)
}

func TestChainFallsBackToLastKnownGoodWithinStaleness(t *testing.T) {
	ok := &fakeAdapter{name: "primary", quote: domain.Quote{Asset: testAsset(), Price: 10}}
	chain := NewChain([]Adapter{ok}, 100, 10)

	_, err := chain.Quote(context.Background(), testAsset())
	require.NoError(t, err)

	failing := &fakeAdapter{name: "primary", err: apperr.TransientUpstream}
	chain.adapters[0] = limitedAdapter{Adapter: failing, limiter: chain.adapters[0].limiter}

	q, err := chain.Quote(context.Background(), testAsset())
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.Price)
	assert.Greater(t, q.Age, time.Duration(0))
}

func TestChainFailsWhenNoCacheAndAllAdaptersFail(t *testing.T) {
	failing := &fakeAdapter{name: "primary", err: apperr.SourceUnavailable}
	chain := NewChain([]Adapter{failing}, 100, 10)

	_, err := chain.Quote(context.Background(), testAsset())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.SourceUnavailable)
}

func TestCurrencyCacheFallsBackToStaticTable(t *testing.T) {
	cache := NewCurrencyCache(func(ctx context.Context) (map[string]float64, error) {
		return map[string]float64{"EUR": 1.10}, nil
	})
	// Never refreshed: should use the static fallback.
	converted, approx := cache.Convert(100, "EUR")
	assert.True(t, approx)
	assert.InDelta(t, 108.0, converted, 1e-9)
}

func TestCurrencyCacheUsesFreshRatesAfterRefresh(t *testing.T) {
	cache := NewCurrencyCache(func(ctx context.Context) (map[string]float64, error) {
		return map[string]float64{"EUR": 1.10}, nil
	})
	require.NoError(t, cache.Refresh(context.Background()))

	converted, approx := cache.Convert(100, "EUR")
	assert.False(t, approx)
	assert.InDelta(t, 110.0, converted, 1e-9)
}

func TestCurrencyCacheUnknownCurrencyIsApproximate(t *testing.T) {
	cache := NewCurrencyCache(func(ctx context.Context) (map[string]float64, error) {
		return map[string]float64{}, nil
	})
	require.NoError(t, cache.Refresh(context.Background()))

	converted, approx := cache.Convert(50, "ZZZ")
	assert.True(t, approx)
	assert.Equal(t, 50.0, converted)
}
