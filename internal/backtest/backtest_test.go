package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/domain"
)

func testAsset() domain.Asset { return domain.Asset{ID: "BT", Class: domain.AssetClassEquity} }

func barsAt(start time.Time, prices []float64, step time.Duration) []domain.Bar {
	bars := make([]domain.Bar, len(prices))
	for i, p := range prices {
		ts := start.Add(time.Duration(i) * step)
		bars[i] = domain.Bar{Timestamp: ts, Open: p, High: p, Low: p, Close: p, Volume: 1000}
	}
	return bars
}

func TestStopLossExitMatchesLiveRiskRule(t *testing.T) {
	asset := testAsset()
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.FeeRate = 0
	cfg.SlippagePct = 0
	cfg.InitialCapital = 10000
	cfg.MaxPositionSharePct = 1.0

	series := map[string]domain.Series{
		asset.String(): {
			Asset: asset, Width: domain.Bar1m,
			Bars: barsAt(t0.Add(time.Minute), []float64{99, 95, 92, 91, 90}, time.Minute),
		},
	}
	signals := []Signal{
		{Timestamp: t0, Asset: asset, Action: domain.ActionBuy, Entry: 100, Stop: 90, Target: 120},
	}

	eng := NewEngine(cfg)
	result, err := eng.Run(series, signals)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ExitCounts.Stop)
	assert.Equal(t, 0, result.ExitCounts.Timeout)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, "close", result.Trades[1].EventType)
	assert.Equal(t, domain.CauseStopLoss, result.Trades[1].Cause)
}

func TestTakeProfitExit(t *testing.T) {
	asset := testAsset()
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.FeeRate = 0
	cfg.SlippagePct = 0
	cfg.MaxPositionSharePct = 1.0

	series := map[string]domain.Series{
		asset.String(): {
			Asset: asset, Width: domain.Bar1m,
			Bars: barsAt(t0.Add(time.Minute), []float64{108, 115, 118, 120}, time.Minute),
		},
	}
	signals := []Signal{
		{Timestamp: t0, Asset: asset, Action: domain.ActionBuy, Entry: 100, Stop: 80, Target: 120},
	}

	eng := NewEngine(cfg)
	result, err := eng.Run(series, signals)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ExitCounts.Target)
	assert.InDelta(t, 2000.0, result.FinalEquity-cfg.InitialCapital, 1e-6)
}

func TestTimeoutExit(t *testing.T) {
	asset := testAsset()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.MaxHold = 10 * time.Hour
	cfg.FeeRate = 0
	cfg.SlippagePct = 0

	prices := make([]float64, 11)
	for i := range prices {
		prices[i] = 100 + float64(i%2) // oscillates, never trips stop/target
	}
	series := map[string]domain.Series{
		asset.String(): {
			Asset: asset, Width: domain.Bar1h,
			Bars: barsAt(t0.Add(time.Hour), prices, time.Hour),
		},
	}
	signals := []Signal{
		{Timestamp: t0, Asset: asset, Action: domain.ActionBuy, Entry: 100, Stop: 50, Target: 500},
	}

	eng := NewEngine(cfg)
	result, err := eng.Run(series, signals)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCounts.Timeout)
}

func TestSignalSellClosesBeforeRiskRuleFires(t *testing.T) {
	asset := testAsset()
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.FeeRate = 0
	cfg.SlippagePct = 0

	series := map[string]domain.Series{
		asset.String(): {
			Asset: asset, Width: domain.Bar1m,
			Bars: barsAt(t0.Add(time.Minute), []float64{101, 102}, time.Minute),
		},
	}
	signals := []Signal{
		{Timestamp: t0, Asset: asset, Action: domain.ActionBuy, Entry: 100, Stop: 80, Target: 200},
		{Timestamp: t0.Add(90 * time.Second), Asset: asset, Action: domain.ActionSell, Entry: 101.5},
	}

	eng := NewEngine(cfg)
	result, err := eng.Run(series, signals)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCounts.SignalClose)
	assert.Equal(t, 0, result.ExitCounts.Stop+result.ExitCounts.Target+result.ExitCounts.Timeout)
}

func TestTradeLogCapsAndTracksDropped(t *testing.T) {
	asset := testAsset()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.MaxTradeLog = 2
	cfg.FeeRate = 0
	cfg.SlippagePct = 0
	cfg.MaxPositionSharePct = 0.01

	var signals []Signal
	var prices []float64
	for i := 0; i < 5; i++ {
		openTs := t0.Add(time.Duration(i) * time.Hour)
		closeTs := openTs.Add(time.Minute)
		signals = append(signals,
			Signal{Timestamp: openTs, Asset: asset, Action: domain.ActionBuy, Entry: 100, Stop: 50, Target: 500},
			Signal{Timestamp: closeTs, Asset: asset, Action: domain.ActionSell, Entry: 100},
		)
		prices = append(prices, 100)
	}
	series := map[string]domain.Series{
		asset.String(): {Asset: asset, Width: domain.Bar1h, Bars: barsAt(t0, prices, time.Hour)},
	}

	eng := NewEngine(cfg)
	result, err := eng.Run(series, signals)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Trades), cfg.MaxTradeLog)
	assert.Greater(t, result.DroppedTradeCount, 0)
}
