package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/pipeline"
	"github.com/axiomtrader/assistant/internal/position"
)

// alwaysBuyTightStop is a strategy stub whose own StopLossPct (-6%) is far
// tighter than the fixed asset-class risk config's force-close threshold
// (-10%), so a test driving it through NamedRunner can tell the two apart.
type alwaysBuyTightStop struct{}

func (alwaysBuyTightStop) Name() string { return "always_buy_tight_stop" }

// Evaluate always votes buy; Engine.Run ignores a buy signal while a lot is
// already open for the asset, so this still only opens one position.
func (alwaysBuyTightStop) Evaluate(_ domain.Snapshot, _ domain.Quote) pipeline.Vote {
	return pipeline.Vote{Action: domain.ActionBuy, Weight: 1, StopLossPct: -0.06, TakeProfitTiers: []float64{0.04}}
}

type staticHistory struct {
	series domain.Series
}

func (h staticHistory) Series(_ context.Context, _ domain.Asset, _, _ time.Time) (domain.Series, error) {
	return h.series, nil
}

// TestForceCloseUsesFixedRiskConfigNotStrategyStop drives a real Strategy's
// vote through NamedRunner with a price path that dips past the strategy's
// own -6% stop but stays above the fixed risk config's -10% stop. The
// position must stay open (live and backtest must force-close at the same
// threshold, spec.md §4.6), proving the engine no longer derives the
// force-close rule from the strategy's own StopLossPct.
func TestForceCloseUsesFixedRiskConfigNotStrategyStop(t *testing.T) {
	asset := testAsset()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Entry at 100, then a dip to 93 (-7%, past the strategy's own -6% stop
	// but short of the fixed risk config's -10% stop), then a recovery.
	prices := []float64{100, 100, 93, 96, 100, 102}
	series := domain.Series{
		Asset: asset, Width: domain.Bar1h,
		Bars: barsAt(t0, prices, time.Hour),
	}

	risk := position.RiskConfig{
		StopWarningPct: -0.08,
		StopLossPct:    -0.10,
		MajorGainPct:   0.15,
		TakeProfitPct:  0.20,
		MaxHold:        100 * time.Hour,
	}

	runner := NewNamedRunner(
		staticHistory{series: series},
		[]domain.Asset{asset},
		[]pipeline.Strategy{alwaysBuyTightStop{}},
		IndicatorParams{VolumeWindow: 2, SessionBars: 2, BreakoutEpsilon: 0.001, WarmupBars: 0},
		risk,
	)

	result, err := runner.RunWithCapital(context.Background(), "always_buy_tight_stop", t0, t0.Add(6*time.Hour), 10000)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCounts.Stop, "a -7% dip must not force-close against the strategy's own -6% stop")
}
