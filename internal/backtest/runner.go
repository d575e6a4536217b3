package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/indicator"
	"github.com/axiomtrader/assistant/internal/pipeline"
	"github.com/axiomtrader/assistant/internal/position"
)

// IndicatorParams configures the sliding-window indicator computation a
// named backtest run uses to feed each strategy, mirroring the live
// pipeline's cadence parameters (internal/pipeline.IndicatorParams) so a
// strategy sees the same shape of snapshot in both paths.
type IndicatorParams struct {
	VolumeWindow    int
	SessionBars     int
	BreakoutEpsilon float64
	WarmupBars      int // minimum bars before a strategy is evaluated
}

// DefaultIndicatorParams mirrors SPEC_FULL.md's default cadence parameters.
func DefaultIndicatorParams() IndicatorParams {
	return IndicatorParams{VolumeWindow: 20, SessionBars: 78, BreakoutEpsilon: 0.001, WarmupBars: 50}
}

// HistorySource supplies the historical bar series a named run replays,
// bounded by a wall-clock date range rather than a fixed bar count (a
// backtest needs "last 30 days", not "last N bars").
type HistorySource interface {
	Series(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.Series, error)
}

// NamedRunner resolves a strategy name and a configured asset universe into
// a signal stream, then replays it through Engine — the glue the
// Conversation Router's run_backtest intent dispatches onto.
type NamedRunner struct {
	history    HistorySource
	universe   []domain.Asset
	strategies map[string]pipeline.Strategy
	indParams  IndicatorParams
	riskConfig position.RiskConfig
}

// NewNamedRunner builds a runner over a fixed asset universe and named
// strategy set (typically internal/pipeline.DefaultStrategies(), keyed by
// Name()). riskConfig is the same asset-class risk config the live
// Position Tracker is built with (config.Risk, converted at wiring time) —
// RunWithCapital applies it as the force-close rule, so a backtest and a
// live replay of the same signal stream exit at the same threshold
// (spec.md §4.6, "enforced identically in live and backtest").
func NewNamedRunner(history HistorySource, universe []domain.Asset, strategies []pipeline.Strategy, indParams IndicatorParams, riskConfig position.RiskConfig) *NamedRunner {
	byName := make(map[string]pipeline.Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return &NamedRunner{history: history, universe: universe, strategies: byName, indParams: indParams, riskConfig: riskConfig}
}

// Run fetches the universe's series for [from, to], generates a signal
// stream from the named strategy's votes, and replays it through a fresh
// Engine built from cfg.
func (r *NamedRunner) Run(ctx context.Context, strategyName string, from, to time.Time, cfg Config) (Result, error) {
	strategy, ok := r.strategies[strategyName]
	if !ok {
		return Result{}, apperr.Wrap(apperr.ValidationError, "unknown strategy %q", strategyName)
	}

	series := make(map[string]domain.Series, len(r.universe))
	var signals []Signal
	for _, asset := range r.universe {
		s, err := r.history.Series(ctx, asset, from, to)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.TransientUpstream, "fetching history for %s: %v", asset, err)
		}
		series[asset.String()] = s
		signals = append(signals, r.generateSignals(asset, s, strategy)...)
	}

	return NewEngine(cfg).Run(series, signals)
}

// generateSignals walks one asset's bar series with a growing window,
// computing an indicator snapshot and the strategy's vote at each bar past
// WarmupBars, emitting a signal at every bar whose vote is buy or sell with
// non-zero weight (the Engine itself refuses duplicate opens, so a strategy
// that keeps voting the same way simply produces signals the Engine ignores).
func (r *NamedRunner) generateSignals(asset domain.Asset, series domain.Series, strategy pipeline.Strategy) []Signal {
	var signals []Signal
	bars := series.Bars
	for i := r.indParams.WarmupBars; i < len(bars); i++ {
		window := bars[:i+1]
		snap := indicator.Snapshot(asset, window, nil, r.indParams.VolumeWindow, r.indParams.SessionBars, r.indParams.BreakoutEpsilon)
		bar := bars[i]
		quote := domain.Quote{Asset: asset, Price: bar.Close, Timestamp: bar.Timestamp}

		vote := strategy.Evaluate(snap, quote)
		if vote.Weight == 0 || vote.Action == domain.ActionHold {
			continue
		}

		stop := bar.Close * (1 + vote.StopLossPct)
		target := bar.Close
		if len(vote.TakeProfitTiers) > 0 {
			target = bar.Close * (1 + vote.TakeProfitTiers[len(vote.TakeProfitTiers)-1])
		}

		signals = append(signals, Signal{
			Timestamp: bar.Timestamp,
			Asset:     asset,
			Action:    vote.Action,
			Entry:     bar.Close,
			Stop:      stop,
			Target:    target,
		})
	}
	return signals
}

// RunWithCapital is a convenience wrapper over Run for callers (the
// Conversation Router's wiring) that only want to vary initial capital and
// otherwise accept DefaultConfig's economic assumptions.
func (r *NamedRunner) RunWithCapital(ctx context.Context, strategyName string, from, to time.Time, initialCapital float64) (Result, error) {
	cfg := DefaultConfig()
	cfg.InitialCapital = initialCapital
	cfg.RiskConfig = r.riskConfig
	cfg.MaxHold = r.riskConfig.MaxHold
	return r.Run(ctx, strategyName, from, to, cfg)
}

// NamedRunResult is the rendering-friendly subset of Result the
// Conversation Router presents to a user, named distinctly from Result so
// callers needn't depend on the full engine report shape.
type NamedRunResult struct {
	FinalEquity float64
	TotalReturn float64
	WinRate     float64
	Sharpe      float64
	MaxDrawdown float64
}

func (r NamedRunResult) String() string {
	return fmt.Sprintf("equity=%.2f return=%.2f%% win_rate=%.1f%% sharpe=%.2f drawdown=%.2f%%",
		r.FinalEquity, r.TotalReturn*100, r.WinRate*100, r.Sharpe, r.MaxDrawdown*100)
}
