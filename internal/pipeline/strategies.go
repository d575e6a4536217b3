package pipeline

import "github.com/axiomtrader/assistant/internal/domain"

// IntradayBreakout votes buy/sell on the indicator engine's own breakout
// flags, carrying a wide stop and a single take-profit tier.
type IntradayBreakout struct{}

func (IntradayBreakout) Name() string { return "intraday_breakout" }

func (IntradayBreakout) Evaluate(snap domain.Snapshot, _ domain.Quote) Vote {
	switch {
	case snap.IntradayBreakUp:
		return Vote{Action: domain.ActionBuy, Weight: 1, StopLossPct: -0.06, TakeProfitTiers: []float64{0.04}, MaxHoldSeconds: 4 * 3600}
	case snap.IntradayBreakDn:
		return Vote{Action: domain.ActionSell, Weight: 1, StopLossPct: -0.06, TakeProfitTiers: []float64{0.04}, MaxHoldSeconds: 4 * 3600}
	default:
		return Vote{Action: domain.ActionHold}
	}
}

// FastMACross votes on the fast/slow MA crossover direction, filtered by the
// standard RSI so it doesn't chase an already-extended move.
type FastMACross struct {
	Fast, Slow int
}

func NewFastMACross() FastMACross { return FastMACross{Fast: 5, Slow: 20} }

func (FastMACross) Name() string { return "fast_ma_cross_rsi_filter" }

func (s FastMACross) Evaluate(snap domain.Snapshot, _ domain.Quote) Vote {
	fast, fastOK := snap.MAs[s.Fast]
	slow, slowOK := snap.MAs[s.Slow]
	if !fastOK || !slowOK || !fast.Present || !slow.Present || !snap.StandardRSI.Present {
		return Vote{Action: domain.ActionHold}
	}
	switch {
	case fast.Value > slow.Value && snap.StandardRSI.Value < 70:
		return Vote{Action: domain.ActionBuy, Weight: 0.8, StopLossPct: -0.05, TakeProfitTiers: []float64{0.03, 0.06}, MaxHoldSeconds: 8 * 3600}
	case fast.Value < slow.Value && snap.StandardRSI.Value > 30:
		return Vote{Action: domain.ActionSell, Weight: 0.8, StopLossPct: -0.05, TakeProfitTiers: []float64{0.03, 0.06}, MaxHoldSeconds: 8 * 3600}
	default:
		return Vote{Action: domain.ActionHold}
	}
}

// MomentumReversal looks for an oversold RSI paired with a volume surge —
// a bounce candidate — and the symmetric overbought+volume case for sell.
type MomentumReversal struct{}

func (MomentumReversal) Name() string { return "momentum_reversal" }

func (MomentumReversal) Evaluate(snap domain.Snapshot, _ domain.Quote) Vote {
	if !snap.FastRSI.Present || !snap.VolumeZScore.Present {
		return Vote{Action: domain.ActionHold}
	}
	switch {
	case snap.FastRSI.Value <= 25 && snap.VolumeZScore.Value >= 2:
		return Vote{Action: domain.ActionBuy, Weight: 0.7, StopLossPct: -0.07, TakeProfitTiers: []float64{0.05}, MaxHoldSeconds: 6 * 3600}
	case snap.FastRSI.Value >= 75 && snap.VolumeZScore.Value >= 2:
		return Vote{Action: domain.ActionSell, Weight: 0.7, StopLossPct: -0.07, TakeProfitTiers: []float64{0.05}, MaxHoldSeconds: 6 * 3600}
	default:
		return Vote{Action: domain.ActionHold}
	}
}

// OrderFlowAnomaly trades the direction implied by order-book imbalance,
// only when it is strongly skewed.
type OrderFlowAnomaly struct{}

func (OrderFlowAnomaly) Name() string { return "order_flow_anomaly" }

func (OrderFlowAnomaly) Evaluate(snap domain.Snapshot, _ domain.Quote) Vote {
	if !snap.BookImbalance.Present {
		return Vote{Action: domain.ActionHold}
	}
	switch {
	case snap.BookImbalance.Value >= 0.70:
		return Vote{Action: domain.ActionBuy, Weight: 0.6, StopLossPct: -0.04, TakeProfitTiers: []float64{0.02}, MaxHoldSeconds: 2 * 3600}
	case snap.BookImbalance.Value <= 0.30:
		return Vote{Action: domain.ActionSell, Weight: 0.6, StopLossPct: -0.04, TakeProfitTiers: []float64{0.02}, MaxHoldSeconds: 2 * 3600}
	default:
		return Vote{Action: domain.ActionHold}
	}
}

// NewsDrivenMomentum votes off an externally supplied news-sentiment score
// (news/RSS scraping itself is out of scope per spec.md §1; this strategy
// only consumes a score someone else computed and attached to the tick).
type NewsDrivenMomentum struct {
	// Score returns a sentiment score in [-1, 1] for the asset, or false if
	// no recent news exists. Out-of-process news ingestion is the caller's
	// concern; this strategy is a pure consumer of whatever it returns.
	Score func(asset domain.Asset) (float64, bool)
}

func (NewsDrivenMomentum) Name() string { return "news_driven_momentum" }

func (s NewsDrivenMomentum) Evaluate(snap domain.Snapshot, _ domain.Quote) Vote {
	if s.Score == nil {
		return Vote{Action: domain.ActionHold}
	}
	score, ok := s.Score(snap.Asset)
	if !ok {
		return Vote{Action: domain.ActionHold}
	}
	switch {
	case score >= 0.5:
		return Vote{Action: domain.ActionBuy, Weight: score, StopLossPct: -0.06, TakeProfitTiers: []float64{0.04}, MaxHoldSeconds: 12 * 3600}
	case score <= -0.5:
		return Vote{Action: domain.ActionSell, Weight: -score, StopLossPct: -0.06, TakeProfitTiers: []float64{0.04}, MaxHoldSeconds: 12 * 3600}
	default:
		return Vote{Action: domain.ActionHold}
	}
}

// DefaultStrategies returns the five named strategies spec.md §4.5 requires
// at minimum, with a nil news-score function (callers wire a real one).
func DefaultStrategies() []Strategy {
	return []Strategy{
		IntradayBreakout{},
		NewFastMACross(),
		MomentumReversal{},
		OrderFlowAnomaly{},
		NewsDrivenMomentum{},
	}
}
