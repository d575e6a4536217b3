package domain

import "time"

// TradeCause names why a trade record was appended.
type TradeCause string

const (
	CauseUser           TradeCause = "user"
	CauseStopLoss       TradeCause = "stop_loss"
	CauseTakeProfit     TradeCause = "take_profit"
	CauseTimeout        TradeCause = "timeout"
	CauseStrategySignal TradeCause = "strategy_signal"
	CauseBacktestEnd    TradeCause = "backtest_end"
)

// Position is a simulated open position tracked by the Position Tracker.
// Invariants: QuantityRemaining >= 0; Closed iff QuantityRemaining == 0;
// StopLossPrice/TakeProfitPrice are fixed at open time and never
// recomputed during the position's life.
type Position struct {
	ID                  string
	Asset               Asset
	Side                Side
	QuantityRemaining   float64
	OriginalQuantity    float64
	EntryPrice          float64
	EntryTime           time.Time
	StopLossPrice       float64
	TakeProfitPrice     float64
	RealizedPnL         float64
	Closed              bool

	// Alert idempotence: threshold state, set once and never unset.
	StopWarningFired bool
	MajorGainFired   bool

	// mark-to-market scratch state, updated by Mark; not part of the
	// open-time invariants.
	LastMarkPrice float64
	LastMarkTime  time.Time
	PeakPnLPct    float64

	// firedTiers tracks which tiered-exit rungs have already fired, keyed
	// by tier label (e.g. "tier_0").
	firedTiers map[string]bool
}

// Context reports which tiered-exit rungs have already fired for this
// position. Safe to call on the zero value.
func (p Position) Context() map[string]bool {
	if p.firedTiers == nil {
		return map[string]bool{}
	}
	return p.firedTiers
}

// MarkTierFired records that a tiered-exit rung has fired.
func (p *Position) MarkTierFired(tierKey string) {
	if p.firedTiers == nil {
		p.firedTiers = make(map[string]bool)
	}
	p.firedTiers[tierKey] = true
}

// UnrealizedReturn returns the fractional unrealized return at the given
// mark price (e.g. -0.08 for -8%), signed for side.
func (p Position) UnrealizedReturn(markPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	switch p.Side {
	case SideShort:
		return (p.EntryPrice - markPrice) / p.EntryPrice
	default:
		return (markPrice - p.EntryPrice) / p.EntryPrice
	}
}

// UnrealizedPnL returns the unrealized profit/loss in quote currency.
func (p Position) UnrealizedPnL(markPrice float64) float64 {
	switch p.Side {
	case SideShort:
		return (p.EntryPrice - markPrice) * p.QuantityRemaining
	default:
		return (markPrice - p.EntryPrice) * p.QuantityRemaining
	}
}

// TradeRecord is an immutable append-only log entry. Trade records are
// never modified or removed once appended.
type TradeRecord struct {
	PositionID string
	Asset      Asset
	Side       Side
	EventType  string // "open", "adjust", "close"
	Quantity   float64
	Price      float64
	Cause      TradeCause
	RealizedPnL float64
	Timestamp  time.Time
}

// PortfolioSnapshot is a derived view over the current positions, grouped by
// asset class, with mark-to-market and aggregate trade statistics.
type PortfolioSnapshot struct {
	ByClass       map[AssetClass]ClassSummary
	TotalRealized float64
	TotalUnrealized float64
	WinRate       float64
	GeneratedAt   time.Time
}

// ClassSummary summarizes positions within one asset class.
type ClassSummary struct {
	OpenPositions   int
	RealizedPnL     float64
	UnrealizedPnL   float64
}
