// Package backtest implements the Backtest Engine (C7): it replays a
// historical series set through a signal stream and internal/position's
// exact risk-rule evaluator, so a strategy's simulated performance reflects
// the identical stop/target/timeout logic the live Position Tracker
// enforces. Grounded on SynapseStrike/trader's reuse of the Trader
// interface across the live broker (alpaca_trader.go) and the AI-decided
// auto_trader.go path, generalized here into a single Engine that owns both
// the simulated ledger and the shared risk-rule call.
package backtest

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/position"
)

// Signal is one timestamped trading instruction fed into the engine. Stop
// and Target carry the strategy's own suggested exit prices; the engine
// does not use them for the force-close rule (that rule is the fixed
// per-asset-class RiskConfig in Config, identical to the live tracker's),
// they are reserved for the optional per-strategy tiered-exit behavior
// (spec.md §4.6) when a caller implements it.
type Signal struct {
	Timestamp time.Time
	Asset     domain.Asset
	Action    domain.Action // ActionBuy opens, ActionSell closes; ActionHold is ignored
	Entry     float64
	Stop      float64
	Target    float64
}

// Config holds the backtest's economic assumptions.
type Config struct {
	InitialCapital      float64
	FeeRate             float64       // fraction charged per side, e.g. 0.001
	SlippagePct         float64       // fraction of price lost to slippage per fill
	MaxPositionSharePct float64       // max fraction of current capital committed to one position
	MaxHold             time.Duration // timeout threshold, shared with the live risk evaluator
	MaxTradeLog         int           // trade log cap; older entries dropped once exceeded

	// RiskConfig is the force-close rule applied to every open lot,
	// identical in shape and meaning to the live Position Tracker's
	// RiskConfig (spec.md §4.6: "enforced identically in live and
	// backtest"). It is never derived from a Signal or a strategy's own
	// StopLossPct/TakeProfitTiers — those are advisory only.
	RiskConfig position.RiskConfig
}

// DefaultConfig returns the spec's default economic assumptions.
func DefaultConfig() Config {
	return Config{
		InitialCapital:      10000,
		FeeRate:             0.001,
		SlippagePct:         0.001,
		MaxPositionSharePct: 0.15,
		MaxHold:             10 * time.Hour,
		MaxTradeLog:         10000,
		RiskConfig: position.RiskConfig{
			StopWarningPct: -0.08,
			StopLossPct:    -0.10,
			MajorGainPct:   0.15,
			TakeProfitPct:  0.20,
			MaxHold:        10 * time.Hour,
		},
	}
}

// ExitCounts tallies closes by cause.
type ExitCounts struct {
	Stop                   int
	Target                 int
	Timeout                int
	SignalClose            int
	BacktestEndForcedClose int
}

// Result is the engine's output report.
type Result struct {
	FinalEquity       float64
	TotalReturn       float64
	WinRate           float64
	AvgHoldingTime    time.Duration
	MedianHoldingTime time.Duration
	ExitCounts        ExitCounts
	Sharpe            float64
	MaxDrawdown       float64
	Trades            []domain.TradeRecord
	DroppedTradeCount int
}

// Engine replays series + signals under a fixed Config.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine { return &Engine{cfg: cfg} }

type openLot struct {
	pos  domain.Position
	risk position.RiskConfig
}

// event is one point on the merged replay timeline: either a mark (a bar
// close for an asset) or a signal (an open/close instruction).
type event struct {
	ts     time.Time
	order  int // tie-break for equal timestamps: signals before marks, then input order
	signal *Signal
	mark   *markEvent
}

type markEvent struct {
	asset domain.Asset
	price float64
}

// Run replays the given series under the given signal stream and returns
// the aggregate report. series is keyed by asset.String().
func (e *Engine) Run(series map[string]domain.Series, signals []Signal) (Result, error) {
	if e.cfg.InitialCapital <= 0 {
		return Result{}, apperr.Wrap(apperr.ConfigurationError, "backtest initial capital must be positive")
	}

	events := e.buildTimeline(series, signals)

	capital := e.cfg.InitialCapital
	open := make(map[string]*openLot)
	var trades []domain.TradeRecord
	dropped := 0
	var closedReturns []float64
	var holdingDurations []time.Duration
	var equityCurve []float64
	counts := ExitCounts{}

	appendTrade := func(rec domain.TradeRecord) {
		trades = append(trades, rec)
		if len(trades) > e.cfg.MaxTradeLog {
			trades = trades[1:]
			dropped++
		}
	}

	markToEquity := func(lastPrices map[string]float64) float64 {
		eq := capital
		for key, lot := range open {
			price, ok := lastPrices[key]
			if !ok {
				price = lot.pos.LastMarkPrice
			}
			eq += lot.pos.UnrealizedPnL(price)
		}
		return eq
	}
	lastPrices := make(map[string]float64)

	closeLot := func(key string, lot *openLot, exitPrice float64, cause domain.TradeCause, ts time.Time) {
		slippedExit := exitPrice * (1 - e.cfg.SlippagePct)
		fee := slippedExit * lot.pos.QuantityRemaining * e.cfg.FeeRate
		pnl := (slippedExit-lot.pos.EntryPrice)*lot.pos.QuantityRemaining - fee
		capital += slippedExit*lot.pos.QuantityRemaining - fee

		appendTrade(domain.TradeRecord{
			PositionID: lot.pos.ID, Asset: lot.pos.Asset, Side: lot.pos.Side, EventType: "close",
			Quantity: lot.pos.QuantityRemaining, Price: slippedExit, Cause: cause, RealizedPnL: pnl, Timestamp: ts,
		})

		ret := (slippedExit - lot.pos.EntryPrice) / lot.pos.EntryPrice
		closedReturns = append(closedReturns, ret)
		holdingDurations = append(holdingDurations, ts.Sub(lot.pos.EntryTime))

		switch cause {
		case domain.CauseStopLoss:
			counts.Stop++
		case domain.CauseTakeProfit:
			counts.Target++
		case domain.CauseTimeout:
			counts.Timeout++
		case domain.CauseUser:
			counts.SignalClose++
		case domain.CauseBacktestEnd:
			counts.BacktestEndForcedClose++
		}
		delete(open, key)
	}

	for _, ev := range events {
		switch {
		case ev.signal != nil:
			s := ev.signal
			key := s.Asset.String()
			switch s.Action {
			case domain.ActionBuy:
				if _, exists := open[key]; exists {
					continue // one open lot per asset; duplicate buy signals are ignored
				}
				if s.Entry <= 0 {
					continue
				}
				entryPrice := s.Entry * (1 + e.cfg.SlippagePct)
				notional := capital * e.cfg.MaxPositionSharePct
				quantity := notional / entryPrice
				if quantity <= 0 {
					continue
				}
				fee := entryPrice * quantity * e.cfg.FeeRate
				capital -= entryPrice*quantity + fee

				risk := e.cfg.RiskConfig
				risk.MaxHold = e.cfg.MaxHold

				pos := domain.Position{
					ID:                s.Asset.String() + "-" + s.Timestamp.String(),
					Asset:             s.Asset,
					Side:              domain.SideLong,
					QuantityRemaining: quantity,
					OriginalQuantity:  quantity,
					EntryPrice:        entryPrice,
					EntryTime:         s.Timestamp,
					StopLossPrice:     entryPrice * (1 + risk.StopLossPct),
					TakeProfitPrice:   entryPrice * (1 + risk.TakeProfitPct),
					LastMarkPrice:     entryPrice,
					LastMarkTime:      s.Timestamp,
				}
				open[key] = &openLot{
					pos:  pos,
					risk: risk,
				}
				appendTrade(domain.TradeRecord{
					PositionID: pos.ID, Asset: pos.Asset, Side: pos.Side, EventType: "open",
					Quantity: quantity, Price: entryPrice, Cause: domain.CauseUser, Timestamp: s.Timestamp,
				})
			case domain.ActionSell:
				if lot, exists := open[key]; exists {
					closeLot(key, lot, s.Entry, domain.CauseUser, s.Timestamp)
				}
			}

		case ev.mark != nil:
			m := ev.mark
			key := m.asset.String()
			lastPrices[key] = m.price
			lot, exists := open[key]
			if !exists {
				continue
			}
			lot.pos.LastMarkPrice = m.price
			lot.pos.LastMarkTime = ev.ts
			ret := lot.pos.UnrealizedReturn(m.price)
			decision := position.Evaluate(ret, lot.pos.EntryTime, ev.ts, false, false, lot.risk)
			if decision.ForceClose {
				closeLot(key, lot, m.price, domain.TradeCause(decision.CloseCause), ev.ts)
			}
		}
		equityCurve = append(equityCurve, markToEquity(lastPrices))
	}

	finalTs := time.Time{}
	if len(events) > 0 {
		finalTs = events[len(events)-1].ts
	}
	for key, lot := range open {
		price := lastPrices[key]
		if price == 0 {
			price = lot.pos.LastMarkPrice
		}
		closeLot(key, lot, price, domain.CauseBacktestEnd, finalTs)
	}
	equityCurve = append(equityCurve, capital)

	result := Result{
		FinalEquity:       capital,
		TotalReturn:       (capital - e.cfg.InitialCapital) / e.cfg.InitialCapital,
		ExitCounts:        counts,
		Trades:            trades,
		DroppedTradeCount: dropped,
	}
	result.WinRate = winRate(closedReturns)
	result.AvgHoldingTime, result.MedianHoldingTime = holdingStats(holdingDurations)
	result.Sharpe = sharpe(closedReturns)
	result.MaxDrawdown = maxDrawdown(equityCurve)

	return result, nil
}

func (e *Engine) buildTimeline(series map[string]domain.Series, signals []Signal) []event {
	var events []event
	order := 0
	for _, s := range signals {
		sCopy := s
		events = append(events, event{ts: s.Timestamp, order: order, signal: &sCopy})
		order++
	}
	for _, ser := range series {
		for _, bar := range ser.Bars {
			events = append(events, event{ts: bar.Timestamp, order: order, mark: &markEvent{asset: ser.Asset, price: bar.Close}})
			order++
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].ts.Equal(events[j].ts) {
			return events[i].ts.Before(events[j].ts)
		}
		// signals settle before marks at the same instant, so a signal fired
		// exactly on a bar close is reflected in that bar's mark.
		iIsSignal := events[i].signal != nil
		jIsSignal := events[j].signal != nil
		if iIsSignal != jIsSignal {
			return iIsSignal
		}
		return events[i].order < events[j].order
	})
	return events
}

func winRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

func holdingStats(durations []time.Duration) (avg, median time.Duration) {
	if len(durations) == 0 {
		return 0, 0
	}
	var total time.Duration
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, d := range durations {
		total += d
	}
	avg = total / time.Duration(len(durations))
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}
	return avg, median
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std
}

func maxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) == 0 {
		return 0
	}
	peak := equityCurve[0]
	maxDD := 0.0
	for _, eq := range equityCurve {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			dd := (peak - eq) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
