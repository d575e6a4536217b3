package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/metrics"
)

// IntradayLimits bounds how aggressively the tracker opens new positions
// within a calendar day (spec.md §4.6 "intraday limits, optional").
type IntradayLimits struct {
	MaxTradesPerDay      int
	MaxConsecutiveLosses int
	MinGapBetweenOpens   time.Duration
}

// TieredExit is a single partial-close rung, applied only when the opening
// signal declares tiers (spec.md §4.6 "tiered exits, optional").
type TieredExit struct {
	ReturnPct float64 // e.g. 0.015 for +1.5%
	Fraction  float64 // fraction of the ORIGINAL quantity to close, e.g. 0.33
}

// openKey identifies the single live position allowed per (asset, side).
type openKey struct {
	asset string
	side  domain.Side
}

// Alert is emitted when a threshold-state alert fires (idempotent per
// position per threshold).
type Alert struct {
	PositionID string
	Asset      domain.Asset
	Kind       AlertKind
	Timestamp  time.Time
}

// Tracker is the Position Tracker. Position state is owned exclusively by
// the Tracker; all mutation serializes through mu.
type Tracker struct {
	mu        sync.Mutex
	positions map[openKey]*domain.Position
	trades    []domain.TradeRecord
	risk      RiskConfig
	limits    IntradayLimits
	tiers     map[string][]TieredExit // keyed by asset.String(), set by the opening strategy

	dailyTradeCount  map[string]int // key: YYYY-MM-DD
	consecutiveLosses int
	lastOpenTime      map[string]time.Time // key: asset.String()
}

// NewTracker constructs an empty Tracker.
func NewTracker(risk RiskConfig, limits IntradayLimits) *Tracker {
	return &Tracker{
		positions:       make(map[openKey]*domain.Position),
		risk:            risk,
		limits:          limits,
		tiers:           make(map[string][]TieredExit),
		dailyTradeCount: make(map[string]int),
		lastOpenTime:    make(map[string]time.Time),
	}
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

// SetTieredExits registers the partial-close schedule a strategy declared
// for positions it opens on the given asset. Cleared implicitly once the
// position using it closes.
func (t *Tracker) SetTieredExits(asset domain.Asset, tiers []TieredExit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tiers[asset.String()] = tiers
}

// Open validates and opens a new position. Rejects if a non-closed position
// already exists for (asset, side); one position per (asset, side) at a
// time, reopening creates a new id.
func (t *Tracker) Open(asset domain.Asset, quantity, entryPrice float64, side domain.Side, now time.Time) (domain.Position, error) {
	if quantity <= 0 {
		return domain.Position{}, apperr.Wrap(apperr.ValidationError, "quantity must be positive, got %v", quantity)
	}
	if side != domain.SideLong && side != domain.SideShort {
		return domain.Position{}, apperr.Wrap(apperr.ValidationError, "invalid side %q", side)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := openKey{asset: asset.String(), side: side}
	if existing, ok := t.positions[key]; ok && !existing.Closed {
		return domain.Position{}, apperr.Wrap(apperr.ValidationError, "position already open for %s/%s", asset, side)
	}

	if t.limits.MaxTradesPerDay > 0 && t.dailyTradeCount[dayKey(now)] >= t.limits.MaxTradesPerDay {
		return domain.Position{}, apperr.Wrap(apperr.RiskViolation, "max trades per day (%d) reached", t.limits.MaxTradesPerDay)
	}
	if t.limits.MaxConsecutiveLosses > 0 && t.consecutiveLosses >= t.limits.MaxConsecutiveLosses {
		lastCloseDay := ""
		for i := len(t.trades) - 1; i >= 0; i-- {
			if t.trades[i].EventType == "close" {
				lastCloseDay = dayKey(t.trades[i].Timestamp)
				break
			}
		}
		if lastCloseDay == dayKey(now) {
			return domain.Position{}, apperr.Wrap(apperr.RiskViolation, "consecutive loss limit (%d) reached, refusing new opens until next day", t.limits.MaxConsecutiveLosses)
		}
		t.consecutiveLosses = 0
	}
	if t.limits.MinGapBetweenOpens > 0 {
		if last, ok := t.lastOpenTime[asset.String()]; ok && now.Sub(last) < t.limits.MinGapBetweenOpens {
			return domain.Position{}, apperr.Wrap(apperr.RiskViolation, "minimum gap between opens not elapsed for %s", asset)
		}
	}

	stop, target := computeStopTarget(side, entryPrice, t.risk)

	pos := domain.Position{
		ID:                uuid.NewString(),
		Asset:             asset,
		Side:              side,
		QuantityRemaining: quantity,
		OriginalQuantity:  quantity,
		EntryPrice:        entryPrice,
		EntryTime:         now,
		StopLossPrice:     stop,
		TakeProfitPrice:   target,
		LastMarkPrice:     entryPrice,
		LastMarkTime:      now,
	}
	t.positions[key] = &pos
	t.dailyTradeCount[dayKey(now)]++
	t.lastOpenTime[asset.String()] = now

	t.trades = append(t.trades, domain.TradeRecord{
		PositionID: pos.ID, Asset: asset, Side: side, EventType: "open",
		Quantity: quantity, Price: entryPrice, Cause: domain.CauseUser, Timestamp: now,
	})

	t.refreshGauges()
	return pos, nil
}

func computeStopTarget(side domain.Side, entry float64, risk RiskConfig) (stop, target float64) {
	switch side {
	case domain.SideShort:
		return entry * (1 - risk.StopLossPct), entry * (1 - risk.TakeProfitPct)
	default:
		return entry * (1 + risk.StopLossPct), entry * (1 + risk.TakeProfitPct)
	}
}

// Close validates and closes quantity of the (asset, side) position,
// appends a close trade record, and returns the realized P&L for the
// closed quantity. A sell exceeding remaining quantity is a ValidationError,
// never silently clamped (spec.md §9 open question).
func (t *Tracker) Close(asset domain.Asset, side domain.Side, quantity, exitPrice float64, cause domain.TradeCause, now time.Time) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(asset, side, quantity, exitPrice, cause, now)
}

func (t *Tracker) closeLocked(asset domain.Asset, side domain.Side, quantity, exitPrice float64, cause domain.TradeCause, now time.Time) (float64, error) {
	key := openKey{asset: asset.String(), side: side}
	pos, ok := t.positions[key]
	if !ok || pos.Closed {
		return 0, apperr.Wrap(apperr.ValidationError, "no open position for %s/%s", asset, side)
	}
	if quantity <= 0 || quantity > pos.QuantityRemaining {
		return 0, apperr.Wrap(apperr.ValidationError, "close quantity %v exceeds remaining %v", quantity, pos.QuantityRemaining)
	}

	var pnl float64
	switch side {
	case domain.SideShort:
		pnl = (pos.EntryPrice - exitPrice) * quantity
	default:
		pnl = (exitPrice - pos.EntryPrice) * quantity
	}

	pos.QuantityRemaining -= quantity
	pos.RealizedPnL += pnl
	if pos.QuantityRemaining <= 1e-9 {
		pos.QuantityRemaining = 0
		pos.Closed = true
		delete(t.tiers, asset.String())
	}

	eventType := "close"
	if !pos.Closed {
		eventType = "adjust"
	}
	t.trades = append(t.trades, domain.TradeRecord{
		PositionID: pos.ID, Asset: asset, Side: side, EventType: eventType,
		Quantity: quantity, Price: exitPrice, Cause: cause, RealizedPnL: pnl, Timestamp: now,
	})

	if pos.Closed {
		if pnl < 0 {
			t.consecutiveLosses++
		} else {
			t.consecutiveLosses = 0
		}
		metrics.PositionPnLTotal.WithLabelValues(asset.ID, string(asset.Class)).Add(pos.RealizedPnL)
	}

	t.refreshGauges()
	return pnl, nil
}

// Mark updates the in-memory mark for (asset) across both sides and checks
// exit triggers, force-closing or alerting as needed. Idempotent within a
// single timestamp: calling Mark twice with the same quote/time produces
// identical state (LastMarkTime guards repeat calls at the same instant).
func (t *Tracker) Mark(asset domain.Asset, price float64, now time.Time) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	var alerts []Alert
	for _, side := range []domain.Side{domain.SideLong, domain.SideShort} {
		key := openKey{asset: asset.String(), side: side}
		pos, ok := t.positions[key]
		if !ok || pos.Closed {
			continue
		}
		if !pos.LastMarkTime.IsZero() && !now.After(pos.LastMarkTime) && pos.LastMarkPrice == price {
			continue // idempotent re-mark at the same instant
		}
		pos.LastMarkPrice = price
		pos.LastMarkTime = now

		ret := pos.UnrealizedReturn(price)
		if ret > pos.PeakPnLPct {
			pos.PeakPnLPct = ret
		}

		t.applyTieredExits(pos, ret, price, now)
		if pos.Closed {
			continue
		}

		decision := Evaluate(ret, pos.EntryTime, now, pos.StopWarningFired, pos.MajorGainFired, t.risk)
		switch {
		case decision.ForceClose:
			cause := domain.TradeCause(decision.CloseCause)
			if _, err := t.closeLocked(asset, side, pos.QuantityRemaining, price, cause, now); err == nil {
				alerts = append(alerts, Alert{PositionID: pos.ID, Asset: asset, Kind: AlertKind(decision.CloseCause), Timestamp: now})
			}
		case decision.Alert == AlertStopWarning:
			pos.StopWarningFired = true
			alerts = append(alerts, Alert{PositionID: pos.ID, Asset: asset, Kind: AlertStopWarning, Timestamp: now})
		case decision.Alert == AlertMajorGain:
			pos.MajorGainFired = true
			alerts = append(alerts, Alert{PositionID: pos.ID, Asset: asset, Kind: AlertMajorGain, Timestamp: now})
		}
	}
	t.refreshGauges()
	return alerts
}

// applyTieredExits partially closes a position at its registered profit
// tiers, in ascending order, applied at most once per tier per position's
// life. Requires the caller to hold t.mu.
func (t *Tracker) applyTieredExits(pos *domain.Position, ret float64, price float64, now time.Time) {
	tiers, ok := t.tiers[pos.Asset.String()]
	if !ok || len(tiers) == 0 {
		return
	}
	for i, tier := range tiers {
		if ret < tier.ReturnPct {
			continue
		}
		tierKey := fmt.Sprintf("tier_%d", i)
		if pos.Context()[tierKey] {
			continue
		}
		closeQty := tier.Fraction * pos.OriginalQuantity
		if closeQty > pos.QuantityRemaining {
			closeQty = pos.QuantityRemaining
		}
		if closeQty <= 0 {
			continue
		}
		if _, err := t.closeLocked(pos.Asset, pos.Side, closeQty, price, domain.CauseStrategySignal, now); err == nil {
			pos.MarkTierFired(tierKey)
		}
		if pos.Closed {
			return
		}
	}
}

// Query returns current positions, optionally filtered by asset, with
// mark-to-market P&L populated.
func (t *Tracker) Query(asset *domain.Asset) []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []domain.Position
	for k, p := range t.positions {
		if asset != nil && k.asset != asset.String() {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Restore rebuilds in-memory state from positions loaded out of a
// persistent store (internal/storage.PositionStore.LoadOpen), for use once
// at startup before any live Mark/Open/Close call. Closed positions passed
// in are ignored; only the (asset, side) slot they'd occupy matters.
func (t *Tracker) Restore(positions []domain.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pos := range positions {
		if pos.Closed {
			continue
		}
		p := pos
		t.positions[openKey{asset: pos.Asset.String(), side: pos.Side}] = &p
	}
	t.refreshGauges()
}

// Portfolio returns the grouped snapshot by asset class.
func (t *Tracker) Portfolio(now time.Time) domain.PortfolioSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	byClass := make(map[domain.AssetClass]domain.ClassSummary)
	var totalRealized, totalUnrealized float64
	var wins, closedCount int

	for _, p := range t.positions {
		summary := byClass[p.Asset.Class]
		if !p.Closed {
			summary.OpenPositions++
			summary.UnrealizedPnL += p.UnrealizedPnL(p.LastMarkPrice)
			totalUnrealized += p.UnrealizedPnL(p.LastMarkPrice)
		}
		summary.RealizedPnL += p.RealizedPnL
		totalRealized += p.RealizedPnL
		byClass[p.Asset.Class] = summary
	}
	for _, rec := range t.trades {
		if rec.EventType == "close" {
			closedCount++
			if rec.RealizedPnL > 0 {
				wins++
			}
		}
	}
	winRate := 0.0
	if closedCount > 0 {
		winRate = float64(wins) / float64(closedCount)
	}

	return domain.PortfolioSnapshot{
		ByClass:         byClass,
		TotalRealized:   totalRealized,
		TotalUnrealized: totalUnrealized,
		WinRate:         winRate,
		GeneratedAt:     now,
	}
}

// Trades returns a copy of the append-only trade log.
func (t *Tracker) Trades() []domain.TradeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TradeRecord, len(t.trades))
	copy(out, t.trades)
	return out
}

func (t *Tracker) refreshGauges() {
	counts := make(map[domain.AssetClass]int)
	for _, p := range t.positions {
		if !p.Closed {
			counts[p.Asset.Class]++
		}
	}
	for class, n := range counts {
		metrics.OpenPositions.WithLabelValues(string(class)).Set(float64(n))
	}
}
