// Package position implements the Position Tracker (C6): open/close/mark/
// query/portfolio operations with risk rules enforced identically in live
// trading and backtesting (internal/backtest reuses Evaluate directly).
// Grounded on SynapseStrike/trader/auto_trader.go's peak-PnL cache,
// percentage-threshold stop/target checks and per-position first-seen-time
// timeout tracking, generalized from "AI decides everything" to
// rule-enforced thresholds shared across live and backtest.
package position

import "time"

// RiskConfig is the subset of config.Risk the risk-rule evaluator needs.
// Kept separate from internal/config to avoid a package-layering cycle;
// internal/config.Risk is converted to this type at wiring time.
type RiskConfig struct {
	StopWarningPct float64 // e.g. -0.08
	StopLossPct    float64 // e.g. -0.10
	MajorGainPct   float64 // e.g. 0.15
	TakeProfitPct  float64 // e.g. 0.20
	MaxHold        time.Duration
}

// ExitDecision is the outcome of evaluating a position's risk thresholds at
// one mark.
type ExitDecision struct {
	Alert        AlertKind // "" when no new alert fires
	ForceClose   bool
	CloseCause   string // "stop_loss", "take_profit", "timeout"
}

// AlertKind names the idempotent per-position alerts.
type AlertKind string

const (
	AlertStopWarning AlertKind = "stop_loss_warning"
	AlertMajorGain   AlertKind = "major_gain"
)

// Evaluate applies the risk rules from spec.md §4.6 to one position at one
// mark, given the position's current alert-fired flags. It is a pure
// function: it does not mutate the position, callers apply the decision.
func Evaluate(unrealizedReturn float64, heldSince time.Time, now time.Time, stopWarningFired, majorGainFired bool, cfg RiskConfig) ExitDecision {
	if now.Sub(heldSince) >= cfg.MaxHold {
		return ExitDecision{ForceClose: true, CloseCause: "timeout"}
	}
	if unrealizedReturn <= cfg.StopLossPct {
		return ExitDecision{ForceClose: true, CloseCause: "stop_loss"}
	}
	if unrealizedReturn >= cfg.TakeProfitPct {
		return ExitDecision{ForceClose: true, CloseCause: "take_profit"}
	}
	if unrealizedReturn <= cfg.StopWarningPct && !stopWarningFired {
		return ExitDecision{Alert: AlertStopWarning}
	}
	if unrealizedReturn >= cfg.MajorGainPct && !majorGainFired {
		return ExitDecision{Alert: AlertMajorGain}
	}
	return ExitDecision{}
}
