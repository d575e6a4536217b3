// Package pipeline implements the Analysis Pipeline (C5): orchestrates
// C1→C2→C3 on a tick cadence, conditionally escalates to C4 on anomaly
// severity, aggregates strategy votes into rules-based advice, and
// maintains the 24h capped advice history per asset. Grounded on
// SynapseStrike/decision/engine.go's StrategyEngine (weighted-vote
// aggregation over multiple named strategies) and trader/auto_trader.go's
// tick-driven orchestration loop.
package pipeline

import "github.com/axiomtrader/assistant/internal/domain"

// Vote is one strategy's recommendation at one tick.
type Vote struct {
	Action          domain.Action
	Weight          float64 // contribution weight, 0 means abstain
	StopLossPct     float64 // negative fraction, e.g. -0.08
	TakeProfitTiers []float64
	MaxHoldSeconds  int
}

// Strategy is a pure function over an indicator snapshot and the latest
// quote; it must not mutate shared state or perform I/O.
type Strategy interface {
	Name() string
	Evaluate(snap domain.Snapshot, quote domain.Quote) Vote
}

// AggregatorConfig weights each named strategy's vote and sets the
// confidence floor below which the aggregate collapses to hold.
type AggregatorConfig struct {
	Weights             map[string]float64
	ConfidenceThreshold float64 // default 0.6
}

// Aggregate combines named votes into a single rules-based Advice. The
// winning action is whichever of {buy, sell} has the larger weighted sum;
// its stop-loss and take-profit tiers are carried into the Advice. The
// vote's MaxHoldSeconds is not carried: Advice has no hold-time field.
func Aggregate(cfg AggregatorConfig, votes map[string]Vote, asset domain.Asset, quote domain.Quote) domain.Advice {
	var buyWeight, sellWeight, totalWeight float64
	var buyVote, sellVote Vote
	haveBuy, haveSell := false, false

	for name, v := range votes {
		w := cfg.Weights[name]
		if w == 0 {
			w = 1
		}
		contribution := w * v.Weight
		totalWeight += w
		switch v.Action {
		case domain.ActionBuy:
			buyWeight += contribution
			if !haveBuy || contribution > 0 {
				buyVote = v
				haveBuy = true
			}
		case domain.ActionSell:
			sellWeight += contribution
			if !haveSell || contribution > 0 {
				sellVote = v
				haveSell = true
			}
		}
	}

	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = 0.6
	}

	action := domain.ActionHold
	confidence := 0.0
	var winning Vote

	switch {
	case buyWeight > sellWeight && haveBuy:
		action, confidence, winning = domain.ActionBuy, normalizedConfidence(buyWeight, totalWeight), buyVote
	case sellWeight > buyWeight && haveSell:
		action, confidence, winning = domain.ActionSell, normalizedConfidence(sellWeight, totalWeight), sellVote
	}

	if confidence < threshold {
		action = domain.ActionHold
	}

	advice := domain.Advice{
		Asset:         asset,
		Action:        action,
		Confidence:    confidence,
		Entry:         quote.Price,
		Source:        domain.SourceRules,
		ReasoningText: "strategy aggregate vote",
	}
	if action != domain.ActionHold {
		advice.StopLoss = quote.Price * (1 + winning.StopLossPct)
		advice.TakeProfitTiers = winning.TakeProfitTiers
	}
	return advice
}

func normalizedConfidence(weight, total float64) float64 {
	if total == 0 {
		return 0
	}
	c := weight / total
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
