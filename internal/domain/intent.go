package domain

import "time"

// IntentKind is the closed set of intents the conversation router can
// classify an inbound message into.
type IntentKind string

const (
	IntentBuy             IntentKind = "buy"
	IntentSell            IntentKind = "sell"
	IntentAskAdvice       IntentKind = "ask_advice"
	IntentCheckPosition   IntentKind = "check_position"
	IntentPortfolioAdjust IntentKind = "portfolio_adjust"
	IntentMarketAnalysis  IntentKind = "market_analysis"
	IntentRunBacktest     IntentKind = "run_backtest"
	IntentChat            IntentKind = "chat"
)

// Slots are the typed arguments extracted from an utterance. Fields are
// pointers so a missing slot is distinguishable from a zero value.
type Slots struct {
	AssetID      string
	Quantity     *float64
	Price        *float64
	DateFrom     *time.Time
	DateTo       *time.Time
	StrategyName string
	InitialCapital *float64
}

// Intent is an ephemeral per-message classification result.
type Intent struct {
	Kind       IntentKind
	Slots      Slots
	Confidence float64
}
