package domain

import "time"

// Action is a trading recommendation direction.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// AdviceSource tags where an Advice came from.
type AdviceSource string

const (
	SourceRules AdviceSource = "rules"
	SourceLLM   AdviceSource = "llm"
)

// Advice is the tiered pipeline's structured output for one asset at one
// tick. Confidence is a monotone derived score, not a calibrated probability.
type Advice struct {
	Asset            Asset
	Action           Action
	Confidence       float64
	Entry            float64
	StopLoss         float64
	TakeProfitTiers  []float64
	ReasoningText    string
	Source           AdviceSource
	GeneratedAt      time.Time
}
