package llmrouter

import (
	"context"
	"time"

	"github.com/axiomtrader/assistant/internal/domain"
)

// LocalFuncProvider is a minimal Provider that never makes a network call —
// it derives an Advice directly from the prompt's indicator/anomaly context
// using a handful of rule thresholds. Grounded on
// SynapseStrike/mcp/localfunc_client.go: "the decision flow is intercepted
// ... before CallWithMessages is ever invoked." It is kept as the last
// fallback entry in every task class's provider chain, satisfying spec.md
// §7's AnalysisTimeout policy ("fall back to rule-based advice").
type LocalFuncProvider struct{}

func NewLocalFuncProvider() *LocalFuncProvider { return &LocalFuncProvider{} }

func (p *LocalFuncProvider) Name() string { return "localfunc" }

func (p *LocalFuncProvider) SupportsTaskClass(TaskClass) bool { return true }

func (p *LocalFuncProvider) Complete(_ context.Context, spec PromptSpec) (Response, error) {
	action := domain.ActionHold
	confidence := 0.5
	reasoning := "no strong signal; holding"

	if snap := spec.Context.Indicators; snap != nil {
		switch {
		case snap.FastRSI.Present && snap.FastRSI.Value <= 30:
			action, confidence, reasoning = domain.ActionBuy, 0.62, "fast RSI oversold"
		case snap.FastRSI.Present && snap.FastRSI.Value >= 70:
			action, confidence, reasoning = domain.ActionSell, 0.62, "fast RSI overbought"
		case snap.IntradayBreakUp:
			action, confidence, reasoning = domain.ActionBuy, 0.58, "intraday breakout up"
		case snap.IntradayBreakDn:
			action, confidence, reasoning = domain.ActionSell, 0.58, "intraday breakout down"
		}
	}
	if ev := spec.Context.Anomaly; ev != nil && ev.Severity >= domain.SeverityHigh {
		reasoning = reasoning + "; escalated by anomaly " + string(ev.Kind)
	}

	var entry, stop, tp float64
	if q := spec.Context.Quote; q != nil {
		entry = q.Price
		switch action {
		case domain.ActionBuy:
			stop = entry * 0.90
			tp = entry * 1.20
		case domain.ActionSell:
			stop = entry * 1.10
			tp = entry * 0.80
		}
	}

	advice := domain.Advice{
		Action:          action,
		Confidence:      confidence,
		Entry:           entry,
		StopLoss:        stop,
		TakeProfitTiers: []float64{tp},
		ReasoningText:   reasoning,
		Source:          domain.SourceRules,
		GeneratedAt:     time.Now(),
	}
	if spec.Context.Quote != nil {
		advice.Asset = spec.Context.Quote.Asset
	}

	return Response{Decisions: []domain.Advice{advice}, RawText: reasoning}, nil
}
