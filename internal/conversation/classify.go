// Package conversation implements the Conversation Router (C8): hybrid
// rule+LLM intent classification over a closed intent set, slot
// extraction, allow-list authorization, and dispatch to the analysis
// pipeline, position tracker and backtest engine. Grounded on
// SynapseStrike/decision/engine.go's pre-compiled regex block
// (reJSONFence, reReasoningTag, reDecisionTag), generalized from "parse
// the LLM's own output" to "parse the user's utterance."
package conversation

import (
	"regexp"
	"strings"

	"github.com/axiomtrader/assistant/internal/domain"
)

// RuleClassifierConfidenceThreshold is the floor below which the LLM pass
// is invoked (spec.md §4.8 default 0.7).
const RuleClassifierConfidenceThreshold = 0.7

var (
	// \b is an ASCII word boundary in RE2, so CJK/Hangul verbs sit outside it.
	reBuyVerb  = regexp.MustCompile(`(?i)\b(buy|long)\b|买入|买|매수`)
	reSellVerb = regexp.MustCompile(`(?i)\b(sell|short)\b|卖出|卖|매도`)

	reAdviceVerb = regexp.MustCompile(`(?i)\b(advice|recommend|should i|what do you think)\b|分析建议`)
	rePositionVerb = regexp.MustCompile(`(?i)\b(position|holding|check my|status of)\b|持仓|보유`)
	rePortfolioVerb = regexp.MustCompile(`(?i)\b(portfolio|rebalance|adjust my)\b`)
	reMarketVerb = regexp.MustCompile(`(?i)\b(market|overview|what's happening|how.?s the market)\b`)
	reBacktestVerb = regexp.MustCompile(`(?i)\b(backtest|back.test|simulate)\b|试算`)

	reQuantityNearVerb = regexp.MustCompile(`\d+(\.\d+)?\s*(shares?|股|개|units?)?`)
	reSymbolMention    = regexp.MustCompile(`\b[A-Z]{2,6}\b|\d{6}`)
)

// RuleClassifier is the regex/keyword rule pass. Returns an intent guess and
// a confidence in [0,1].
type RuleClassifier struct{}

// Classify runs the rule pass over one utterance.
func (RuleClassifier) Classify(text string) (domain.IntentKind, float64) {
	hasBuy := reBuyVerb.MatchString(text)
	hasSell := reSellVerb.MatchString(text)
	hasQuantity := reQuantityNearVerb.MatchString(text)
	hasSymbol := reSymbolMention.MatchString(text)

	switch {
	case hasBuy && hasQuantity:
		return domain.IntentBuy, 0.9
	case hasSell && hasQuantity:
		return domain.IntentSell, 0.9
	case hasBuy:
		return domain.IntentBuy, 0.6
	case hasSell:
		return domain.IntentSell, 0.6
	case reBacktestVerb.MatchString(text):
		return domain.IntentRunBacktest, 0.85
	case rePortfolioVerb.MatchString(text):
		return domain.IntentPortfolioAdjust, 0.8
	case rePositionVerb.MatchString(text) && hasSymbol:
		return domain.IntentCheckPosition, 0.85
	case rePositionVerb.MatchString(text):
		return domain.IntentCheckPosition, 0.65
	case reAdviceVerb.MatchString(text) && hasSymbol:
		return domain.IntentAskAdvice, 0.85
	case reAdviceVerb.MatchString(text):
		return domain.IntentAskAdvice, 0.6
	case reMarketVerb.MatchString(text):
		return domain.IntentMarketAnalysis, 0.75
	case hasSymbol:
		return domain.IntentAskAdvice, 0.55
	default:
		return domain.IntentChat, 0.4
	}
}

// closedIntents lists every valid IntentKind, for coercing an LLM's
// free-form classification output into the closed set.
var closedIntents = map[domain.IntentKind]bool{
	domain.IntentBuy: true, domain.IntentSell: true, domain.IntentAskAdvice: true,
	domain.IntentCheckPosition: true, domain.IntentPortfolioAdjust: true,
	domain.IntentMarketAnalysis: true, domain.IntentRunBacktest: true, domain.IntentChat: true,
}

// CoerceIntent maps an arbitrary LLM classification string into the closed
// intent set, defaulting to chat for anything unrecognized (spec.md §4.8:
// "any other output is coerced to chat").
func CoerceIntent(raw string) domain.IntentKind {
	kind := domain.IntentKind(strings.ToLower(strings.TrimSpace(raw)))
	if closedIntents[kind] {
		return kind
	}
	return domain.IntentChat
}
