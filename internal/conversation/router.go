package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/llmrouter"
	"github.com/axiomtrader/assistant/internal/obs"
)

// PositionService is the narrow view of internal/position.Tracker the
// router dispatches buy/sell/check_position onto.
type PositionService interface {
	Open(asset domain.Asset, quantity, entryPrice float64, side domain.Side, now time.Time) (domain.Position, error)
	Close(asset domain.Asset, side domain.Side, quantity, exitPrice float64, cause domain.TradeCause, now time.Time) (float64, error)
	Query(asset *domain.Asset) []domain.Position
	Portfolio(now time.Time) domain.PortfolioSnapshot
}

// AdviceService is the narrow view of internal/pipeline.Pipeline the
// router dispatches ask_advice/market_analysis onto.
type AdviceService interface {
	Tick(ctx context.Context, asset domain.Asset, now time.Time) (domain.Advice, []domain.AnomalyEvent, error)
}

// BacktestResult is the subset of backtest.Result rendered into a chat
// response (kept narrow to avoid importing internal/backtest's full Result
// shape into this package's public surface).
type BacktestResult struct {
	FinalEquity float64
	TotalReturn float64
	WinRate     float64
	Sharpe      float64
	MaxDrawdown float64
}

// BacktestService is the narrow view of internal/backtest's named-run glue
// the router dispatches run_backtest onto. cmd/assistant wires a
// backtest.NamedRunner behind a small adapter satisfying this interface
// (converting backtest.Result into BacktestResult at the call site), so
// this package never needs to import internal/backtest directly.
type BacktestService interface {
	RunNamed(ctx context.Context, strategyName string, from, to time.Time, initialCapital float64) (BacktestResult, error)
}

// QuoteService fetches a current Quote when a buy/sell slot omits price.
type QuoteService interface {
	Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error)
}

// Router dispatches classified intents to C5/C6/C7 and renders responses.
type Router struct {
	rules      RuleClassifier
	llm        *llmrouter.Router
	allowList  *AllowList
	aliases    *AliasTable
	positions  PositionService
	advice     AdviceService
	backtests  BacktestService
	quotes     QuoteService
	strategies []string
}

// NewRouter constructs a Router with all its dispatch targets wired.
func NewRouter(llm *llmrouter.Router, allowList *AllowList, aliases *AliasTable, positions PositionService, advice AdviceService, backtests BacktestService, quotes QuoteService, strategies []string) *Router {
	return &Router{
		llm: llm, allowList: allowList, aliases: aliases,
		positions: positions, advice: advice, backtests: backtests, quotes: quotes,
		strategies: strategies,
	}
}

// Handle classifies, authorizes, extracts slots, dispatches and renders a
// response for one inbound message.
func (r *Router) Handle(ctx context.Context, userID, text string, now time.Time) string {
	if !r.allowList.Check(userID) {
		return FixedRefusalMessage
	}

	kind, confidence := r.rules.Classify(text)
	if confidence < RuleClassifierConfidenceThreshold {
		if escalated, ok := r.classifyWithLLM(ctx, text); ok {
			kind = escalated
		}
	}

	switch kind {
	case domain.IntentBuy, domain.IntentSell:
		return r.dispatchTrade(ctx, kind, text, now)
	case domain.IntentCheckPosition:
		return r.dispatchCheckPosition(text, now)
	case domain.IntentPortfolioAdjust:
		return r.renderPortfolio(now)
	case domain.IntentAskAdvice, domain.IntentMarketAnalysis:
		return r.dispatchAdvice(ctx, text, now)
	case domain.IntentRunBacktest:
		return r.dispatchBacktest(ctx, text, now)
	default:
		return "I can help with buying, selling, checking positions, analysis, or backtests. What would you like to do?"
	}
}

func (r *Router) classifyWithLLM(ctx context.Context, text string) (domain.IntentKind, bool) {
	log := obs.Component("conversation")
	spec := llmrouter.PromptSpec{
		SystemRole:      "Classify the user's message into exactly one of: buy, sell, ask_advice, check_position, portfolio_adjust, market_analysis, run_backtest, chat.",
		TaskDescription: text,
	}
	resp, err := r.llm.Complete(ctx, llmrouter.TaskLightweight, spec)
	if err != nil {
		log.Warn().Err(err).Msg("llm intent classification failed, falling back to rule guess")
		return "", false
	}
	return CoerceIntent(resp.RawText), true
}

func (r *Router) dispatchTrade(ctx context.Context, kind domain.IntentKind, text string, now time.Time) string {
	slots, ok := ExtractTradeSlots(text, r.aliases, r.aliases.Mentions())
	if !ok {
		return "I couldn't tell which asset and quantity you mean. Could you clarify, e.g. \"buy 10 shares of 005930 at 75000\"?"
	}

	asset := domain.Asset{ID: slots.AssetID, Class: classifyAssetClass(slots.AssetID)}
	price := 0.0
	if slots.Price != nil {
		price = *slots.Price
	} else if r.quotes != nil {
		q, err := r.quotes.Quote(ctx, asset)
		if err != nil {
			return fmt.Sprintf("Could not fetch a current price for %s: %v", asset, err)
		}
		price = q.Price
	}

	switch kind {
	case domain.IntentBuy:
		pos, err := r.positions.Open(asset, *slots.Quantity, price, domain.SideLong, now)
		if err != nil {
			return renderError(asset, err)
		}
		return renderTradeConfirmation(asset, "Bought", *slots.Quantity, pos.EntryPrice)
	default:
		pnl, err := r.positions.Close(asset, domain.SideLong, *slots.Quantity, price, domain.CauseUser, now)
		if err != nil {
			return renderError(asset, err)
		}
		return renderCloseConfirmation(asset, *slots.Quantity, price, pnl)
	}
}

func (r *Router) dispatchCheckPosition(text string, now time.Time) string {
	var assetFilter *domain.Asset
	if m := reSymbolMention.FindString(text); m != "" {
		if id, ok := r.aliases.Resolve(m); ok {
			a := domain.Asset{ID: id, Class: classifyAssetClass(id)}
			assetFilter = &a
		}
	}
	positions := r.positions.Query(assetFilter)
	if len(positions) == 0 {
		return "No open positions."
	}
	var b strings.Builder
	for _, p := range positions {
		fmt.Fprintf(&b, "=== %s ===\nside=%s qty=%.4g entry=%.4g unrealized=%.2f\n",
			p.Asset, p.Side, p.QuantityRemaining, p.EntryPrice, p.UnrealizedPnL(p.LastMarkPrice))
	}
	b.WriteString("Risk note: figures are simulated, not live broker positions.")
	return b.String()
}

func (r *Router) renderPortfolio(now time.Time) string {
	snap := r.positions.Portfolio(now)
	var b strings.Builder
	b.WriteString("=== Portfolio ===\n")
	for class, summary := range snap.ByClass {
		fmt.Fprintf(&b, "%s: open=%d realized=%.2f unrealized=%.2f\n", class, summary.OpenPositions, summary.RealizedPnL, summary.UnrealizedPnL)
	}
	fmt.Fprintf(&b, "total realized=%.2f unrealized=%.2f win_rate=%.1f%%\n", snap.TotalRealized, snap.TotalUnrealized, snap.WinRate*100)
	b.WriteString("Risk note: simulated positions only, no live capital is at risk.")
	return b.String()
}

func (r *Router) dispatchAdvice(ctx context.Context, text string, now time.Time) string {
	m := reSymbolMention.FindString(text)
	if m == "" {
		return "Which asset would you like advice on?"
	}
	id, ok := r.aliases.Resolve(m)
	if !ok {
		return fmt.Sprintf("I don't recognize the asset %q.", m)
	}
	asset := domain.Asset{ID: id, Class: classifyAssetClass(id)}
	advice, _, err := r.advice.Tick(ctx, asset, now)
	if err != nil {
		return renderError(asset, err)
	}
	return renderAdvice(asset, advice)
}

func (r *Router) dispatchBacktest(ctx context.Context, text string, now time.Time) string {
	slots, ok := ExtractBacktestSlots(text, now, r.strategies)
	if !ok {
		return "I need a date range, a strategy name, and an initial capital to run a backtest, e.g. \"backtest fast_ma_cross_rsi_filter last 30 days with capital 10000\"."
	}
	result, err := r.backtests.RunNamed(ctx, slots.StrategyName, *slots.DateFrom, *slots.DateTo, *slots.InitialCapital)
	if err != nil {
		return fmt.Sprintf("Backtest failed: %v", err)
	}
	return renderBacktest(slots.StrategyName, result)
}

func renderError(asset domain.Asset, err error) string {
	switch {
	case errors.Is(err, apperr.ValidationError):
		return fmt.Sprintf("%s: request rejected: %v", asset, err)
	case errors.Is(err, apperr.RiskViolation):
		return fmt.Sprintf("%s: blocked by a risk rule: %v", asset, err)
	default:
		return fmt.Sprintf("%s: could not complete the request: %v", asset, err)
	}
}

func renderTradeConfirmation(asset domain.Asset, verb string, quantity, price float64) string {
	return fmt.Sprintf("=== %s ===\n%s %.4g @ %.4g\nRisk note: simulated fill, no live order was placed.", asset, verb, quantity, price)
}

func renderCloseConfirmation(asset domain.Asset, quantity, price, pnl float64) string {
	return fmt.Sprintf("=== %s ===\nSold %.4g @ %.4g\nrealized P&L: %.2f\nRisk note: simulated fill, no live order was placed.", asset, quantity, price, pnl)
}

func renderAdvice(asset domain.Asset, advice domain.Advice) string {
	return fmt.Sprintf("=== %s ===\naction=%s confidence=%.2f entry=%.4g stop=%.4g\n%s\nRisk note: advisory only, not an executed order.",
		asset, advice.Action, advice.Confidence, advice.Entry, advice.StopLoss, advice.ReasoningText)
}

func renderBacktest(strategy string, result BacktestResult) string {
	return fmt.Sprintf("=== Backtest: %s ===\nfinal_equity=%.2f total_return=%.2f%% win_rate=%.1f%% sharpe=%.2f max_drawdown=%.2f%%\nRisk note: past performance on historical data, not a forecast.",
		strategy, result.FinalEquity, result.TotalReturn*100, result.WinRate*100, result.Sharpe, result.MaxDrawdown*100)
}

// classifyAssetClass is a conservative heuristic: crypto IDs carry an
// exchange prefix ("BINANCE:BTCUSDT" per internal/domain's Asset.ID
// convention), everything else — tickers and numeric exchange codes — is
// equity. Real deployments configure this per alias instead; kept simple
// here since the alias table already carries the canonical ID by the time
// this runs.
func classifyAssetClass(id string) domain.AssetClass {
	if strings.Contains(id, ":") {
		return domain.AssetClassCrypto
	}
	return domain.AssetClassEquity
}
