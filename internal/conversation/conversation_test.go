package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/llmrouter"
)

func TestRuleClassifierPriorityOrder(t *testing.T) {
	rc := RuleClassifier{}

	kind, conf := rc.Classify("buy 10 shares of AAPL")
	assert.Equal(t, domain.IntentBuy, kind)
	assert.InDelta(t, 0.9, conf, 1e-9)

	kind, conf = rc.Classify("backtest fast_ma_cross last 30 days")
	assert.Equal(t, domain.IntentRunBacktest, kind)
	assert.InDelta(t, 0.85, conf, 1e-9)

	kind, conf = rc.Classify("what's my position in AAPL")
	assert.Equal(t, domain.IntentCheckPosition, kind)
	assert.InDelta(t, 0.85, conf, 1e-9)

	kind, conf = rc.Classify("how's the market today")
	assert.Equal(t, domain.IntentMarketAnalysis, kind)
	assert.InDelta(t, 0.75, conf, 1e-9)

	kind, conf = rc.Classify("good morning")
	assert.Equal(t, domain.IntentChat, kind)
	assert.Less(t, conf, RuleClassifierConfidenceThreshold)
}

func TestCoerceIntentDefaultsToChatForUnknownOutput(t *testing.T) {
	assert.Equal(t, domain.IntentBuy, CoerceIntent("buy"))
	assert.Equal(t, domain.IntentChat, CoerceIntent("unicorn_intent"))
	assert.Equal(t, domain.IntentChat, CoerceIntent(""))
}

func TestExtractTradeSlotsRequiresQuantity(t *testing.T) {
	aliases := NewAliasTable(map[string]string{"삼성전자": "005930"})

	_, ok := ExtractTradeSlots("buy 삼성전자", aliases, nil)
	assert.False(t, ok, "missing quantity must trigger clarification, not a guess")

	slots, ok := ExtractTradeSlots("매수 삼성전자 10주 가격 75000", aliases, nil)
	require.True(t, ok)
	assert.Equal(t, "005930", slots.AssetID)
	require.NotNil(t, slots.Quantity)
	assert.InDelta(t, 10, *slots.Quantity, 1e-9)
	require.NotNil(t, slots.Price)
	assert.InDelta(t, 75000, *slots.Price, 1e-9)
}

func TestExtractBacktestSlotsLastNDays(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	slots, ok := ExtractBacktestSlots("backtest fast_ma_cross_rsi_filter last 30 days with capital 10000", now, []string{"fast_ma_cross_rsi_filter"})
	require.True(t, ok)
	assert.Equal(t, "fast_ma_cross_rsi_filter", slots.StrategyName)
	assert.Equal(t, now.AddDate(0, 0, -30), *slots.DateFrom)
	assert.Equal(t, now, *slots.DateTo)
	assert.InDelta(t, 10000, *slots.InitialCapital, 1e-9)
}

func TestExtractBacktestSlotsIncompleteReturnsNotOk(t *testing.T) {
	now := time.Now()
	_, ok := ExtractBacktestSlots("run a backtest please", now, []string{"fast_ma_cross_rsi_filter"})
	assert.False(t, ok)
}

func TestAllowListRefusesUnlistedUser(t *testing.T) {
	al := NewAllowList([]string{"alice"})
	assert.True(t, al.Check("alice"))
	assert.False(t, al.Check("mallory"))
}

// fakePositions is a minimal PositionService double.
type fakePositions struct {
	opened   domain.Position
	closePnL float64
	queried  []domain.Position
	snapshot domain.PortfolioSnapshot
}

func (f *fakePositions) Open(asset domain.Asset, quantity, entryPrice float64, side domain.Side, now time.Time) (domain.Position, error) {
	f.opened = domain.Position{Asset: asset, Side: side, QuantityRemaining: quantity, OriginalQuantity: quantity, EntryPrice: entryPrice, EntryTime: now}
	return f.opened, nil
}
func (f *fakePositions) Close(asset domain.Asset, side domain.Side, quantity, exitPrice float64, cause domain.TradeCause, now time.Time) (float64, error) {
	return f.closePnL, nil
}
func (f *fakePositions) Query(asset *domain.Asset) []domain.Position { return f.queried }
func (f *fakePositions) Portfolio(now time.Time) domain.PortfolioSnapshot { return f.snapshot }

type fakeAdvice struct {
	advice domain.Advice
}

func (f *fakeAdvice) Tick(ctx context.Context, asset domain.Asset, now time.Time) (domain.Advice, []domain.AnomalyEvent, error) {
	return f.advice, nil, nil
}

type fakeBacktests struct {
	result BacktestResult
}

func (f *fakeBacktests) RunNamed(ctx context.Context, strategyName string, from, to time.Time, initialCapital float64) (BacktestResult, error) {
	return f.result, nil
}

type fakeQuotes struct {
	quote domain.Quote
}

func (f *fakeQuotes) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	return f.quote, nil
}

func newTestRouter(positions *fakePositions, advice *fakeAdvice, backtests *fakeBacktests, quotes *fakeQuotes) *Router {
	llm := llmrouter.New(nil, nil, time.Second)
	aliases := NewAliasTable(map[string]string{"삼성전자": "005930", "三星电子": "005930"})
	allow := NewAllowList([]string{"alice"})
	return NewRouter(llm, allow, aliases, positions, advice, backtests, quotes, []string{"fast_ma_cross_rsi_filter"})
}

func TestHandleRefusesUnauthorizedUser(t *testing.T) {
	r := newTestRouter(&fakePositions{}, &fakeAdvice{}, &fakeBacktests{}, &fakeQuotes{})
	got := r.Handle(context.Background(), "mallory", "buy 10 shares of AAPL", time.Now())
	assert.Equal(t, FixedRefusalMessage, got)
}

func TestHandleDispatchesBuyWithExplicitPrice(t *testing.T) {
	positions := &fakePositions{}
	r := newTestRouter(positions, &fakeAdvice{}, &fakeBacktests{}, &fakeQuotes{})
	got := r.Handle(context.Background(), "alice", "buy 10 shares of AAPL at 150", time.Now())
	assert.Contains(t, got, "Bought")
	assert.InDelta(t, 10, positions.opened.QuantityRemaining, 1e-9)
	assert.InDelta(t, 150, positions.opened.EntryPrice, 1e-9)
}

func TestHandleDispatchesChineseScriptBuy(t *testing.T) {
	positions := &fakePositions{}
	r := newTestRouter(positions, &fakeAdvice{}, &fakeBacktests{}, &fakeQuotes{})
	got := r.Handle(context.Background(), "alice", "买入三星电子 10股 价格75000", time.Now())
	assert.Contains(t, got, "Bought")
	assert.Equal(t, "005930", positions.opened.Asset.ID)
	assert.InDelta(t, 10, positions.opened.QuantityRemaining, 1e-9)
	assert.InDelta(t, 75000, positions.opened.EntryPrice, 1e-9)
}

func TestHandleClarifiesOnMissingQuantity(t *testing.T) {
	r := newTestRouter(&fakePositions{}, &fakeAdvice{}, &fakeBacktests{}, &fakeQuotes{})
	got := r.Handle(context.Background(), "alice", "buy 삼성전자", time.Now())
	assert.Contains(t, got, "couldn't tell")
}

func TestHandleDispatchesAdvice(t *testing.T) {
	advice := &fakeAdvice{advice: domain.Advice{
		Asset: domain.Asset{ID: "AAPL", Class: domain.AssetClassEquity}, Action: domain.ActionBuy,
		Confidence: 0.8, Entry: 150, StopLoss: 140, ReasoningText: "momentum positive",
	}}
	r := newTestRouter(&fakePositions{}, advice, &fakeBacktests{}, &fakeQuotes{})
	got := r.Handle(context.Background(), "alice", "what do you think about AAPL", time.Now())
	assert.Contains(t, got, "action=buy")
	assert.Contains(t, got, "Risk note")
}

func TestHandleDispatchesBacktest(t *testing.T) {
	backtests := &fakeBacktests{result: BacktestResult{FinalEquity: 12000, TotalReturn: 0.2, WinRate: 0.6, Sharpe: 1.1, MaxDrawdown: 0.05}}
	r := newTestRouter(&fakePositions{}, &fakeAdvice{}, backtests, &fakeQuotes{})
	got := r.Handle(context.Background(), "alice", "backtest fast_ma_cross_rsi_filter last 30 days with capital 10000", time.Now())
	assert.Contains(t, got, "Backtest: fast_ma_cross_rsi_filter")
	assert.Contains(t, got, "final_equity=12000.00")
}

func TestHandleUnclassifiableFallsBackToMenu(t *testing.T) {
	r := newTestRouter(&fakePositions{}, &fakeAdvice{}, &fakeBacktests{}, &fakeQuotes{})
	got := r.Handle(context.Background(), "alice", "good morning", time.Now())
	assert.Contains(t, got, "I can help with")
}
