package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/anomaly"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/llmrouter"
)

type fakeSource struct {
	quote  domain.Quote
	series domain.Series
	err    error
}

func (f *fakeSource) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	return f.quote, f.err
}
func (f *fakeSource) Series(ctx context.Context, asset domain.Asset, width domain.BarWidth, count int) (domain.Series, error) {
	return f.series, f.err
}

func testAsset() domain.Asset { return domain.Asset{ID: "PIPE", Class: domain.AssetClassEquity} }

func flatSeries(asset domain.Asset, n int, price float64) domain.Series {
	bars := make([]domain.Bar, n)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: price, High: price, Low: price, Close: price, Volume: 100}
	}
	return domain.Series{Asset: asset, Width: domain.Bar1m, Bars: bars}
}

func TestTickWithoutAnomalyUsesRulesAdvice(t *testing.T) {
	asset := testAsset()
	series := flatSeries(asset, 30, 100)
	source := &fakeSource{quote: domain.Quote{Asset: asset, Price: 100}, series: series}

	detector := anomaly.NewDetector(200, time.Minute)
	router := llmrouter.New(nil, map[llmrouter.TaskClass][]string{}, time.Second)
	history := NewAdviceHistory(24 * time.Hour)

	p := New(source, detector, router, DefaultStrategies(), AggregatorConfig{ConfidenceThreshold: 0.6}, history, IndicatorParams{
		Width: domain.Bar1m, SeriesCount: 30, VolumeWindow: 10, SessionBars: 20, BreakoutEpsilon: 0.001,
	}, nil)

	advice, events, err := p.Tick(context.Background(), asset, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, domain.SourceRules, advice.Source)
}

func TestTickEscalatesOnAnomalySeverity(t *testing.T) {
	asset := testAsset()
	// A single huge bar-over-bar jump trips the single-bar-move rule (>=5%).
	bars := flatSeries(asset, 10, 100).Bars
	bars = append(bars, domain.Bar{Timestamp: bars[len(bars)-1].Timestamp.Add(time.Minute), Open: 100, High: 112, Low: 100, Close: 112, Volume: 100})
	series := domain.Series{Asset: asset, Width: domain.Bar1m, Bars: bars}
	source := &fakeSource{quote: domain.Quote{Asset: asset, Price: 112}, series: series}

	detector := anomaly.NewDetector(200, time.Minute)

	llmAdvice := domain.Advice{Asset: asset, Action: domain.ActionBuy, Confidence: 0.9, Source: domain.SourceLLM}
	fake := &fakeProvider{name: "p1", resp: llmrouter.Response{Decisions: []domain.Advice{llmAdvice}}}
	router := llmrouter.New([]llmrouter.Provider{fake}, map[llmrouter.TaskClass][]string{
		llmrouter.TaskStandard: {"p1"},
		llmrouter.TaskComplex:  {"p1"},
	}, 5*time.Second)

	history := NewAdviceHistory(24 * time.Hour)
	p := New(source, detector, router, DefaultStrategies(), AggregatorConfig{ConfidenceThreshold: 0.6}, history, IndicatorParams{
		Width: domain.Bar1m, SeriesCount: 20, VolumeWindow: 5, SessionBars: 10, BreakoutEpsilon: 0.001,
	}, nil)

	advice, events, err := p.Tick(context.Background(), asset, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.SourceLLM, advice.Source)
	assert.Equal(t, domain.ActionBuy, advice.Action)
}

func TestAdviceHistoryEvictsOldEntries(t *testing.T) {
	h := NewAdviceHistory(time.Hour)
	asset := testAsset()
	now := time.Now()

	h.Append(domain.Advice{Asset: asset, GeneratedAt: now.Add(-2 * time.Hour)}, now)
	h.Append(domain.Advice{Asset: asset, GeneratedAt: now}, now)

	entries := h.For(asset)
	require.Len(t, entries, 1)
}

type fakeProvider struct {
	name string
	resp llmrouter.Response
	err  error
}

func (f *fakeProvider) Name() string                      { return f.name }
func (f *fakeProvider) SupportsTaskClass(llmrouter.TaskClass) bool { return true }
func (f *fakeProvider) Complete(ctx context.Context, spec llmrouter.PromptSpec) (llmrouter.Response, error) {
	if f.err != nil {
		return llmrouter.Response{}, f.err
	}
	return f.resp, nil
}
