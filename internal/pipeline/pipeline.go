package pipeline

import (
	"context"
	"time"

	"github.com/axiomtrader/assistant/internal/anomaly"
	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/indicator"
	"github.com/axiomtrader/assistant/internal/llmrouter"
	"github.com/axiomtrader/assistant/internal/metrics"
	"github.com/axiomtrader/assistant/internal/obs"
)

// QuoteSeriesSource is the subset of internal/marketdata's Chain the
// pipeline depends on, kept as a narrow interface to avoid a package cycle
// and to make the orchestration testable without a real adapter chain.
type QuoteSeriesSource interface {
	Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error)
	Series(ctx context.Context, asset domain.Asset, width domain.BarWidth, count int) (domain.Series, error)
}

// IndicatorParams configures the indicator snapshot computation.
type IndicatorParams struct {
	Width           domain.BarWidth
	SeriesCount     int
	VolumeWindow    int
	SessionBars     int
	BreakoutEpsilon float64
}

// Pipeline orchestrates C1→C2→C3, conditionally escalates to C4, aggregates
// strategy votes, and maintains the advice history. Grounded on
// SynapseStrike/trader/auto_trader.go's tick loop, generalized from one
// hardcoded exchange client to the QuoteSeriesSource interface.
type Pipeline struct {
	source     QuoteSeriesSource
	detector   *anomaly.Detector
	router     *llmrouter.Router
	strategies []Strategy
	aggCfg     AggregatorConfig
	history    *AdviceHistory
	params     IndicatorParams
	subscribers []func(domain.Advice)
	onAlert     func(domain.Asset, domain.Quote) // forwarded to C6 for mark-to-market

	escalationSeverity domain.Severity
}

// New constructs a Pipeline. onAlert, if non-nil, is invoked with every
// fresh Quote so the Position Tracker can mark positions on the same tick
// (spec.md §2: "C6 independently marks positions at each C1 tick").
func New(source QuoteSeriesSource, detector *anomaly.Detector, router *llmrouter.Router, strategies []Strategy, aggCfg AggregatorConfig, history *AdviceHistory, params IndicatorParams, onAlert func(domain.Asset, domain.Quote)) *Pipeline {
	return &Pipeline{
		source:             source,
		detector:           detector,
		router:             router,
		strategies:         strategies,
		aggCfg:             aggCfg,
		history:            history,
		params:             params,
		onAlert:            onAlert,
		escalationSeverity: domain.SeverityWarn,
	}
}

// Subscribe registers a callback invoked with every Advice this pipeline
// emits (e.g. the chat transport, or a report writer).
func (p *Pipeline) Subscribe(fn func(domain.Advice)) {
	p.subscribers = append(p.subscribers, fn)
}

// Tick runs one fetch→indicator→anomaly→(optional LLM)→advice cycle for a
// single asset. Callers are responsible for ensuring at most one Tick runs
// at a time per asset ("each mode runs serially per asset," spec.md §4.5).
func (p *Pipeline) Tick(ctx context.Context, asset domain.Asset, now time.Time) (domain.Advice, []domain.AnomalyEvent, error) {
	log := obs.Component("pipeline")
	metrics.TicksTotal.WithLabelValues(asset.String()).Inc()

	quote, err := p.source.Quote(ctx, asset)
	if err != nil {
		return domain.Advice{}, nil, apperr.Wrap(apperr.TransientUpstream, "tick %s: fetch quote: %v", asset, err)
	}
	if p.onAlert != nil {
		p.onAlert(asset, quote)
	}

	series, err := p.source.Series(ctx, asset, p.params.Width, p.params.SeriesCount)
	if err != nil {
		return domain.Advice{}, nil, apperr.Wrap(apperr.TransientUpstream, "tick %s: fetch series: %v", asset, err)
	}

	snap := indicator.Snapshot(asset, series.Bars, nil, p.params.VolumeWindow, p.params.SessionBars, p.params.BreakoutEpsilon)

	events := p.detector.Observe(buildObservation(asset, series, now))
	for _, ev := range events {
		metrics.AnomaliesTotal.WithLabelValues(string(ev.Kind), ev.Severity.String()).Inc()
	}

	votes := make(map[string]Vote, len(p.strategies))
	for _, s := range p.strategies {
		votes[s.Name()] = s.Evaluate(snap, quote)
	}
	advice := Aggregate(p.aggCfg, votes, asset, quote)
	advice.GeneratedAt = now

	if worstSeverity(events) >= p.escalationSeverity {
		advice = p.escalate(ctx, asset, quote, snap, events, advice, now)
	}

	p.history.Append(advice, now)
	for _, sub := range p.subscribers {
		sub(advice)
	}

	log.Debug().Str("asset", asset.String()).Str("action", string(advice.Action)).
		Float64("confidence", advice.Confidence).Int("anomalies", len(events)).Msg("tick complete")

	return advice, events, nil
}

func (p *Pipeline) escalate(ctx context.Context, asset domain.Asset, quote domain.Quote, snap domain.Snapshot, events []domain.AnomalyEvent, fallback domain.Advice, now time.Time) domain.Advice {
	log := obs.Component("pipeline")
	worst := events[0]
	for _, ev := range events {
		if ev.Severity > worst.Severity {
			worst = ev
		}
	}

	class := llmrouter.SelectTaskClass(llmrouter.TaskStandard, worst.Severity, quote.Change24hPct, 0, false)
	spec := llmrouter.PromptSpec{
		SystemRole:      "You are a disciplined trading assistant. Respond only with the requested JSON decision.",
		TaskDescription: "Evaluate the current market state and recommend an action for this asset.",
		Context: llmrouter.ContextBlocks{
			Quote:      &quote,
			Indicators: &snap,
			Anomaly:    &worst,
		},
	}

	resp, err := p.router.Complete(ctx, class, spec)
	if err != nil || len(resp.Decisions) == 0 {
		log.Warn().Str("asset", asset.String()).Err(err).Msg("llm escalation failed, keeping rules-based advice")
		return fallback
	}

	advice := resp.Decisions[0]
	advice.Asset = asset
	advice.GeneratedAt = now
	return advice
}

func worstSeverity(events []domain.AnomalyEvent) domain.Severity {
	worst := domain.SeverityInfo
	for _, ev := range events {
		if ev.Severity > worst {
			worst = ev.Severity
		}
	}
	if len(events) == 0 {
		return domain.SeverityInfo - 1 // sentinel: no events, always below escalationSeverity
	}
	return worst
}

// buildObservation derives the anomaly detector's Observation from the
// latest two bars of a series. A series shorter than 2 bars yields an
// observation with no usable signal (all-zero, debounce-safe since the
// rolling baseline simply won't score an outlier from a single sample).
func buildObservation(asset domain.Asset, series domain.Series, now time.Time) anomaly.Observation {
	bars := series.Bars
	if len(bars) < 2 {
		return anomaly.Observation{Asset: asset, Timestamp: now}
	}
	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]

	var return1m float64
	if prev.Close != 0 {
		return1m = (last.Close - prev.Close) / prev.Close
	}

	var priceRange1h float64
	if last.Close != 0 {
		priceRange1h = (last.High - last.Low) / last.Close
	}

	avgVolume := averageVolume(bars)
	largePrint := avgVolume > 0 && last.Volume >= 3*avgVolume
	direction := 0
	if largePrint {
		if last.Close >= prev.Close {
			direction = 1
		} else {
			direction = -1
		}
	}

	return anomaly.Observation{
		Asset:                asset,
		Timestamp:            now,
		Return1m:             return1m,
		VolumeZ5mInput:       last.Volume,
		PriceRange1h:         priceRange1h,
		SingleBarMovePct:     return1m,
		LargeVolumePrint:     largePrint,
		LargeVolumeDirection: direction,
	}
}

func averageVolume(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}
