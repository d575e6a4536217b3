// Command assistant wires every component (C1-C9) into a supervised
// process: config load, adapter chains, pipeline, position tracker,
// backtest runner, conversation router, HTTP surface, and the currency
// refresh cron job, all under one Supervisor.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/axiomtrader/assistant/internal/anomaly"
	"github.com/axiomtrader/assistant/internal/backtest"
	"github.com/axiomtrader/assistant/internal/chat"
	"github.com/axiomtrader/assistant/internal/config"
	"github.com/axiomtrader/assistant/internal/conversation"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/httpapi"
	"github.com/axiomtrader/assistant/internal/llmrouter"
	"github.com/axiomtrader/assistant/internal/marketdata"
	"github.com/axiomtrader/assistant/internal/obs"
	"github.com/axiomtrader/assistant/internal/pipeline"
	"github.com/axiomtrader/assistant/internal/position"
	"github.com/axiomtrader/assistant/internal/storage"
	"github.com/axiomtrader/assistant/internal/supervisor"
)

const (
	exitOK             = 0
	exitConfigError    = 1
	exitDependencyFail = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML config file")
	pidFile := flag.String("pid-file", "", "optional pid file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfigError
	}
	obs.SetLevel(cfg.LogLevel)
	log := obs.Component("main")

	universe := buildUniverse(cfg)

	posStore, err := storage.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Error().Err(err).Msg("opening position store")
		return exitDependencyFail
	}
	defer posStore.Close()

	reportStore, err := storage.NewReportStore(cfg.Storage.ReportsDir)
	if err != nil {
		log.Error().Err(err).Msg("opening report store")
		return exitDependencyFail
	}

	riskConfig := position.RiskConfig{
		StopWarningPct: cfg.Risk.StopWarningPct,
		StopLossPct:    cfg.Risk.StopLossPct,
		MajorGainPct:   cfg.Risk.MajorGainPct,
		TakeProfitPct:  cfg.Risk.TakeProfitPct,
		MaxHold:        time.Duration(cfg.Risk.MaxHoldHours * float64(time.Hour)),
	}
	tracker := position.NewTracker(
		riskConfig,
		position.IntradayLimits{
			MaxTradesPerDay:      cfg.Risk.MaxTradesPerDay,
			MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
			MinGapBetweenOpens:   cfg.Risk.MinGapBetweenOpens,
		},
	)
	restoreOpenPositions(tracker, posStore, log)

	chain := buildMarketDataChain(cfg)
	currencyCache := marketdata.NewCurrencyCache(staticCurrencyProvider())

	llmProviders := buildLLMProviders(cfg)
	router := llmrouter.New(llmProviders, taskMap(cfg), cfg.LLM.CallBudget)

	detector := anomaly.NewDetector(int(cfg.Anomaly.DefaultHorizon/cfg.TickInterval()), time.Duration(cfg.Anomaly.DebounceSeconds)*time.Second)
	strategies := pipeline.DefaultStrategies()
	history := pipeline.NewAdviceHistory(24 * time.Hour)

	pipe := pipeline.New(
		chain,
		detector,
		router,
		strategies,
		pipeline.AggregatorConfig{Weights: equalWeights(strategies), ConfidenceThreshold: 0.6},
		history,
		pipeline.IndicatorParams{Width: domain.Bar5m, SeriesCount: 200, VolumeWindow: 20, SessionBars: 78, BreakoutEpsilon: 0.001},
		func(asset domain.Asset, q domain.Quote) { tracker.Mark(asset, q.Price, q.Timestamp) },
	)

	historicalSource := buildHistoricalSource(cfg)
	backtestRunner := backtest.NewNamedRunner(historicalSource, universe, strategies, backtest.DefaultIndicatorParams(), riskConfig)

	transport := chat.NewLoopbackTransport()
	convRouter := conversation.NewRouter(
		router,
		conversation.NewAllowList(cfg.Auth.Users),
		conversation.NewAliasTable(cfg.Assets.Aliases),
		tracker,
		pipe,
		backtestAdapter{backtestRunner},
		chain,
		strategyNames(strategies),
	)
	transport.OnMessage(func(m chat.Message) {
		reply := convRouter.Handle(context.Background(), m.UserID, m.Text, m.Timestamp)
		_ = transport.Send(m.UserID, reply)
	})

	server := httpapi.New(tracker, httpapiBacktestAdapter{backtestRunner}, reportStore, cfg.HTTPJWTSecret, nil)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           server.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sup := supervisor.New(*pidFile, 10*time.Second, func(ev supervisor.LifecycleEvent) {
		log.Info().Str("unit", ev.Unit).Str("kind", ev.Kind).Int("attempt", ev.Attempt).Err(ev.Err).Msg("lifecycle")
	})

	sup.Add(supervisor.UnitFunc{UnitName: "http", Fn: func(ctx context.Context) error {
		errc := make(chan error, 1)
		go func() { errc <- httpServer.ListenAndServe() }()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errc:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	}})

	sup.Add(supervisor.UnitFunc{UnitName: "pipeline-tick", Fn: func(ctx context.Context) error {
		return runPipelineLoop(ctx, pipe, universe, tracker, posStore, cfg.TickInterval())
	}})

	sup.Add(supervisor.CronUnit{
		UnitName: "currency-refresh",
		Spec:     "0 * * * *",
		Job:      currencyCache.Refresh,
	})

	if err := sup.Start(); err != nil {
		log.Error().Err(err).Msg("starting supervisor")
		return exitDependencyFail
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutdown signal received")
	sup.Stop()
	return exitOK
}

// backtestAdapter satisfies conversation.BacktestService by converting
// backtest.Result into conversation.BacktestResult at the call boundary,
// keeping internal/conversation free of an internal/backtest import.
type backtestAdapter struct {
	runner *backtest.NamedRunner
}

func (a backtestAdapter) RunNamed(ctx context.Context, strategyName string, from, to time.Time, initialCapital float64) (conversation.BacktestResult, error) {
	result, err := a.runner.RunWithCapital(ctx, strategyName, from, to, initialCapital)
	if err != nil {
		return conversation.BacktestResult{}, err
	}
	return conversation.BacktestResult{
		FinalEquity: result.FinalEquity,
		TotalReturn: result.TotalReturn,
		WinRate:     result.WinRate,
		Sharpe:      result.Sharpe,
		MaxDrawdown: result.MaxDrawdown,
	}, nil
}

// httpapiBacktestAdapter satisfies httpapi.BacktestService the same way,
// for the manual-trigger HTTP endpoint.
type httpapiBacktestAdapter struct {
	runner *backtest.NamedRunner
}

func (a httpapiBacktestAdapter) Run(ctx context.Context, strategyName string, from, to time.Time, initialCapital float64) (httpapi.BacktestReport, error) {
	result, err := a.runner.RunWithCapital(ctx, strategyName, from, to, initialCapital)
	if err != nil {
		return httpapi.BacktestReport{}, err
	}
	return httpapi.BacktestReport{
		StrategyName: strategyName,
		From:         from,
		To:           to,
		FinalEquity:  result.FinalEquity,
		TotalReturn:  result.TotalReturn,
		WinRate:      result.WinRate,
		Sharpe:       result.Sharpe,
		MaxDrawdown:  result.MaxDrawdown,
	}, nil
}

func buildUniverse(cfg config.Config) []domain.Asset {
	universe := make([]domain.Asset, 0, len(cfg.Assets.Equity)+len(cfg.Assets.Crypto))
	for _, id := range cfg.Assets.Equity {
		universe = append(universe, domain.Asset{ID: id, Class: domain.AssetClassEquity})
	}
	for _, id := range cfg.Assets.Crypto {
		universe = append(universe, domain.Asset{ID: id, Class: domain.AssetClassCrypto})
	}
	return universe
}

func buildMarketDataChain(cfg config.Config) *marketdata.Chain {
	var adapters []marketdata.Adapter
	if len(cfg.Assets.Equity) > 0 {
		adapters = append(adapters, marketdata.NewEquityAdapter("primary-equity", "https://api.example-equity.invalid", cfg.ProviderAPIKeys["equity"]))
	}
	if len(cfg.Assets.Crypto) > 0 {
		adapters = append(adapters, marketdata.NewCryptoAdapter("primary-crypto", "https://api.example-crypto.invalid", "wss://stream.example-crypto.invalid"))
	}
	return marketdata.NewChain(adapters, 5, 10)
}

// classRoutedHistory dispatches a backtest history fetch to the
// per-class HistoricalSource. The live-quote Chain has no such split: it
// holds the adapters of every class in one list and tries them in order
// for any asset.
type classRoutedHistory struct {
	equity *marketdata.HistoricalSource
	crypto *marketdata.HistoricalSource
}

func (h classRoutedHistory) Series(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.Series, error) {
	if asset.Class == domain.AssetClassCrypto && h.crypto != nil {
		return h.crypto.Series(ctx, asset, from, to)
	}
	return h.equity.Series(ctx, asset, from, to)
}

func buildHistoricalSource(cfg config.Config) classRoutedHistory {
	return classRoutedHistory{
		equity: marketdata.NewHistoricalSource("primary-equity-history", "https://api.example-equity.invalid", cfg.ProviderAPIKeys["equity"], domain.Bar1d),
		crypto: marketdata.NewHistoricalSource("primary-crypto-history", "https://api.example-crypto.invalid", "", domain.Bar1d),
	}
}

func buildLLMProviders(cfg config.Config) []llmrouter.Provider {
	providers := []llmrouter.Provider{llmrouter.NewLocalFuncProvider()}
	if key := cfg.ProviderAPIKeys["architect"]; key != "" {
		providers = append(providers, llmrouter.NewHTTPProvider("architect", llmrouter.WithAPIKey(key)))
	}
	if key := cfg.ProviderAPIKeys["localai"]; key != "" {
		providers = append(providers, llmrouter.NewHTTPProvider("localai", llmrouter.WithAPIKey(key)))
	}
	return providers
}

func taskMap(cfg config.Config) map[llmrouter.TaskClass][]string {
	out := make(map[llmrouter.TaskClass][]string, len(cfg.LLM.TaskMap))
	for class, providers := range cfg.LLM.TaskMap {
		out[llmrouter.TaskClass(class)] = providers
	}
	return out
}

func equalWeights(strategies []pipeline.Strategy) map[string]float64 {
	weights := make(map[string]float64, len(strategies))
	for _, s := range strategies {
		weights[s.Name()] = 1.0
	}
	return weights
}

func strategyNames(strategies []pipeline.Strategy) []string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name()
	}
	return names
}

func staticCurrencyProvider() marketdata.RateProvider {
	return func(ctx context.Context) (map[string]float64, error) {
		return map[string]float64{"USD": 1, "KRW": 1.0 / 1350, "CNY": 1.0 / 7.2}, nil
	}
}

func restoreOpenPositions(tracker *position.Tracker, store *storage.PositionStore, log zerolog.Logger) {
	open, err := store.LoadOpen()
	if err != nil {
		log.Warn().Err(err).Msg("loading persisted positions, starting empty")
		return
	}
	tracker.Restore(open)
	log.Info().Int("count", len(open)).Msg("restored open positions")
}

// tickFanIn bounds how many assets are ticked concurrently per interval, so
// a universe of hundreds of symbols doesn't open hundreds of simultaneous
// upstream requests on every tick (C1's fan-in is per-asset failover, not
// unbounded concurrency).
const tickFanIn = 8

func runPipelineLoop(ctx context.Context, pipe *pipeline.Pipeline, universe []domain.Asset, tracker *position.Tracker, posStore *storage.PositionStore, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := obs.Component("pipeline-tick")
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			var g errgroup.Group
			g.SetLimit(tickFanIn)
			for _, asset := range universe {
				asset := asset
				g.Go(func() error {
					if _, _, err := pipe.Tick(ctx, asset, now); err != nil {
						log.Warn().Err(err).Str("asset", asset.String()).Msg("tick failed")
					}
					return nil
				})
			}
			_ = g.Wait()
			for _, pos := range tracker.Query(nil) {
				_ = posStore.Upsert(pos)
			}
		}
	}
}
