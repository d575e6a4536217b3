// Package httpapi exposes the assistant's operator-facing HTTP surface: a
// health check, portfolio/report retrieval, and a manual backtest trigger.
// Handlers follow the teacher's gin.Context receiver-method shape; JWT
// validation is the one piece with no pack-provided example to ground on,
// so it follows golang-jwt/jwt/v5's own documented usage directly.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/metrics"
	"github.com/axiomtrader/assistant/internal/obs"
)

// PositionService is the narrow slice of the Position Tracker the HTTP
// surface needs: a read-only portfolio snapshot.
type PositionService interface {
	Portfolio(now time.Time) domain.PortfolioSnapshot
}

// BacktestService runs a named strategy backtest on demand. It takes the
// same arguments as conversation.BacktestService but has its own method
// name and result type, so cmd/assistant wires a separate adapter for it.
type BacktestService interface {
	Run(ctx context.Context, strategyName string, from, to time.Time, initialCapital float64) (BacktestReport, error)
}

// BacktestReport is the HTTP-facing result of a manually triggered backtest.
type BacktestReport struct {
	StrategyName string    `json:"strategy_name"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	FinalEquity  float64   `json:"final_equity"`
	TotalReturn  float64   `json:"total_return"`
	WinRate      float64   `json:"win_rate"`
	Sharpe       float64   `json:"sharpe"`
	MaxDrawdown  float64   `json:"max_drawdown"`
}

// ReportStore persists and retrieves backtest/portfolio report artifacts.
type ReportStore interface {
	Save(ctx context.Context, name string, payload []byte) (string, error)
	Load(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// Server is the assistant's HTTP API: a gin engine plus the component
// services it fronts.
type Server struct {
	engine     *gin.Engine
	positions  PositionService
	backtests  BacktestService
	reports    ReportStore
	jwtSecret  []byte
	healthFunc func() error
}

// New builds a Server with routes registered. jwtSecret authenticates every
// route except /healthz and /metrics; an empty jwtSecret disables auth entirely (local
// development only — operators must set HTTP_JWT_SECRET in any shared
// environment).
func New(positions PositionService, backtests BacktestService, reports ReportStore, jwtSecret string, healthFunc func() error) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:     gin.New(),
		positions:  positions,
		backtests:  backtests,
		reports:    reports,
		jwtSecret:  []byte(jwtSecret),
		healthFunc: healthFunc,
	}
	s.routes()
	return s
}

// Engine exposes the underlying gin engine for cmd/assistant to wrap in an
// http.Server with its own timeouts.
func (s *Server) Engine() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), requestLogger())
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	authed := s.engine.Group("/")
	authed.Use(s.authMiddleware())
	authed.GET("/v1/portfolio", s.handlePortfolio)
	authed.POST("/v1/backtests", s.handleRunBacktest)
	authed.GET("/v1/reports", s.handleListReports)
	authed.GET("/v1/reports/:name", s.handleGetReport)
}

func requestLogger() gin.HandlerFunc {
	log := obs.Component("httpapi")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
