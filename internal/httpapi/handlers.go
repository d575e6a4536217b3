package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth reports liveness; healthFunc is nil-safe so Server can be
// used without wiring a real check in tests.
func (s *Server) handleHealth(c *gin.Context) {
	if s.healthFunc != nil {
		if err := s.healthFunc(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePortfolio returns the current cross-asset portfolio snapshot.
func (s *Server) handlePortfolio(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	snap := s.positions.Portfolio(time.Now())
	c.JSON(http.StatusOK, snap)
}

// runBacktestRequest is the manual-trigger payload for POST /v1/backtests.
type runBacktestRequest struct {
	StrategyName   string    `json:"strategy_name" binding:"required"`
	From           time.Time `json:"from" binding:"required"`
	To             time.Time `json:"to" binding:"required"`
	InitialCapital float64   `json:"initial_capital"`
}

// handleRunBacktest replays a named strategy over a date range on demand,
// for operators who want a report outside the chat surface.
func (s *Server) handleRunBacktest(c *gin.Context) {
	var req runBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if !req.To.After(req.From) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = 10000
	}

	report, err := s.backtests.Run(c.Request.Context(), req.StrategyName, req.From, req.To, req.InitialCapital)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backtest failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleListReports lists persisted report artifact names.
func (s *Server) handleListReports(c *gin.Context) {
	names, err := s.reports.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": names})
}

// handleGetReport retrieves one persisted report artifact by name.
func (s *Server) handleGetReport(c *gin.Context) {
	name := c.Param("name")
	payload, err := s.reports.Load(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found: " + err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}
