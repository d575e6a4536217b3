package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/domain"
)

type fakePositions struct{ snap domain.PortfolioSnapshot }

func (f fakePositions) Portfolio(time.Time) domain.PortfolioSnapshot { return f.snap }

type fakeBacktests struct {
	report BacktestReport
	err    error
}

func (f fakeBacktests) Run(ctx context.Context, strategyName string, from, to time.Time, initialCapital float64) (BacktestReport, error) {
	return f.report, f.err
}

type fakeReports struct {
	stored map[string][]byte
}

func newFakeReports() *fakeReports { return &fakeReports{stored: map[string][]byte{}} }

func (f *fakeReports) Save(ctx context.Context, name string, payload []byte) (string, error) {
	f.stored[name] = payload
	return name, nil
}

func (f *fakeReports) Load(ctx context.Context, name string) ([]byte, error) {
	payload, ok := f.stored[name]
	if !ok {
		return nil, assert.AnError
	}
	return payload, nil
}

func (f *fakeReports) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.stored))
	for name := range f.stored {
		names = append(names, name)
	}
	return names, nil
}

const testSecret = "test-signing-secret"

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := operatorClaims{UserID: userID}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestServer() (*Server, *fakeReports) {
	reports := newFakeReports()
	s := New(
		fakePositions{snap: domain.PortfolioSnapshot{TotalRealized: 42}},
		fakeBacktests{report: BacktestReport{StrategyName: "fast_ma_cross_rsi_filter", FinalEquity: 12000}},
		reports,
		testSecret,
		nil,
	)
	return s, reports
}

func TestHealthCheckRequiresNoAuth(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthCheckReportsDegradedOnFailure(t *testing.T) {
	reports := newFakeReports()
	s := New(fakePositions{}, fakeBacktests{}, reports, testSecret, func() error { return assert.AnError })
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPortfolioRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/portfolio", nil)
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPortfolioRejectsMalformedToken(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/portfolio", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPortfolioAcceptsValidToken(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/portfolio", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.PortfolioSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 42.0, snap.TotalRealized)
}

func TestRunBacktestValidatesDateRange(t *testing.T) {
	s, _ := newTestServer()
	body, _ := json.Marshal(runBacktestRequest{
		StrategyName: "fast_ma_cross_rsi_filter",
		From:         time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		To:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/backtests", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunBacktestReturnsReport(t *testing.T) {
	s, _ := newTestServer()
	body, _ := json.Marshal(runBacktestRequest{
		StrategyName: "fast_ma_cross_rsi_filter",
		From:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:           time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/backtests", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report BacktestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 12000.0, report.FinalEquity)
}

func TestReportsRoundTripThroughStore(t *testing.T) {
	s, reports := newTestServer()
	reports.stored["2026-01-15T00:00:00Z.json"] = []byte(`{"ok":true}`)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2026-01-15T00:00:00Z.json")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/reports/2026-01-15T00:00:00Z.json", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestGetReportNotFound(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports/missing.json", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
