package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
)

// EquityAdapter is a poll-only REST adapter for equity quotes/series,
// grounded on SynapseStrike/provider/alpaca_stock_data.go's synchronous,
// no-streaming broker client shape.
type EquityAdapter struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewEquityAdapter constructs a named poll-only equity adapter.
func NewEquityAdapter(name, baseURL, apiKey string) *EquityAdapter {
	return &EquityAdapter{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *EquityAdapter) Name() string { return a.name }

type equityQuotePayload struct {
	Price        float64 `json:"price"`
	Volume       float64 `json:"volume"`
	Change24hPct float64 `json:"change_24h_pct"`
	Currency     string  `json:"currency"`
}

func (a *EquityAdapter) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	url := fmt.Sprintf("%s/v2/quote/%s", a.baseURL, asset.ID)
	var payload equityQuotePayload
	if err := a.getJSON(ctx, url, &payload); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Asset:        asset,
		Timestamp:    time.Now(),
		Price:        payload.Price,
		VolumeWindow: payload.Volume,
		Change24hPct: payload.Change24hPct,
		Currency:     payload.Currency,
	}, nil
}

type equityBarPayload struct {
	Bars []struct {
		Timestamp time.Time `json:"t"`
		Open      float64   `json:"o"`
		High      float64   `json:"h"`
		Low       float64   `json:"l"`
		Close     float64   `json:"c"`
		Volume    float64   `json:"v"`
	} `json:"bars"`
}

func (a *EquityAdapter) Series(ctx context.Context, asset domain.Asset, width domain.BarWidth, count int) (domain.Series, error) {
	url := fmt.Sprintf("%s/v2/bars/%s?width=%s&count=%d", a.baseURL, asset.ID, width, count)
	var payload equityBarPayload
	if err := a.getJSON(ctx, url, &payload); err != nil {
		return domain.Series{}, err
	}
	bars := make([]domain.Bar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		bars = append(bars, domain.Bar{Timestamp: b.Timestamp, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return domain.Series{Asset: asset, Width: width, Bars: bars}, nil
}

func (a *EquityAdapter) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrap(apperr.TransientUpstream, "build request to %s: %v", a.name, err)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.TransientUpstream, "call %s: %v", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return apperr.Wrap(apperr.TransientUpstream, "%s rate-limited the request", a.name)
	}
	if resp.StatusCode >= 500 {
		return apperr.Wrap(apperr.TransientUpstream, "%s returned %d", a.name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return apperr.Wrap(apperr.ValidationError, "%s rejected request: %d", a.name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.TransientUpstream, "malformed response from %s: %v", a.name, err)
	}
	return nil
}
