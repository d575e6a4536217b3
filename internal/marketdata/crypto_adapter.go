package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/obs"
)

// CryptoAdapter is a REST+WebSocket adapter for spot crypto quotes/series,
// grounded on SynapseStrike/market/api_client.go's exchange HTTP client
// plus gorilla/websocket for streaming ticks — the crypto class supports
// subscribe(), unlike the poll-only equity adapter.
type CryptoAdapter struct {
	name       string
	baseURL    string
	wsURL      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewCryptoAdapter constructs a named REST+WS crypto adapter.
func NewCryptoAdapter(name, baseURL, wsURL string) *CryptoAdapter {
	return &CryptoAdapter{
		name:       name,
		baseURL:    baseURL,
		wsURL:      wsURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     websocket.DefaultDialer,
	}
}

func (a *CryptoAdapter) Name() string { return a.name }

type cryptoTickerPayload struct {
	Last       float64 `json:"last"`
	Volume24h  float64 `json:"vol24h"`
	Change24h  float64 `json:"change24h"`
	QuoteAsset string  `json:"quote_asset"`
}

func (a *CryptoAdapter) Quote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	url := fmt.Sprintf("%s/ticker/%s", a.baseURL, asset.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Quote{}, apperr.Wrap(apperr.TransientUpstream, "build request to %s: %v", a.name, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, apperr.Wrap(apperr.TransientUpstream, "call %s: %v", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.Quote{}, apperr.Wrap(apperr.TransientUpstream, "%s rate-limited the request", a.name)
	}
	if resp.StatusCode >= 400 {
		return domain.Quote{}, apperr.Wrap(apperr.TransientUpstream, "%s returned %d", a.name, resp.StatusCode)
	}

	var payload cryptoTickerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Quote{}, apperr.Wrap(apperr.TransientUpstream, "malformed ticker from %s: %v", a.name, err)
	}

	return domain.Quote{
		Asset:        asset,
		Timestamp:    time.Now(),
		Price:        payload.Last,
		VolumeWindow: payload.Volume24h,
		Change24hPct: payload.Change24h,
		Currency:     payload.QuoteAsset,
	}, nil
}

type cryptoKlinePayload struct {
	Klines [][]float64 `json:"klines"` // [ts_ms, open, high, low, close, volume]
}

func (a *CryptoAdapter) Series(ctx context.Context, asset domain.Asset, width domain.BarWidth, count int) (domain.Series, error) {
	url := fmt.Sprintf("%s/klines/%s?width=%s&count=%d", a.baseURL, asset.ID, width, count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Series{}, apperr.Wrap(apperr.TransientUpstream, "build request to %s: %v", a.name, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Series{}, apperr.Wrap(apperr.TransientUpstream, "call %s: %v", a.name, err)
	}
	defer resp.Body.Close()

	var payload cryptoKlinePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Series{}, apperr.Wrap(apperr.TransientUpstream, "malformed klines from %s: %v", a.name, err)
	}

	bars := make([]domain.Bar, 0, len(payload.Klines))
	for _, k := range payload.Klines {
		if len(k) < 6 {
			continue
		}
		bars = append(bars, domain.Bar{
			Timestamp: time.UnixMilli(int64(k[0])),
			Open:      k[1], High: k[2], Low: k[3], Close: k[4], Volume: k[5],
		})
	}
	return domain.Series{Asset: asset, Width: width, Bars: bars}, nil
}

// Subscribe opens a websocket stream and invokes callback for every tick
// decoded off it until ctx is cancelled or the connection drops.
func (a *CryptoAdapter) Subscribe(ctx context.Context, asset domain.Asset, callback func(domain.Quote)) error {
	url := fmt.Sprintf("%s/stream/%s", a.wsURL, asset.ID)
	conn, _, err := a.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return apperr.Wrap(apperr.TransientUpstream, "dial %s stream: %v", a.name, err)
	}
	defer conn.Close()

	log := obs.Component("marketdata")
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var payload cryptoTickerPayload
		if err := conn.ReadJSON(&payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Str("adapter", a.name).Str("asset", asset.String()).Err(err).Msg("websocket stream read failed")
			return apperr.Wrap(apperr.TransientUpstream, "%s stream closed: %v", a.name, err)
		}
		callback(domain.Quote{
			Asset:        asset,
			Timestamp:    time.Now(),
			Price:        payload.Last,
			VolumeWindow: payload.Volume24h,
			Change24hPct: payload.Change24h,
			Currency:     payload.QuoteAsset,
			Adapter:      a.name,
		})
	}
}
