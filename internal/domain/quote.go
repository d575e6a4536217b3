package domain

import "time"

// Quote is a point-in-time snapshot of an asset's market state, as fetched
// by a market data adapter. Currency is the asset's native currency; display
// conversion happens downstream via the currency-normalization cache.
type Quote struct {
	Asset         Asset
	Timestamp     time.Time
	Price         float64
	VolumeWindow  float64
	Change24hPct  float64
	Currency      string
	Adapter       string // which adapter served this quote
	Age           time.Duration // staleness, zero when fresh
	Approximate   bool          // true when currency conversion fell back to the static table
}

// Bar is one OHLCV candle at a stated width.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series is an ordered, finite sequence of bars at a single bar-width.
// Series are restartable and capped by the owning component's history
// horizon; they never grow unbounded.
type Series struct {
	Asset    Asset
	Width    BarWidth
	Bars     []Bar
}

// Tail returns the last n bars, or all bars if there are fewer than n.
func (s Series) Tail(n int) []Bar {
	if n <= 0 || len(s.Bars) == 0 {
		return nil
	}
	if n >= len(s.Bars) {
		return s.Bars
	}
	return s.Bars[len(s.Bars)-n:]
}

// Append appends a bar, evicting the oldest bar once cap is reached. cap<=0
// means unbounded (callers should always pass a positive horizon).
func (s *Series) Append(b Bar, cap int) {
	s.Bars = append(s.Bars, b)
	if cap > 0 && len(s.Bars) > cap {
		s.Bars = s.Bars[len(s.Bars)-cap:]
	}
}

// BookSnapshot is an optional order-book snapshot used for the
// order-book-imbalance indicator. Absent when a venue does not expose depth.
type BookSnapshot struct {
	Asset        Asset
	Timestamp    time.Time
	BidDepth     float64 // summed depth on the bid side, top N levels
	TotalDepth   float64 // summed depth on both sides, top N levels
}
