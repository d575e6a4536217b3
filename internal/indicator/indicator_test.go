package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/domain"
)

func sampleBars(n int, start, step float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		bars[i] = domain.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
		price += step
	}
	return bars
}

func TestRSIAbsentBelowWarmup(t *testing.T) {
	bars := sampleBars(3, 100, 1)
	got := RSI(bars, StandardRSIPeriod)
	assert.False(t, got.Present)
}

func TestRSIPresentAboveWarmup(t *testing.T) {
	bars := sampleBars(30, 100, 0.5)
	got := RSI(bars, StandardRSIPeriod)
	require.True(t, got.Present)
	assert.InDelta(t, 100.0, got.Value, 0.01) // monotone rise -> RSI saturates near 100
}

func TestRSIDeterministic(t *testing.T) {
	bars := sampleBars(40, 100, -0.3)
	a := RSI(bars, StandardRSIPeriod)
	b := RSI(bars, StandardRSIPeriod)
	assert.Equal(t, a, b)
}

func TestMovingAverageWarmup(t *testing.T) {
	bars := sampleBars(4, 100, 1)
	got := MovingAverage(bars, 5)
	assert.False(t, got.Present)

	bars = sampleBars(5, 100, 1)
	got = MovingAverage(bars, 5)
	require.True(t, got.Present)
	assert.InDelta(t, 102, got.Value, 0.01)
}

func TestVolumeRatioDivisionByZeroIsAbsent(t *testing.T) {
	bars := sampleBars(10, 100, 0)
	for i := range bars {
		bars[i].Volume = 0
	}
	ratio, z := VolumeRatioAndZScore(bars, 5)
	assert.False(t, ratio.Present)
	assert.False(t, z.Present)
}

func TestVolumeZScoreSpike(t *testing.T) {
	bars := sampleBars(10, 100, 0)
	bars[len(bars)-1].Volume = 5000 // spike relative to the flat 1000 history
	ratio, z := VolumeRatioAndZScore(bars, 5)
	require.True(t, ratio.Present)
	assert.Greater(t, ratio.Value, 1.0)
	assert.False(t, z.Present) // prior history has zero stdev, z-score stays inconclusive
}

func TestIntradayBreak(t *testing.T) {
	bars := sampleBars(10, 100, 0)
	bars[len(bars)-1].Close = 200
	up, down := IntradayBreak(bars, 9, 0.01)
	assert.True(t, up)
	assert.False(t, down)
}

func TestBookImbalanceAbsentWithoutSnapshot(t *testing.T) {
	got := BookImbalance(nil)
	assert.False(t, got.Present)

	got = BookImbalance(&domain.BookSnapshot{BidDepth: 10, TotalDepth: 0})
	assert.False(t, got.Present)

	got = BookImbalance(&domain.BookSnapshot{BidDepth: 3, TotalDepth: 10})
	require.True(t, got.Present)
	assert.InDelta(t, 0.3, got.Value, 0.0001)
}
