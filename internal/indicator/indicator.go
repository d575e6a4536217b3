// Package indicator computes pure, deterministic transformations over a
// domain.Series tail. Every function returns domain.Optional / domain.MACD
// values that are Absent when the input window is shorter than the
// indicator's warm-up period — callers must treat Absent as "inconclusive,"
// never as zero. RSI/MACD/MA kernels are computed with markcheno/go-talib
// (as aristath-sentinel/trader-go does) rather than hand-rolled, and the
// rolling volume mean/z-score uses gonum.org/v1/gonum/stat, the same
// combination the pack demonstrates for this exact concern.
package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/axiomtrader/assistant/internal/domain"
)

// Periods for the fast/standard variants named in the spec.
const (
	FastRSIPeriod     = 5
	StandardRSIPeriod = 14

	FastMACDFast, FastMACDSlow, FastMACDSignal         = 5, 10, 5
	StandardMACDFast, StandardMACDSlow, StandardMACDSignal = 12, 26, 9
)

// StandardMAPeriods are the moving-average windows the spec requires.
var StandardMAPeriods = []int{5, 10, 15, 20, 30, 50}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func volumes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

func lastOptional(series []float64, warmup int) domain.Optional {
	if len(series) < warmup || len(series) == 0 {
		return domain.Absent()
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.Absent()
	}
	return domain.Present(v)
}

// RSI computes the Relative Strength Index over the given period.
func RSI(bars []domain.Bar, period int) domain.Optional {
	if len(bars) < period+1 {
		return domain.Absent()
	}
	out := talib.Rsi(closes(bars), period)
	return lastOptional(out, period+1)
}

// MACDTriplet computes the MACD line/signal/histogram for the given
// fast/slow/signal periods.
func MACDTriplet(bars []domain.Bar, fast, slow, signal int) domain.MACD {
	warmup := slow + signal
	if len(bars) < warmup {
		return domain.MACD{Line: domain.Absent(), Signal: domain.Absent(), Histogram: domain.Absent()}
	}
	macd, macdSignal, macdHist := talib.Macd(closes(bars), fast, slow, signal)
	return domain.MACD{
		Line:      lastOptional(macd, warmup),
		Signal:    lastOptional(macdSignal, warmup),
		Histogram: lastOptional(macdHist, warmup),
	}
}

// MovingAverage computes a simple moving average over the given period.
func MovingAverage(bars []domain.Bar, period int) domain.Optional {
	if len(bars) < period {
		return domain.Absent()
	}
	out := talib.Sma(closes(bars), period)
	return lastOptional(out, period)
}

// MovingAverages computes every period in StandardMAPeriods.
func MovingAverages(bars []domain.Bar) domain.MovingAverages {
	out := make(domain.MovingAverages, len(StandardMAPeriods))
	for _, p := range StandardMAPeriods {
		out[p] = MovingAverage(bars, p)
	}
	return out
}

// VolumeRatioAndZScore computes the current bar's volume relative to the
// rolling mean over window, and its z-score against the rolling stdev.
// Division by zero (a flat volume history) returns Absent for both.
func VolumeRatioAndZScore(bars []domain.Bar, window int) (ratio, zscore domain.Optional) {
	if len(bars) < window+1 {
		return domain.Absent(), domain.Absent()
	}
	hist := volumes(bars[len(bars)-window-1 : len(bars)-1])
	current := bars[len(bars)-1].Volume
	mean, stddev := stat.MeanStdDev(hist, nil)
	if mean == 0 {
		return domain.Absent(), domain.Absent()
	}
	ratio = domain.Present(current / mean)
	if stddev == 0 {
		return ratio, domain.Absent()
	}
	zscore = domain.Present((current - mean) / stddev)
	return ratio, zscore
}

// IntradayBreak reports whether the latest close exceeds the prior session's
// high (break-up) or falls below its low (break-down) by at least epsilon.
func IntradayBreak(bars []domain.Bar, sessionBars int, epsilon float64) (breakUp, breakDown bool) {
	if len(bars) < sessionBars+1 {
		return false, false
	}
	session := bars[len(bars)-sessionBars-1 : len(bars)-1]
	last := bars[len(bars)-1]
	hi, lo := session[0].High, session[0].Low
	for _, b := range session[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	if hi == 0 {
		return false, false
	}
	breakUp = last.Close >= hi*(1+epsilon)
	breakDown = last.Close <= lo*(1-epsilon)
	return breakUp, breakDown
}

// BookImbalance returns the ratio of bid depth to total top-N depth, absent
// when no book snapshot is available or total depth is zero.
func BookImbalance(book *domain.BookSnapshot) domain.Optional {
	if book == nil || book.TotalDepth == 0 {
		return domain.Absent()
	}
	return domain.Present(book.BidDepth / book.TotalDepth)
}

// Snapshot computes the full indicator snapshot for a Series tail plus an
// optional order-book snapshot. volumeWindow and sessionBars/epsilon are
// configurable per deployment; defaults are provided by the caller.
func Snapshot(asset domain.Asset, bars []domain.Bar, book *domain.BookSnapshot, volumeWindow, sessionBars int, breakoutEpsilon float64) domain.Snapshot {
	ratio, z := VolumeRatioAndZScore(bars, volumeWindow)
	up, down := IntradayBreak(bars, sessionBars, breakoutEpsilon)
	return domain.Snapshot{
		Asset:           asset,
		FastRSI:         RSI(bars, FastRSIPeriod),
		StandardRSI:     RSI(bars, StandardRSIPeriod),
		FastMACD:        MACDTriplet(bars, FastMACDFast, FastMACDSlow, FastMACDSignal),
		StandardMACD:    MACDTriplet(bars, StandardMACDFast, StandardMACDSlow, StandardMACDSignal),
		MAs:             MovingAverages(bars),
		VolumeRatio:     ratio,
		VolumeZScore:    z,
		IntradayBreakUp: up,
		IntradayBreakDn: down,
		BookImbalance:   BookImbalance(book),
	}
}
