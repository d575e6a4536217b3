// Package anomaly scores recent observations against a rolling per-asset,
// per-metric baseline and emits severity-tagged events, debounced per
// (asset, kind) within a configurable window.
package anomaly

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/axiomtrader/assistant/internal/domain"
)

// Metric names the observations the detector maintains baselines for.
type Metric string

const (
	MetricReturn1m       Metric = "return_1m"
	MetricVolumeZ5m      Metric = "volume_z_5m"
	MetricPriceRange1h   Metric = "price_range_1h"
)

const (
	zWarn     = 2.0
	zHigh     = 3.0
	zCritical = 4.5

	singleBarMoveThreshold = 0.05 // 5%
	consecutivePrintsThreshold = 3
)

type baseline struct {
	values []float64
	cap    int
}

func (b *baseline) add(v float64) {
	b.values = append(b.values, v)
	if b.cap > 0 && len(b.values) > b.cap {
		b.values = b.values[len(b.values)-b.cap:]
	}
}

func (b *baseline) zscore(v float64) (float64, bool) {
	if len(b.values) < 2 {
		return 0, false
	}
	mean, stddev := stat.MeanStdDev(b.values, nil)
	if stddev == 0 {
		return 0, false
	}
	return (v - mean) / stddev, true
}

type debounceKey struct {
	asset    string
	kind     domain.AnomalyKind
}

type debounceState struct {
	lastFired time.Time
	lastSeverity domain.Severity
}

// Detector maintains rolling baselines per (asset, metric) and applies the
// debounce + escalation rules from spec.md §4.3.
type Detector struct {
	mu         sync.Mutex
	baselines  map[string]map[Metric]*baseline
	debounce   map[debounceKey]debounceState
	horizonCap int // max samples retained per baseline, derived from horizon / sample cadence
	debounceWindow time.Duration
	consecutiveVolumeDir map[string]consecutiveState
}

type consecutiveState struct {
	direction int // +1 up, -1 down, 0 none
	count     int
}

// NewDetector creates a Detector. horizonCap bounds the number of samples
// kept per rolling baseline (the spec's 60-minute default, expressed as a
// sample count by the caller). debounceWindow is the default per-kind
// suppression window (spec default 300s).
func NewDetector(horizonCap int, debounceWindow time.Duration) *Detector {
	return &Detector{
		baselines:            make(map[string]map[Metric]*baseline),
		debounce:              make(map[debounceKey]debounceState),
		horizonCap:            horizonCap,
		debounceWindow:        debounceWindow,
		consecutiveVolumeDir:  make(map[string]consecutiveState),
	}
}

func (d *Detector) baselineFor(asset domain.Asset, metric Metric) *baseline {
	key := asset.String()
	perAsset, ok := d.baselines[key]
	if !ok {
		perAsset = make(map[Metric]*baseline)
		d.baselines[key] = perAsset
	}
	b, ok := perAsset[metric]
	if !ok {
		b = &baseline{cap: d.horizonCap}
		perAsset[metric] = b
	}
	return b
}

// Observation bundles the per-tick inputs the detector scores.
type Observation struct {
	Asset             domain.Asset
	Timestamp         time.Time
	Return1m          float64
	VolumeZ5mInput    float64 // raw 5-minute volume metric fed into its own baseline
	PriceRange1h      float64
	SingleBarMovePct  float64 // signed; abs value compared against the 5% rule trigger
	LargeVolumePrint  bool
	LargeVolumeDirection int // +1 up, -1 down, 0 neither
}

// Observe scores one observation and returns the anomaly events that should
// fire, after debounce. Baselines are updated regardless of whether an event
// fires.
func (d *Detector) Observe(o Observation) []domain.AnomalyEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var events []domain.AnomalyEvent

	type candidate struct {
		kind     domain.AnomalyKind
		severity domain.Severity
		score    float64
		context  map[string]any
	}
	var candidates []candidate

	scoreMetric := func(metric Metric, value float64, kind domain.AnomalyKind) {
		b := d.baselineFor(o.Asset, metric)
		if z, ok := b.zscore(value); ok {
			if sev, has := severityFromZ(z); has {
				candidates = append(candidates, candidate{
					kind: kind, severity: sev, score: math.Abs(z),
					context: map[string]any{"zscore": z, "metric": string(metric)},
				})
			}
		}
		b.add(value)
	}

	scoreMetric(MetricReturn1m, o.Return1m, domain.AnomalyPriceJump)
	scoreMetric(MetricVolumeZ5m, o.VolumeZ5mInput, domain.AnomalyVolumeSpike)
	scoreMetric(MetricPriceRange1h, o.PriceRange1h, domain.AnomalyIndicatorDivergence)

	if math.Abs(o.SingleBarMovePct) >= singleBarMoveThreshold {
		candidates = append(candidates, candidate{
			kind: domain.AnomalyPriceJump, severity: domain.SeverityHigh,
			score:   math.Abs(o.SingleBarMovePct) * 100,
			context: map[string]any{"single_bar_move_pct": o.SingleBarMovePct},
		})
	}

	key := o.Asset.String()
	cs := d.consecutiveVolumeDir[key]
	if o.LargeVolumePrint && o.LargeVolumeDirection != 0 {
		if cs.direction == o.LargeVolumeDirection {
			cs.count++
		} else {
			cs.direction = o.LargeVolumeDirection
			cs.count = 1
		}
	} else {
		cs = consecutiveState{}
	}
	d.consecutiveVolumeDir[key] = cs
	if cs.count >= consecutivePrintsThreshold {
		candidates = append(candidates, candidate{
			kind: domain.AnomalyVolumeSpike, severity: domain.SeverityHigh,
			score:   float64(cs.count),
			context: map[string]any{"consecutive_large_prints": cs.count, "direction": cs.direction},
		})
	}

	for _, c := range candidates {
		dk := debounceKey{asset: key, kind: c.kind}
		prev, seen := d.debounce[dk]
		if seen && o.Timestamp.Sub(prev.lastFired) < d.debounceWindow && c.severity <= prev.lastSeverity {
			continue // suppressed: same-or-lower severity within the debounce window
		}
		d.debounce[dk] = debounceState{lastFired: o.Timestamp, lastSeverity: c.severity}
		events = append(events, domain.AnomalyEvent{
			Asset:     o.Asset,
			Timestamp: o.Timestamp,
			Kind:      c.kind,
			Severity:  c.severity,
			Score:     c.score,
			Context:   c.context,
		})
	}

	return events
}

func severityFromZ(z float64) (domain.Severity, bool) {
	az := math.Abs(z)
	switch {
	case az >= zCritical:
		return domain.SeverityCritical, true
	case az >= zHigh:
		return domain.SeverityHigh, true
	case az >= zWarn:
		return domain.SeverityWarn, true
	default:
		return domain.SeverityInfo, false
	}
}
