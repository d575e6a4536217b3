package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrader/assistant/internal/domain"
)

func asset() domain.Asset {
	return domain.Asset{ID: "TEST", Class: domain.AssetClassCrypto}
}

func TestSingleBarMoveTriggersAtLeastHigh(t *testing.T) {
	d := NewDetector(60, 300*time.Second)
	events := d.Observe(Observation{
		Asset:            asset(),
		Timestamp:        time.Now(),
		SingleBarMovePct: 0.06,
	})
	require.Len(t, events, 1)
	assert.Equal(t, domain.AnomalyPriceJump, events[0].Kind)
	assert.GreaterOrEqual(t, events[0].Severity, domain.SeverityHigh)
}

func TestConsecutiveLargeVolumePrintsTriggerHigh(t *testing.T) {
	d := NewDetector(60, 300*time.Second)
	base := time.Now()
	var last []domain.AnomalyEvent
	for i := 0; i < 3; i++ {
		last = d.Observe(Observation{
			Asset:                asset(),
			Timestamp:            base.Add(time.Duration(i) * time.Minute),
			LargeVolumePrint:     true,
			LargeVolumeDirection: 1,
		})
	}
	require.NotEmpty(t, last)
	found := false
	for _, e := range last {
		if e.Kind == domain.AnomalyVolumeSpike && e.Severity >= domain.SeverityHigh {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDebounceSuppressesRepeatedSameSeverity(t *testing.T) {
	d := NewDetector(60, 300*time.Second)
	base := time.Now()
	first := d.Observe(Observation{Asset: asset(), Timestamp: base, SingleBarMovePct: 0.06})
	require.Len(t, first, 1)

	// Same severity, within debounce window -> suppressed.
	second := d.Observe(Observation{Asset: asset(), Timestamp: base.Add(10 * time.Second), SingleBarMovePct: 0.06})
	assert.Empty(t, second)
}

func TestDebounceRefiresOnEscalation(t *testing.T) {
	// Build up z-score baseline via return_1m, then escalate.
	d := NewDetector(60, 300*time.Second)
	base := time.Now()
	for i := 0; i < 20; i++ {
		d.Observe(Observation{
			Asset:     asset(),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Return1m:  0.0001 * float64(i%2),
		})
	}
	// A 6% single-bar move fires price_jump at high severity first.
	first := d.Observe(Observation{Asset: asset(), Timestamp: base.Add(20 * time.Minute), SingleBarMovePct: 0.06})
	require.Len(t, first, 1)
	require.Equal(t, domain.SeverityHigh, first[0].Severity)

	// A sharp +5% return one minute later, inside the debounce window, scores
	// critical against the baseline and refires price_jump as an escalation.
	events := d.Observe(Observation{
		Asset:     asset(),
		Timestamp: base.Add(21 * time.Minute),
		Return1m:  0.05,
	})
	require.NotEmpty(t, events)
	assert.Equal(t, domain.AnomalyPriceJump, events[0].Kind)
	assert.Equal(t, domain.SeverityCritical, events[0].Severity)
}

func TestRollingBaselineIsPerAsset(t *testing.T) {
	d := NewDetector(60, 300*time.Second)
	a1 := domain.Asset{ID: "AAA", Class: domain.AssetClassEquity}
	a2 := domain.Asset{ID: "BBB", Class: domain.AssetClassEquity}
	base := time.Now()
	for i := 0; i < 10; i++ {
		d.Observe(Observation{Asset: a1, Timestamp: base.Add(time.Duration(i) * time.Minute), Return1m: 0.001})
	}
	// a2 has no history yet; a single observation can't z-score.
	events := d.Observe(Observation{Asset: a2, Timestamp: base, Return1m: 0.001})
	assert.Empty(t, events)
}
