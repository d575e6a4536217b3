package pipeline

import (
	"sync"
	"time"

	"github.com/axiomtrader/assistant/internal/domain"
)

// AdviceHistory is a 24h-capped, per-asset append-only ring of Advice
// ("Advice is persisted to a capped time-ordered history (24h) keyed by
// asset," spec.md §3).
type AdviceHistory struct {
	mu     sync.RWMutex
	window time.Duration
	byAsset map[string][]domain.Advice
}

// NewAdviceHistory constructs an empty history with the given retention
// window (24h per spec.md, configurable for tests).
func NewAdviceHistory(window time.Duration) *AdviceHistory {
	return &AdviceHistory{window: window, byAsset: make(map[string][]domain.Advice)}
}

// Append records a new Advice and evicts entries older than the window.
func (h *AdviceHistory) Append(advice domain.Advice, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := advice.Asset.String()
	entries := append(h.byAsset[key], advice)
	cutoff := now.Add(-h.window)
	kept := entries[:0]
	for _, e := range entries {
		if e.GeneratedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	h.byAsset[key] = kept
}

// For returns the retained advice history for one asset, oldest first.
func (h *AdviceHistory) For(asset domain.Asset) []domain.Advice {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entries := h.byAsset[asset.String()]
	out := make([]domain.Advice, len(entries))
	copy(out, entries)
	return out
}
