package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/axiomtrader/assistant/internal/domain"
)

// AliasTable resolves a free-form asset mention (code, ticker, or localized
// name) to a canonical asset ID.
type AliasTable struct {
	aliases map[string]string // lowercased alias -> asset id
}

// NewAliasTable builds a table from a seed map; callers typically load this
// from config at startup.
func NewAliasTable(seed map[string]string) *AliasTable {
	t := &AliasTable{aliases: make(map[string]string, len(seed))}
	for alias, id := range seed {
		t.aliases[strings.ToLower(alias)] = id
	}
	return t
}

// Resolve looks up an alias (case-insensitive), falling back to treating
// the mention itself as the asset ID (e.g. a raw ticker or numeric code).
func (t *AliasTable) Resolve(mention string) (string, bool) {
	if id, ok := t.aliases[strings.ToLower(mention)]; ok {
		return id, true
	}
	if reSymbolMention.MatchString(mention) {
		return mention, true
	}
	return "", false
}

// Mentions returns every configured alias key, for callers that need to
// scan free text for a known localized name before falling back to a raw
// symbol-mention regex (e.g. a Chinese or Korean company name with no
// ASCII ticker form).
func (t *AliasTable) Mentions() []string {
	mentions := make([]string, 0, len(t.aliases))
	for alias := range t.aliases {
		mentions = append(mentions, alias)
	}
	return mentions
}

var (
	reQuantity = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:shares?|股|개|units?)?`)
	rePrice    = regexp.MustCompile(`(?:price|at|가격|价格)\s*[:=]?\s*\$?(\d+(?:\.\d+)?)`)
	reISODate  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	reLastNDays = regexp.MustCompile(`(?i)last\s+(\d+)\s+days?`)
	reCapital  = regexp.MustCompile(`(?:capital|invest|with)\s*\$?(\d+(?:\.\d+)?)`)
)

// ExtractTradeSlots pulls asset/quantity/price for buy/sell intents. Missing
// quantity is reported via ok=false so the caller can trigger a
// clarification response instead of guessing.
func ExtractTradeSlots(text string, aliases *AliasTable, knownAssets []string) (domain.Slots, bool) {
	var slots domain.Slots

	for _, candidate := range knownAssets {
		if strings.Contains(strings.ToLower(text), strings.ToLower(candidate)) {
			if id, ok := aliases.Resolve(candidate); ok {
				slots.AssetID = id
				break
			}
		}
	}
	if slots.AssetID == "" {
		if m := reSymbolMention.FindString(text); m != "" {
			if id, ok := aliases.Resolve(m); ok {
				slots.AssetID = id
			}
		}
	}

	qtyMatch := reQuantity.FindStringSubmatch(text)
	if qtyMatch == nil {
		return slots, false
	}
	qty, err := strconv.ParseFloat(qtyMatch[1], 64)
	if err != nil {
		return slots, false
	}
	slots.Quantity = &qty

	if priceMatch := rePrice.FindStringSubmatch(text); priceMatch != nil {
		if price, err := strconv.ParseFloat(priceMatch[1], 64); err == nil {
			slots.Price = &price
		}
	}

	return slots, slots.AssetID != ""
}

// ExtractBacktestSlots pulls date range, strategy name and initial capital
// for run_backtest. now anchors relative ranges like "last 30 days".
func ExtractBacktestSlots(text string, now time.Time, knownStrategies []string) (domain.Slots, bool) {
	var slots domain.Slots

	if m := reLastNDays.FindStringSubmatch(text); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil {
			from := now.AddDate(0, 0, -days)
			slots.DateFrom = &from
			slots.DateTo = &now
		}
	} else if dates := reISODate.FindAllString(text, 2); len(dates) >= 1 {
		if from, err := time.Parse("2006-01-02", dates[0]); err == nil {
			slots.DateFrom = &from
		}
		if len(dates) >= 2 {
			if to, err := time.Parse("2006-01-02", dates[1]); err == nil {
				slots.DateTo = &to
			}
		}
	}

	lower := strings.ToLower(text)
	for _, name := range knownStrategies {
		if strings.Contains(lower, strings.ToLower(name)) {
			slots.StrategyName = name
			break
		}
	}

	if m := reCapital.FindStringSubmatch(text); m != nil {
		if capital, err := strconv.ParseFloat(m[1], 64); err == nil {
			slots.InitialCapital = &capital
		}
	}

	complete := slots.DateFrom != nil && slots.DateTo != nil && slots.StrategyName != "" && slots.InitialCapital != nil
	return slots, complete
}
