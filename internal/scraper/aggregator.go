package scraper

import (
	"cmp"
	"maps"
	"slices"
)

// SourceStats is the per-platform breakdown of a symbol.
type SourceStats struct {
	Source     string  `json:"source"`
	Mentions   int     `json:"mentions"`
	Engagement float64 `json:"engagement"`
}

// MentionData accumulates occurrences of one symbol.
type MentionData struct {
	Mentions   int
	Engagement float64
	Sources    map[string]*SourceStats

	sourceOrder []string
}

// Mention is a classified entry of the ranked result set.
type Mention struct {
	Symbol     string        `json:"symbol"`
	Mentions   int           `json:"mentions"`
	Engagement float64       `json:"engagement"`
	Category   Category      `json:"category"`
	Sources    []SourceStats `json:"sources"`
}

// Aggregate classifies every entry of mentions and sorts them by descending
// engagement. Entries with equal engagement keep encounter order, which is the
// order of keys in order followed by any remaining keys in lexical order.
func Aggregate(order []string, mentions map[string]*MentionData) []Mention {
	result := make([]Mention, 0, len(mentions))
	seen := make(map[string]struct{}, len(mentions))
	appendEntry := func(symbol string) {
		data, ok := mentions[symbol]
		if !ok {
			return
		}
		if _, dup := seen[symbol]; dup {
			return
		}
		seen[symbol] = struct{}{}
		m := Mention{Symbol: symbol, Category: Classify(symbol), Sources: []SourceStats{}}
		if data != nil {
			m.Mentions = data.Mentions
			m.Engagement = data.Engagement
			m.Sources = data.breakdown()
		}
		result = append(result, m)
	}

	for _, symbol := range order {
		appendEntry(symbol)
	}
	if len(seen) < len(mentions) {
		for _, symbol := range slices.Sorted(maps.Keys(mentions)) {
			appendEntry(symbol)
		}
	}

	slices.SortStableFunc(result, func(a, b Mention) int {
		return cmp.Compare(b.Engagement, a.Engagement)
	})
	return result
}

func (d *MentionData) breakdown() []SourceStats {
	out := make([]SourceStats, 0, len(d.Sources))
	listed := make(map[string]struct{}, len(d.Sources))
	for _, name := range d.sourceOrder {
		if s, ok := d.Sources[name]; ok && s != nil {
			out = append(out, *s)
			listed[name] = struct{}{}
		}
	}
	if len(listed) < len(d.Sources) {
		for _, name := range slices.Sorted(maps.Keys(d.Sources)) {
			if _, ok := listed[name]; ok || d.Sources[name] == nil {
				continue
			}
			out = append(out, *d.Sources[name])
		}
	}
	return out
}
