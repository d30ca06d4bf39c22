package scraper

import (
	"fmt"
	"math"
)

// Accounting selects what a per-source breakdown receives on every occurrence.
type Accounting int

const (
	// AccountRunningTotal credits the source with the symbol's running total
	// after the occurrence. Source figures are then advisory only and may exceed
	// the top level engagement.
	AccountRunningTotal Accounting = iota
	// AccountDelta credits the source with the engagement of the occurrence.
	AccountDelta
)

// ParseAccounting maps the configuration names "delta" and "running_total".
func ParseAccounting(name string) (Accounting, error) {
	switch name {
	case "", "running_total":
		return AccountRunningTotal, nil
	case "delta":
		return AccountDelta, nil
	default:
		return AccountRunningTotal, fmt.Errorf("unknown source accounting %q", name)
	}
}

// Tally folds mentions from several sources, remembering the order in which
// symbols were first seen.
type Tally struct {
	accounting Accounting
	order      []string
	data       map[string]*MentionData
}

// NewTally creates an empty tally.
func NewTally(accounting Accounting) *Tally {
	return &Tally{accounting: accounting, data: make(map[string]*MentionData)}
}

// Observe detects every ticker in text and credits each occurrence with
// engagement from source. It returns the number of occurrences folded.
func (t *Tally) Observe(source, text string, engagement float64) int {
	n := 0
	for symbol := range Detect(text) {
		t.Add(symbol, source, engagement)
		n++
	}
	return n
}

// Add folds a single occurrence. Negative or NaN engagement counts as zero so
// the counters never decrease.
func (t *Tally) Add(symbol, source string, engagement float64) {
	if engagement < 0 || math.IsNaN(engagement) {
		engagement = 0
	}
	key := Canonical(symbol)
	data, ok := t.data[key]
	if !ok {
		data = &MentionData{Sources: make(map[string]*SourceStats)}
		t.data[key] = data
		t.order = append(t.order, key)
	}
	data.Mentions++
	data.Engagement += engagement

	src, ok := data.Sources[source]
	if !ok {
		src = &SourceStats{Source: source}
		data.Sources[source] = src
		data.sourceOrder = append(data.sourceOrder, source)
	}
	src.Mentions++
	if t.accounting == AccountRunningTotal {
		src.Engagement += data.Engagement
	} else {
		src.Engagement += engagement
	}
}

// Len reports the number of distinct symbols.
func (t *Tally) Len() int { return len(t.data) }

// Ranked returns the aggregated mentions in ranking order.
func (t *Tally) Ranked() []Mention {
	return Aggregate(t.order, t.data)
}
