// Package sentiment scores social text with a fixed bullish/bearish keyword list.
package sentiment

import (
	"strconv"
	"strings"
)

// Label is the coarse verdict derived from a score.
type Label string

const (
	Bullish Label = "bullish"
	Bearish Label = "bearish"
	Neutral Label = "neutral"
)

// Threshold separates neutral scores from directional ones.
const Threshold = 0.2

var (
	bullishWords = []string{"moon", "bullish", "buy", "pump", "gem", "100x", "lfg"}
	bearishWords = []string{"dump", "bearish", "sell", "rug", "scam", "dead"}
)

// Result summarises a batch of texts.
type Result struct {
	Score    float64
	Label    Label
	Mentions int
}

// FormattedScore renders the score with two decimals.
func (r Result) FormattedScore() string {
	return strconv.FormatFloat(r.Score, 'f', 2, 64)
}

// ScoreText returns the raw keyword balance of a single text. Each keyword
// counts at most once and matches anywhere inside the text.
func ScoreText(text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, w := range bullishWords {
		if strings.Contains(lower, w) {
			score++
		}
	}
	for _, w := range bearishWords {
		if strings.Contains(lower, w) {
			score--
		}
	}
	return score
}

// Score averages ScoreText over texts and labels the result.
func Score(texts []string) Result {
	if len(texts) == 0 {
		return Result{Label: Neutral}
	}
	total := 0
	for _, t := range texts {
		total += ScoreText(t)
	}
	score := float64(total) / float64(len(texts))
	return Result{Score: score, Label: LabelFor(score), Mentions: len(texts)}
}

// LabelFor maps a normalised score to a label.
func LabelFor(score float64) Label {
	switch {
	case score > Threshold:
		return Bullish
	case score < -Threshold:
		return Bearish
	default:
		return Neutral
	}
}
