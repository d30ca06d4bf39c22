package scraper

import (
	"iter"
	"regexp"
	"slices"
)

// Marker prefixes a ticker in social text.
const Marker = "$"

var symbolPattern = regexp.MustCompile(`\$([A-Z]{2,10})\b`)

// Detect yields every ticker found in text, left to right, re-prefixed with the
// marker. Duplicates are kept. The sequence is evaluated lazily and can be
// ranged over any number of times.
func Detect(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for rest != "" {
			loc := symbolPattern.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			if !yield(Marker + rest[loc[2]:loc[3]]) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

// DetectAll collects Detect into a slice.
func DetectAll(text string) []string {
	return slices.Collect(Detect(text))
}
