package scraper

import "strings"

// Category buckets a ticker by the curated lists below.
type Category string

const (
	CategoryMajor    Category = "major"
	CategoryMemecoin Category = "memecoin"
	CategoryUnknown  Category = "unknown"
)

var (
	majorCoins = setOf("BTC", "ETH", "SOL", "BNB", "ADA", "AVAX", "MATIC", "DOT")
	memecoins  = setOf("DOGE", "SHIB", "PEPE", "BONK", "WIF", "FLOKI", "ELON", "SAMO")
)

func setOf(symbols ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

// Classify maps a ticker, with or without marker and in any case, to its category.
func Classify(symbol string) Category {
	clean := Canonical(symbol)[len(Marker):]
	if _, ok := majorCoins[clean]; ok {
		return CategoryMajor
	}
	if _, ok := memecoins[clean]; ok {
		return CategoryMemecoin
	}
	return CategoryUnknown
}

// Canonical returns the marker-prefixed upper case form used as aggregation key.
func Canonical(symbol string) string {
	return Marker + strings.ToUpper(strings.TrimPrefix(symbol, Marker))
}
