// Package scraper turns free social text into ranked cryptocurrency mentions.
//
// Detection, classification and aggregation are pure functions and are safe for
// concurrent use. A Tally folds occurrences from several sources and is owned by
// a single goroutine.
package scraper
