// Package prompts renders the content-generation prompts offered to MCP clients
// and used by the draft_thread tool.
package prompts

import (
	"fmt"
	"strings"

	xerrors "KOL-Agent/internal/errors"
)

// Style selects the tone of a viral thread.
type Style string

const (
	StyleProfessional Style = "professional"
	StyleDegen        Style = "degen"
	StyleEducational  Style = "educational"
)

// Styles lists the accepted thread styles.
var Styles = []string{string(StyleProfessional), string(StyleDegen), string(StyleEducational)}

// Horizon is the outlook window of a market analysis.
type Horizon string

const (
	HorizonShort  Horizon = "short"
	HorizonMedium Horizon = "medium"
	HorizonLong   Horizon = "long"
)

// Horizons lists the accepted analysis horizons.
var Horizons = []string{string(HorizonShort), string(HorizonMedium), string(HorizonLong)}

var horizonText = map[Horizon]string{
	HorizonShort:  "24-hour to 7-day",
	HorizonMedium: "1-month to 3-month",
	HorizonLong:   "6-month to 1-year",
}

// Duration is the span of a content calendar.
type Duration string

const (
	DurationWeek  Duration = "week"
	DurationMonth Duration = "month"
)

// Durations lists the accepted calendar durations.
var Durations = []string{string(DurationWeek), string(DurationMonth)}

// DefaultPostsPerDay is used when a calendar request leaves the rate unset.
const DefaultPostsPerDay = 3

func requireSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "tokenSymbol is required")
	}
	return nil
}

func subject(symbol, name string) string {
	if name != "" {
		return fmt.Sprintf("%s (%s)", symbol, name)
	}
	return symbol
}

// ViralThread builds the thread-writing prompt. An empty style means professional.
func ViralThread(symbol, name string, keyPoints []string, style Style) (string, error) {
	if err := requireSymbol(symbol); err != nil {
		return "", err
	}
	var b strings.Builder
	about := subject(symbol, name)
	switch style {
	case "", StyleProfessional:
		fmt.Fprintf(&b, "Create a professional Twitter thread about %s. ", about)
		b.WriteString("The thread should be informative, balanced, and focus on fundamentals. ")
		b.WriteString("Include 5-7 tweets covering: introduction, utility, team/community, roadmap, and conclusion. ")
	case StyleDegen:
		fmt.Fprintf(&b, "Create an engaging, meme-friendly Twitter thread about %s. ", about)
		b.WriteString("The thread should be exciting and capture attention while staying authentic. ")
		b.WriteString("Include 4-6 tweets with appropriate use of slang and hype without being scammy. ")
	case StyleEducational:
		fmt.Fprintf(&b, "Create an educational Twitter thread about %s. ", about)
		b.WriteString("The thread should teach readers about the token, its technology, and use cases. ")
		b.WriteString("Include 6-8 tweets with clear explanations suitable for beginners. ")
	default:
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "unknown style %q", style)
	}
	if len(keyPoints) > 0 {
		fmt.Fprintf(&b, "Make sure to cover these key points: %s. ", strings.Join(keyPoints, ", "))
	}
	b.WriteString("Each tweet should be under 280 characters. Number the tweets (1/n, 2/n, etc.).")
	return b.String(), nil
}

// MarketAnalysis builds the analysis prompt. An empty horizon means medium.
func MarketAnalysis(symbol string, includeCharts bool, horizon Horizon) (string, error) {
	if err := requireSymbol(symbol); err != nil {
		return "", err
	}
	if horizon == "" {
		horizon = HorizonMedium
	}
	window, ok := horizonText[horizon]
	if !ok {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "unknown timeframe %q", horizon)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Provide a comprehensive market analysis for %s with a %s outlook. ", symbol, window)
	b.WriteString("Include: 1) Current market position and sentiment, 2) Key support/resistance levels, ")
	b.WriteString("3) Volume and liquidity analysis, 4) Potential catalysts or risks, 5) Price prediction range. ")
	if includeCharts {
		b.WriteString("Reference relevant chart patterns and technical indicators. ")
	}
	b.WriteString("Keep the analysis objective and data-driven. Mention both bullish and bearish scenarios.")
	return b.String(), nil
}

// ContentCalendar builds the calendar prompt. An empty duration means a week
// and a non-positive rate means DefaultPostsPerDay.
func ContentCalendar(symbol string, duration Duration, postsPerDay int) (string, error) {
	if err := requireSymbol(symbol); err != nil {
		return "", err
	}
	days := 0
	switch duration {
	case "", DurationWeek:
		duration, days = DurationWeek, 7
	case DurationMonth:
		days = 30
	default:
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "unknown duration %q", duration)
	}
	if postsPerDay <= 0 {
		postsPerDay = DefaultPostsPerDay
	}
	return fmt.Sprintf("Create a %s-long social media content calendar for %s. "+
		"Generate %d post ideas per day (%d posts total). "+
		"Include a mix of: educational content, community engagement, market updates, "+
		"memes/entertainment, and calls-to-action. Format as a daily schedule with "+
		"post type, content idea, and best posting time.",
		duration, symbol, postsPerDay, days*postsPerDay), nil
}
