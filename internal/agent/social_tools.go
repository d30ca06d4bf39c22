package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/observability/metrics"
	"KOL-Agent/internal/scraper"
	"KOL-Agent/internal/sentiment"
	"KOL-Agent/internal/social"
	"KOL-Agent/internal/social/twitter"
)

const (
	platformBoth = "both"
	platformAll  = "all"

	defaultScrapeLimit = 100
	maxScrapeLimit     = 100
	sentimentResults   = 100
)

var (
	platformChoices  = []string{string(social.PlatformTwitter), string(social.PlatformFarcaster), string(social.PlatformRSS), platformBoth, platformAll}
	timeframeChoices = []string{"1h", "24h", "7d"}
	timeframes       = map[string]time.Duration{
		"1h":  time.Hour,
		"24h": 24 * time.Hour,
		// recent search rejects a start_time older than seven days
		"7d": 7*24*time.Hour - time.Minute,
	}
)

type trendingResult struct {
	Trending      []scraper.Mention `json:"trending"`
	TotalAnalyzed int               `json:"totalAnalyzed"`
	Timestamp     string            `json:"timestamp"`
	Warnings      []string          `json:"warnings,omitempty"`
}

type fetchOutcome struct {
	platform social.Platform
	posts    []social.Post
	err      error
	skipped  bool
}

func (a *Agent) scrapeTrending(ctx context.Context, args Arguments) (any, error) {
	platform, err := args.enum("platform", platformBoth, platformChoices...)
	if err != nil {
		return nil, err
	}
	limit, err := args.number("limit", defaultScrapeLimit)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "limit must be at least 1")
	}
	count := int(min(limit, maxScrapeLimit))

	plan := []struct {
		platform social.Platform
		wanted  bool
		enabled bool
		source  social.Source
	}{
		{social.PlatformTwitter, platform == "twitter" || platform == platformBoth || platform == platformAll, a.caps.TwitterSearch, a.deps.Twitter},
		{social.PlatformFarcaster, platform == "farcaster" || platform == platformBoth || platform == platformAll, a.caps.Farcaster, a.deps.Farcaster},
		{social.PlatformRSS, platform == "rss" || platform == platformAll, a.caps.RSS, a.deps.RSS},
	}

	outcomes := make([]fetchOutcome, len(plan))
	var g errgroup.Group
	for i, p := range plan {
		outcomes[i].platform = p.platform
		if !p.wanted {
			continue
		}
		if !p.enabled {
			outcomes[i].skipped = true
			continue
		}
		g.Go(func() error {
			outcomes[i].posts, outcomes[i].err = p.source.Fetch(ctx, count)
			return nil
		})
	}
	_ = g.Wait()

	tally := scraper.NewTally(a.accounting)
	result := trendingResult{Timestamp: isoTimestamp(a.now())}
	for _, o := range outcomes {
		switch {
		case o.skipped:
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: capability disabled", o.platform))
		case o.err != nil:
			code := xerrors.CodeOf(o.err)
			metrics.ObserveUpstreamError(string(o.platform), string(code))
			a.log.Warn("抓取社交平台失败", slog.String("platform", string(o.platform)), slog.String("code", string(code)), slog.String("error", xerrors.MessageOf(o.err)))
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", o.platform, xerrors.MessageOf(o.err)))
		default:
			for _, post := range o.posts {
				tally.Observe(string(post.Source), post.Text, post.Engagement())
			}
			result.TotalAnalyzed += len(o.posts)
		}
	}

	a.log.Debug("热门代币统计完成",
		slog.Int("posts", result.TotalAnalyzed),
		slog.Int("symbols", tally.Len()),
		slog.Int("warnings", len(result.Warnings)))
	ranked := tally.Ranked()
	result.Trending = ranked[:min(len(ranked), a.topN)]
	return result, nil
}

type postResult struct {
	Success bool   `json:"success"`
	TweetID string `json:"tweetId"`
	Text    string `json:"text"`
	URL     string `json:"url"`
}

func validateTweet(text string) error {
	if utf8.RuneCountInString(text) > twitter.MaxTweetLength {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "Tweet exceeds %d characters", twitter.MaxTweetLength)
	}
	return nil
}

func (a *Agent) requireTwitterUser() error {
	if !a.caps.TwitterPost {
		return xerrors.New(xerrors.CodeCapabilityDisabled, "Twitter credentials not configured")
	}
	return nil
}

func (a *Agent) postTweet(ctx context.Context, args Arguments) (any, error) {
	if err := a.requireTwitterUser(); err != nil {
		return nil, err
	}
	text, err := args.requiredString("text")
	if err != nil {
		return nil, err
	}
	if err := validateTweet(text); err != nil {
		return nil, err
	}
	tweet, err := a.deps.Twitter.PostTweet(ctx, text)
	if err != nil {
		metrics.ObserveUpstreamError(string(social.PlatformTwitter), string(xerrors.CodeOf(err)))
		return nil, err
	}
	return postResult{Success: true, TweetID: tweet.ID, Text: tweet.Text, URL: twitter.TweetURL(tweet.ID)}, nil
}

type followerResult struct {
	Username       string `json:"username"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
	TweetCount     int    `json:"tweetCount"`
	Timestamp      string `json:"timestamp"`
}

func (a *Agent) followerCount(ctx context.Context, args Arguments) (any, error) {
	if err := a.requireTwitterUser(); err != nil {
		return nil, err
	}
	username, err := args.optionalString("username")
	if err != nil {
		return nil, err
	}

	var account *twitter.User
	if username != "" {
		account, err = a.deps.Twitter.UserByUsername(ctx, username)
	} else {
		account, err = a.deps.Twitter.Me(ctx)
	}
	if err != nil {
		return nil, err
	}
	user, err := a.deps.Twitter.User(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return followerResult{
		Username:       user.Username,
		FollowersCount: user.Followers,
		FollowingCount: user.Following,
		TweetCount:     user.Tweets,
		Timestamp:      isoTimestamp(a.now()),
	}, nil
}

type sentimentResult struct {
	Symbol         string          `json:"symbol"`
	Sentiment      sentiment.Label `json:"sentiment"`
	SentimentScore string          `json:"sentimentScore"`
	TotalMentions  int             `json:"totalMentions"`
	Timeframe      string          `json:"timeframe"`
	Timestamp      string          `json:"timestamp"`
}

func (a *Agent) analyzeSentiment(ctx context.Context, args Arguments) (any, error) {
	symbol, err := args.requiredString("symbol")
	if err != nil {
		return nil, err
	}
	timeframe, err := args.enum("timeframe", "24h", timeframeChoices...)
	if err != nil {
		return nil, err
	}

	now := a.now()
	var texts []string
	if a.caps.TwitterSearch {
		posts, err := a.deps.Twitter.SearchRecent(ctx, symbol, sentimentResults, now.Add(-timeframes[timeframe]))
		if err != nil {
			metrics.ObserveUpstreamError(string(social.PlatformTwitter), string(xerrors.CodeOf(err)))
			return nil, err
		}
		texts = make([]string, len(posts))
		for i, p := range posts {
			texts[i] = p.Text
		}
	}

	score := sentiment.Score(texts)
	return sentimentResult{
		Symbol:         symbol,
		Sentiment:      score.Label,
		SentimentScore: score.FormattedScore(),
		TotalMentions:  score.Mentions,
		Timeframe:      timeframe,
		Timestamp:      isoTimestamp(now),
	}, nil
}
