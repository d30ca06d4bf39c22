// Package twitter talks to the Twitter (X) API v2. Read-only search uses an
// app bearer token; posting and account lookups use OAuth 1.0a user context.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"golang.org/x/time/rate"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/social"
)

const (
	defaultBaseURL = "https://api.twitter.com"
	defaultTimeout = 15 * time.Second

	// DefaultTrendingQuery is searched when scraping trending tickers.
	DefaultTrendingQuery = "crypto OR memecoin OR solana OR $"
	// MaxTweetLength is the character limit enforced before posting.
	MaxTweetLength = 280

	minResults = 10
	maxResults = 100
)

// Config carries the credentials for both authentication modes.
type Config struct {
	BaseURL           string
	BearerToken       string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessSecret      string
	TrendingQuery     string
	RequestsPerMinute int
	Timeout           time.Duration
}

// CanSearch reports whether an app bearer token is configured.
func (c Config) CanSearch() bool { return strings.TrimSpace(c.BearerToken) != "" }

// CanPost reports whether the full OAuth 1.0a credential set is configured.
func (c Config) CanPost() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// Client is a minimal Twitter API v2 client.
type Client struct {
	cfg     Config
	baseURL string
	app     *http.Client
	user    *http.Client
	limiter *rate.Limiter
}

// Tweet is the result of a successful post.
type Tweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// User holds an account and its public metrics.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Followers int    `json:"followersCount"`
	Following int    `json:"followingCount"`
	Tweets    int    `json:"tweetCount"`
}

// New builds a client. Missing credentials only fail the calls that need them.
func New(cfg Config) *Client {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient is New with an explicit transport used for both the
// bearer and the OAuth-signed requests.
func NewWithHTTPClient(cfg Config, base *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.TrendingQuery) == "" {
		cfg.TrendingQuery = DefaultTrendingQuery
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		cfg:     cfg,
		baseURL: baseURL,
		app:     base,
		limiter: social.NewLimiter(cfg.RequestsPerMinute),
	}
	if cfg.CanPost() {
		ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
		c.user = oauth1.NewConfig(cfg.APIKey, cfg.APISecret).Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret))
		c.user.Timeout = cfg.Timeout
	}
	return c
}

// Platform implements social.Source.
func (c *Client) Platform() social.Platform { return social.PlatformTwitter }

// Fetch searches the configured trending query.
func (c *Client) Fetch(ctx context.Context, limit int) ([]social.Post, error) {
	return c.SearchRecent(ctx, c.cfg.TrendingQuery, limit, time.Time{})
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type publicMetrics struct {
	RetweetCount   int `json:"retweet_count"`
	ReplyCount     int `json:"reply_count"`
	LikeCount      int `json:"like_count"`
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	TweetCount     int `json:"tweet_count"`
}

type searchResponse struct {
	Data []struct {
		ID            string        `json:"id"`
		Text          string        `json:"text"`
		AuthorID      string        `json:"author_id"`
		CreatedAt     time.Time     `json:"created_at"`
		PublicMetrics publicMetrics `json:"public_metrics"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

// SearchRecent runs /2/tweets/search/recent. count is clamped to the API
// window of 10..100; a non-zero since sets start_time.
func (c *Client) SearchRecent(ctx context.Context, query string, count int, since time.Time) ([]social.Post, error) {
	if !c.cfg.CanSearch() {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "Twitter bearer token not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "search query is required")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", fmt.Sprint(social.Clamp(count, minResults, maxResults)))
	params.Set("tweet.fields", "public_metrics,created_at,author_id")
	if !since.IsZero() {
		params.Set("start_time", since.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/2/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "build search request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)

	var decoded searchResponse
	if err := social.Do(c.app, c.limiter, req, &decoded); err != nil {
		return nil, err
	}

	posts := make([]social.Post, 0, len(decoded.Data))
	for _, tw := range decoded.Data {
		posts = append(posts, social.Post{
			ID:        tw.ID,
			Source:    social.PlatformTwitter,
			Author:    tw.AuthorID,
			Text:      tw.Text,
			URL:       TweetURL(tw.ID),
			Likes:     tw.PublicMetrics.LikeCount,
			Reposts:   tw.PublicMetrics.RetweetCount,
			Replies:   tw.PublicMetrics.ReplyCount,
			CreatedAt: tw.CreatedAt,
		})
	}
	return posts, nil
}

// PostTweet publishes text from the authenticated account.
func (c *Client) PostTweet(ctx context.Context, text string) (*Tweet, error) {
	return c.createTweet(ctx, tweetPayload{Text: text})
}

// ReplyTweet publishes text as a reply to an existing tweet, which is how
// threads are chained.
func (c *Client) ReplyTweet(ctx context.Context, text, inReplyTo string) (*Tweet, error) {
	if strings.TrimSpace(inReplyTo) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "reply target is required")
	}
	return c.createTweet(ctx, tweetPayload{Text: text, Reply: &tweetReply{InReplyTo: inReplyTo}})
}

type tweetReply struct {
	InReplyTo string `json:"in_reply_to_tweet_id"`
}

type tweetPayload struct {
	Text  string      `json:"text"`
	Reply *tweetReply `json:"reply,omitempty"`
}

func (c *Client) createTweet(ctx context.Context, payload tweetPayload) (*Tweet, error) {
	if c.user == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "Twitter credentials not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode tweet")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "build tweet request")
	}
	req.Header.Set("Content-Type", "application/json")

	var decoded struct {
		Data   Tweet      `json:"data"`
		Errors []apiError `json:"errors"`
	}
	if err := social.Do(c.user, c.limiter, req, &decoded); err != nil {
		if unanswered(err) {
			return nil, xerrors.Wrap(xerrors.CodeOutcomeUnknown, err, "tweet may have been published")
		}
		return nil, err
	}
	if decoded.Data.ID == "" {
		return nil, firstError(decoded.Errors, xerrors.CodeUpstreamFailure, "tweet was not created")
	}
	return &decoded.Data, nil
}

// unanswered reports an upstream failure for which no API status was read:
// the request may have been accepted before the transport or decode failed.
func unanswered(err error) bool {
	return xerrors.CodeOf(err) == xerrors.CodeUpstreamFailure && xerrors.MetadataOf(err)["status"] == ""
}

// TweetURL returns the public link of a tweet.
func TweetURL(id string) string {
	return "https://twitter.com/i/status/" + id
}

type userResponse struct {
	Data *struct {
		ID            string        `json:"id"`
		Name          string        `json:"name"`
		Username      string        `json:"username"`
		PublicMetrics publicMetrics `json:"public_metrics"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

// UserByUsername resolves a handle (with or without a leading @).
func (c *Client) UserByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "username is required")
	}
	return c.lookupUser(ctx, "/2/users/by/username/"+url.PathEscape(username))
}

// Me returns the account owning the access token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	return c.lookupUser(ctx, "/2/users/me")
}

// User fetches an account by id.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "user id is required")
	}
	return c.lookupUser(ctx, "/2/users/"+url.PathEscape(id))
}

func (c *Client) lookupUser(ctx context.Context, path string) (*User, error) {
	if c.user == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "Twitter credentials not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?user.fields=public_metrics", nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "build user request")
	}
	var decoded userResponse
	if err := social.Do(c.user, c.limiter, req, &decoded); err != nil {
		return nil, err
	}
	if decoded.Data == nil {
		return nil, firstError(decoded.Errors, xerrors.CodeNotFound, "user not found")
	}
	d := decoded.Data
	return &User{
		ID:        d.ID,
		Name:      d.Name,
		Username:  d.Username,
		Followers: d.PublicMetrics.FollowersCount,
		Following: d.PublicMetrics.FollowingCount,
		Tweets:    d.PublicMetrics.TweetCount,
	}, nil
}

func firstError(errs []apiError, code xerrors.Code, fallback string) error {
	if len(errs) == 0 {
		return xerrors.New(code, fallback)
	}
	msg := errs[0].Detail
	if msg == "" {
		msg = errs[0].Title
	}
	return xerrors.New(code, msg)
}
