// Package farcaster reads the trending feed from the Neynar Farcaster API.
package farcaster

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/social"
)

const (
	defaultBaseURL = "https://api.neynar.com"
	defaultTimeout = 15 * time.Second
	maxLimit       = 100
)

// Config describes the Neynar endpoint.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client fetches casts from Neynar.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a Neynar client.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "Farcaster API key not configured")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    social.NewLimiter(cfg.RequestsPerMinute),
	}, nil
}

// Platform implements social.Source.
func (c *Client) Platform() social.Platform { return social.PlatformFarcaster }

type trendingResponse struct {
	Casts []struct {
		Hash      string    `json:"hash"`
		Text      string    `json:"text"`
		Timestamp time.Time `json:"timestamp"`
		Author    struct {
			Username string `json:"username"`
		} `json:"author"`
		Reactions struct {
			LikesCount   int `json:"likes_count"`
			RecastsCount int `json:"recasts_count"`
		} `json:"reactions"`
		Replies struct {
			Count int `json:"count"`
		} `json:"replies"`
	} `json:"casts"`
}

// Fetch returns up to limit trending casts (capped at 100).
func (c *Client) Fetch(ctx context.Context, limit int) ([]social.Post, error) {
	limit = social.Clamp(limit, 1, maxLimit)
	endpoint := fmt.Sprintf("%s/v2/farcaster/feed/trending?limit=%d", c.baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "build trending request")
	}
	req.Header.Set("api_key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	var decoded trendingResponse
	if err := social.Do(c.httpClient, c.limiter, req, &decoded); err != nil {
		return nil, err
	}

	posts := make([]social.Post, 0, len(decoded.Casts))
	for _, cast := range decoded.Casts {
		post := social.Post{
			ID:        cast.Hash,
			Source:    social.PlatformFarcaster,
			Author:    cast.Author.Username,
			Text:      cast.Text,
			Likes:     cast.Reactions.LikesCount,
			Reposts:   cast.Reactions.RecastsCount,
			Replies:   cast.Replies.Count,
			CreatedAt: cast.Timestamp,
		}
		if cast.Author.Username != "" && cast.Hash != "" {
			post.URL = fmt.Sprintf("https://warpcast.com/%s/%s", cast.Author.Username, cast.Hash)
		}
		posts = append(posts, post)
	}
	return posts, nil
}
