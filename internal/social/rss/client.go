// Package rss reads posts from RSS or Atom feeds, typically Nitter account
// feeds such as https://nitter.net/<account>/rss.
package rss

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/social"
	"KOL-Agent/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// Config lists the feeds to poll.
type Config struct {
	Feeds             []string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client polls a fixed list of feeds.
type Client struct {
	feeds      []string
	httpClient *http.Client
	parser     *gofeed.Parser
	limiter    *rate.Limiter
}

// New builds a feed client.
func New(cfg Config) (*Client, error) {
	feeds := make([]string, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	if len(feeds) == 0 {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "no RSS feeds configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		feeds:      feeds,
		httpClient: &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
		limiter:    social.NewLimiter(cfg.RequestsPerMinute),
	}, nil
}

// Platform implements social.Source.
func (c *Client) Platform() social.Platform { return social.PlatformRSS }

// Fetch reads the feeds in order until limit items are collected. A feed that
// fails is skipped; the call fails only when every feed failed.
func (c *Client) Fetch(ctx context.Context, limit int) ([]social.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		posts []social.Post
		errs  []error
	)
	for _, feedURL := range c.feeds {
		if len(posts) >= limit {
			break
		}
		items, err := c.fetchFeed(ctx, feedURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "feed polling cancelled")
			}
			logger.Named("rss").Warn("读取订阅源失败", slog.String("feed", feedURL), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		posts = append(posts, items...)
	}
	if len(posts) == 0 && len(errs) == len(c.feeds) {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, errors.Join(errs...), "all RSS feeds failed")
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (c *Client) fetchFeed(ctx context.Context, feedURL string) ([]social.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "kolagent/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", feedURL, resp.StatusCode)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", feedURL, err)
	}

	posts := make([]social.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		text := strings.TrimSpace(item.Title)
		if text == "" {
			text = strings.TrimSpace(item.Description)
		}
		post := social.Post{
			ID:     itemID(item),
			Source: social.PlatformRSS,
			Author: feed.Title,
			Text:   text,
			URL:    item.Link,
		}
		if item.Author != nil && item.Author.Name != "" {
			post.Author = item.Author.Name
		}
		if item.PublishedParsed != nil {
			post.CreatedAt = *item.PublishedParsed
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func itemID(item *gofeed.Item) string {
	key := item.GUID
	if key == "" {
		key = item.Link + item.Title
	}
	return fmt.Sprintf("%x", sha1.Sum([]byte(key)))[:12]
}
