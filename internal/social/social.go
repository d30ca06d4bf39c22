package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	xerrors "KOL-Agent/internal/errors"
)

// Platform names a social data source.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformFarcaster Platform = "farcaster"
	PlatformRSS       Platform = "rss"
)

// Post is a single piece of social content normalised across platforms.
type Post struct {
	ID        string    `json:"id"`
	Source    Platform  `json:"source"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Likes     int       `json:"likes"`
	Reposts   int       `json:"reposts"`
	Replies   int       `json:"replies"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Engagement weights interactions per platform: a retweet counts twice,
// a recast three times, and feed items have a flat weight of one.
func (p Post) Engagement() float64 {
	switch p.Source {
	case PlatformTwitter:
		return float64(p.Likes + 2*p.Reposts)
	case PlatformFarcaster:
		return float64(p.Likes + 3*p.Reposts)
	case PlatformRSS:
		return 1
	default:
		return float64(p.Likes + p.Reposts)
	}
}

// Source fetches recent posts from one platform.
type Source interface {
	Platform() Platform
	Fetch(ctx context.Context, limit int) ([]Post, error)
}

// NewLimiter returns a limiter allowing rpm requests per minute. A
// non-positive rate disables limiting.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	return min(max(n, lo), hi)
}

// Do waits for the limiter, executes req and decodes a JSON body into out
// (which may be nil). Upstream failures are reported as coded errors.
func Do(client *http.Client, limiter *rate.Limiter, req *http.Request, out any) error {
	platform := req.URL.Host
	if limiter != nil {
		if err := limiter.Wait(req.Context()); err != nil {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "rate limiter wait aborted")
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("request to %s failed", platform))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return xerrors.New(xerrors.CodeRateLimited, fmt.Sprintf("%s rate limit exceeded", platform),
			xerrors.WithMetadata("retry_after", resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return xerrors.New(xerrors.CodeUnauthorized, fmt.Sprintf("%s rejected credentials: %s", platform, strings.TrimSpace(string(body))))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("%s returned status %d: %s", platform, resp.StatusCode, strings.TrimSpace(string(body))),
			xerrors.WithMetadata("status", fmt.Sprint(resp.StatusCode)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("decode %s response", platform))
	}
	return nil
}
