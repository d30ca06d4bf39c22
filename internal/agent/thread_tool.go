package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"regexp"
	"strings"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/llm"
	"KOL-Agent/internal/prompts"
	"KOL-Agent/internal/social/twitter"
)

type threadResult struct {
	Prompt string       `json:"prompt"`
	Thread []string     `json:"thread"`
	Model  string       `json:"model,omitempty"`
	Usage  *llm.Usage   `json:"usage,omitempty"`
	Posted []postResult `json:"posted,omitempty"`
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// splitThread turns model output into individual tweets, one per paragraph.
func splitThread(text string) []string {
	var tweets []string
	for _, part := range paragraphBreak.Split(strings.TrimSpace(text), -1) {
		if part = strings.TrimSpace(part); part != "" {
			tweets = append(tweets, part)
		}
	}
	return tweets
}

func (a *Agent) draftThread(ctx context.Context, args Arguments) (any, error) {
	symbol, err := args.requiredString("tokenSymbol")
	if err != nil {
		return nil, err
	}
	name, err := args.optionalString("tokenName")
	if err != nil {
		return nil, err
	}
	keyPoints, err := args.stringList("keyPoints")
	if err != nil {
		return nil, err
	}
	style, err := args.optionalString("style")
	if err != nil {
		return nil, err
	}
	publish, err := args.boolean("post", false)
	if err != nil {
		return nil, err
	}

	prompt, err := prompts.ViralThread(symbol, name, keyPoints, prompts.Style(style))
	if err != nil {
		return nil, err
	}
	if !a.caps.LLM {
		return nil, xerrors.New(xerrors.CodeCapabilityDisabled, "language model is not configured")
	}
	if publish {
		if err := a.requireTwitterUser(); err != nil {
			return nil, err
		}
	}

	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}
	resp, err := a.deps.LLM.Generate(llmCtx, llm.Request{System: llm.ThreadSystemPrompt, Prompt: prompt})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "language model timed out")
		}
		return nil, err
	}

	result := threadResult{Prompt: prompt, Thread: splitThread(resp.Text), Model: resp.Model}
	if resp.Usage != (llm.Usage{}) {
		usage := resp.Usage
		result.Usage = &usage
	}
	if len(result.Thread) == 0 {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "language model returned an empty thread")
	}
	if !publish {
		return result, nil
	}

	for _, tweet := range result.Thread {
		if err := validateTweet(tweet); err != nil {
			return nil, err
		}
	}
	var parent string
	for _, text := range result.Thread {
		var (
			tweet *twitter.Tweet
			err   error
		)
		if parent == "" {
			tweet, err = a.deps.Twitter.PostTweet(ctx, text)
		} else {
			tweet, err = a.deps.Twitter.ReplyTweet(ctx, text, parent)
		}
		if err != nil {
			if len(result.Posted) > 0 {
				return nil, partialThread(err, result)
			}
			return nil, err
		}
		parent = tweet.ID
		result.Posted = append(result.Posted, postResult{Success: true, TweetID: tweet.ID, Text: tweet.Text, URL: twitter.TweetURL(tweet.ID)})
	}
	return result, nil
}

// partialThread reports a thread whose head is already public. Posting it
// again would duplicate those tweets, so the failure is not retryable.
func partialThread(err error, result threadResult) error {
	ids := make([]string, len(result.Posted))
	for i, p := range result.Posted {
		ids[i] = p.TweetID
	}
	return xerrors.Wrap(xerrors.CodeOutcomeUnknown, err,
		fmt.Sprintf("thread partially posted (%d of %d tweets)", len(ids), len(result.Thread)),
		xerrors.WithMetadata("first_tweet_id", ids[0]),
		xerrors.WithMetadata("posted_tweet_ids", strings.Join(ids, ",")))
}
