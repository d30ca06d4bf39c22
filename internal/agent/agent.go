package agent

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/llm"
	"KOL-Agent/internal/observability/metrics"
	"KOL-Agent/internal/scraper"
	"KOL-Agent/internal/social"
	"KOL-Agent/internal/social/twitter"
	"KOL-Agent/internal/storage/mysql"
	"KOL-Agent/internal/web3"
	"KOL-Agent/internal/web3/provider"
	"KOL-Agent/pkg/logger"
)

// Capabilities 显式声明可选集成是否可用，由调用方根据配置与凭据计算。
type Capabilities struct {
	TwitterSearch bool `json:"twitterSearch"`
	TwitterPost   bool `json:"twitterPost"`
	Farcaster     bool `json:"farcaster"`
	RSS           bool `json:"rss"`
	TokenCreation bool `json:"tokenCreation"`
	LLM           bool `json:"llm"`
}

// Chains resolves chain clients by name or cluster label.
type Chains interface {
	Resolve(selector string) (web3.Client, error)
	Issuer(selector string) (web3.Client, web3.TokenIssuer, error)
	Networks() []provider.NetworkInfo
}

// Twitter is the subset of the Twitter client used by the tools.
type Twitter interface {
	social.Source
	SearchRecent(ctx context.Context, query string, count int, since time.Time) ([]social.Post, error)
	PostTweet(ctx context.Context, text string) (*twitter.Tweet, error)
	ReplyTweet(ctx context.Context, text, inReplyTo string) (*twitter.Tweet, error)
	UserByUsername(ctx context.Context, username string) (*twitter.User, error)
	Me(ctx context.Context) (*twitter.User, error)
	User(ctx context.Context, id string) (*twitter.User, error)
}

// Dependencies groups the clients a tool may call. Nil members are treated as
// disabled regardless of Capabilities.
type Dependencies struct {
	Chains    Chains
	Twitter   Twitter
	Farcaster social.Source
	RSS       social.Source
	LLM       llm.Client
	History   mysql.HistoryRepository
}

// ToolRequest 描述一次工具调用。
type ToolRequest struct {
	Tool      string    `json:"tool"`
	Arguments Arguments `json:"arguments,omitempty"`
	// Source records which surface issued the call (mcp, api, task).
	Source string `json:"-"`
}

// ToolResult 保存工具返回的 JSON 负载。
type ToolResult struct {
	Tool       string          `json:"tool"`
	Output     json.RawMessage `json:"output"`
	DurationMS int64           `json:"durationMs"`
}

// Text renders the output as indented JSON.
func (r *ToolResult) Text() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Output, "", "  "); err != nil {
		return string(r.Output)
	}
	return buf.String()
}

// Agent 是工具调度的业务核心。
type Agent struct {
	caps        Capabilities
	deps        Dependencies
	topN        int
	accounting  scraper.Accounting
	toolTimeout time.Duration
	llmTimeout  time.Duration
	now         func() time.Time
	started     time.Time
	log         *slog.Logger

	tools  []*tool
	byName map[string]*tool
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

const defaultTopN = 20

// WithTopN 设置 scrape_trending_tokens 返回的代币数量。
func WithTopN(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithAccounting 设置来源统计的累计方式。
func WithAccounting(mode scraper.Accounting) Option {
	return func(a *Agent) { a.accounting = mode }
}

// WithToolTimeout 限制单次工具调用的最长执行时间。
func WithToolTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout > 0 {
			a.toolTimeout = timeout
		}
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout > 0 {
			a.llmTimeout = timeout
		}
	}
}

// WithClock 替换时间源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// New 创建一个 Agent。依赖缺失的能力会被关闭。
func New(caps Capabilities, deps Dependencies, opts ...Option) *Agent {
	caps.TwitterSearch = caps.TwitterSearch && deps.Twitter != nil
	caps.TwitterPost = caps.TwitterPost && deps.Twitter != nil
	caps.Farcaster = caps.Farcaster && deps.Farcaster != nil
	caps.RSS = caps.RSS && deps.RSS != nil
	caps.TokenCreation = caps.TokenCreation && deps.Chains != nil
	caps.LLM = caps.LLM && deps.LLM != nil

	ag := &Agent{
		caps:       caps,
		deps:       deps,
		topN:       defaultTopN,
		accounting: scraper.AccountRunningTotal,
		now:        time.Now,
		log:        logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	ag.started = ag.now()
	ag.registerTools()
	return ag
}

// Capabilities 返回生效的能力集合。
func (a *Agent) Capabilities() Capabilities { return a.caps }

// StartedAt 返回 Agent 的创建时间。
func (a *Agent) StartedAt() time.Time { return a.started }

// Networks 返回已配置的链。
func (a *Agent) Networks() []provider.NetworkInfo {
	if a.deps.Chains == nil {
		return nil
	}
	return a.deps.Chains.Networks()
}

// Execute 校验并执行一次工具调用，同时记录历史与指标。
func (a *Agent) Execute(ctx context.Context, req ToolRequest) (*ToolResult, error) {
	t, ok := a.byName[req.Tool]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "unknown tool: %s", req.Tool)
	}
	if req.Arguments == nil {
		req.Arguments = Arguments{}
	}

	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	started := a.now()
	payload, err := t.run(ctx, req.Arguments)
	if err != nil && stdErrors.Is(err, context.DeadlineExceeded) && xerrors.CodeOf(err) == xerrors.CodeUnknown {
		err = xerrors.Wrap(xerrors.CodeTimeout, err, "tool execution timed out")
	}

	var output json.RawMessage
	if err == nil {
		output, err = json.Marshal(payload)
		if err != nil {
			err = xerrors.Wrap(xerrors.CodeUnknown, err, "encode tool result")
		}
	}
	elapsed := a.now().Sub(started)

	a.record(ctx, req, output, err, elapsed)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Tool: t.Name, Output: output, DurationMS: elapsed.Milliseconds()}, nil
}

// FailureMessage renders err the way tool errors are reported to MCP clients,
// e.g. "Failed to post tweet: Tweet exceeds 280 characters".
func (a *Agent) FailureMessage(toolName string, err error) string {
	action := "execute " + toolName
	if t, ok := a.byName[toolName]; ok {
		action = t.action
	}
	return fmt.Sprintf("Failed to %s: %s", action, xerrors.MessageOf(err))
}

// History 返回最近的调用记录。
func (a *Agent) History(ctx context.Context, query mysql.HistoryQuery) ([]mysql.InvocationRecord, error) {
	if a.deps.History == nil {
		return nil, nil
	}
	records, err := a.deps.History.ListLatest(ctx, query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用记录失败")
	}
	return records, nil
}

// Stats 返回每个工具的累计调用统计。
func (a *Agent) Stats(ctx context.Context) ([]mysql.ToolStats, error) {
	if a.deps.History == nil {
		return nil, nil
	}
	stats, err := a.deps.History.Stats(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计调用记录失败")
	}
	return stats, nil
}

const (
	maxRecordedResult = 16 << 10
	recordedPreview   = 4 << 10
)

type truncatedResult struct {
	Truncated bool   `json:"truncated"`
	Bytes     int    `json:"bytes"`
	Preview   string `json:"preview"`
}

// recordedResult keeps stored output valid JSON. Oversized output is replaced
// by a stub whose preview ends on a rune boundary.
func recordedResult(output json.RawMessage) string {
	if len(output) <= maxRecordedResult {
		return string(output)
	}
	cut := recordedPreview
	for cut > 0 && !utf8.RuneStart(output[cut]) {
		cut--
	}
	stub, err := json.Marshal(truncatedResult{Truncated: true, Bytes: len(output), Preview: string(output[:cut])})
	if err != nil {
		return ""
	}
	return string(stub)
}

func (a *Agent) record(ctx context.Context, req ToolRequest, output json.RawMessage, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(xerrors.CodeOf(err))
	}
	metrics.ObserveToolInvocation(req.Tool, outcome, elapsed)

	source := req.Source
	if source == "" {
		source = "direct"
	}
	logger.Audit().Info("工具调用",
		slog.String("tool", req.Tool),
		slog.String("source", source),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
	if err != nil {
		a.log.Warn("工具调用失败", slog.String("tool", req.Tool), slog.String("code", outcome), slog.String("error", xerrors.MessageOf(err)))
	}

	if a.deps.History == nil {
		return
	}
	arguments, marshalErr := json.Marshal(req.Arguments)
	if marshalErr != nil {
		arguments = nil
	}
	rec := mysql.InvocationRecord{
		ID:         uuid.NewString(),
		Tool:       req.Tool,
		Arguments:  arguments,
		Success:    err == nil,
		DurationMS: elapsed.Milliseconds(),
		Source:     source,
		CreatedAt:  a.now().Unix(),
	}
	if err == nil {
		rec.Result = recordedResult(output)
	} else {
		rec.ErrorCode = outcome
		rec.ErrorMessage = xerrors.MessageOf(err)
	}
	// 调用方可能已经取消，历史写入不应随之失败。
	if saveErr := a.deps.History.Save(context.WithoutCancel(ctx), rec); saveErr != nil {
		a.log.Error("保存调用记录失败", slog.String("tool", req.Tool), slog.Any("error", saveErr))
	}
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
