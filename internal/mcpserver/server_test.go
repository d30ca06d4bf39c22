package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KOL-Agent/internal/agent"
	"KOL-Agent/internal/social"
	"KOL-Agent/internal/storage/mysql"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type feedSource struct{ posts []social.Post }

func (f *feedSource) Platform() social.Platform { return social.PlatformRSS }

func (f *feedSource) Fetch(_ context.Context, limit int) ([]social.Post, error) {
	return f.posts[:min(limit, len(f.posts))], nil
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func newTestServer(t *testing.T) (*Server, *mysql.MemoryHistoryRepository) {
	t.Helper()
	history, err := mysql.NewMemoryHistoryRepository(t.TempDir())
	require.NoError(t, err)
	rss := &feedSource{posts: []social.Post{
		{ID: "1", Source: social.PlatformRSS, Text: "$PEPE season"},
		{ID: "2", Source: social.PlatformRSS, Text: "$PEPE and $BTC"},
	}}
	ag := agent.New(agent.Capabilities{RSS: true}, agent.Dependencies{RSS: rss, History: history},
		agent.WithClock(func() time.Time { return fixedNow }))
	srv := New(ag, WithWalletConfigured(false), WithClock(func() time.Time { return fixedNow.Add(90 * time.Second) }))
	return srv, history
}

var requestID int

func call(t *testing.T, s *Server, method string, params any) json.RawMessage {
	t.Helper()
	requestID++
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": requestID, "method": method, "params": params})
	require.NoError(t, err)

	reply := s.MCP().HandleMessage(context.Background(), body)
	raw, err := json.Marshal(reply)
	require.NoError(t, err)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Nil(t, resp.Error, "unexpected error for %s: %s", method, raw)
	return resp.Result
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	result := call(t, s, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "0.0.1"},
	})
	var init struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(result, &init))
	assert.Equal(t, ServerName, init.ServerInfo.Name)
	assert.Equal(t, ServerVersion, init.ServerInfo.Version)
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) toolCallResult {
	t.Helper()
	var out toolCallResult
	require.NoError(t, json.Unmarshal(call(t, s, "tools/call", map[string]any{"name": name, "arguments": args}), &out))
	require.Len(t, out.Content, 1)
	return out
}

func TestToolsListCarriesSchemas(t *testing.T) {
	s, _ := newTestServer(t)
	initialize(t, s)

	var list struct {
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Properties map[string]map[string]any `json:"properties"`
				Required   []string                  `json:"required"`
			} `json:"inputSchema"`
			Annotations struct {
				ReadOnlyHint   *bool `json:"readOnlyHint"`
				IdempotentHint *bool `json:"idempotentHint"`
			} `json:"annotations"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(call(t, s, "tools/list", map[string]any{}), &list))
	require.Len(t, list.Tools, len(s.agent.Tools()))

	byName := map[string]int{}
	for i, tool := range list.Tools {
		byName[tool.Name] = i
	}
	create := list.Tools[byName[agent.ToolCreateToken]]
	assert.ElementsMatch(t, []string{"name", "symbol"}, create.InputSchema.Required)
	assert.Equal(t, "number", create.InputSchema.Properties["decimals"]["type"])

	scrape := list.Tools[byName[agent.ToolScrapeTrending]]
	assert.Contains(t, scrape.InputSchema.Properties["platform"]["enum"], "farcaster")

	thread := list.Tools[byName[agent.ToolDraftThread]]
	assert.Equal(t, "array", thread.InputSchema.Properties["keyPoints"]["type"])
	assert.Equal(t, "boolean", thread.InputSchema.Properties["post"]["type"])

	require.NotNil(t, create.Annotations.IdempotentHint)
	assert.False(t, *create.Annotations.IdempotentHint)
	require.NotNil(t, scrape.Annotations.ReadOnlyHint)
	assert.True(t, *scrape.Annotations.ReadOnlyHint)
}

func TestToolCallSuccessRecordsSource(t *testing.T) {
	s, history := newTestServer(t)
	initialize(t, s)

	out := callTool(t, s, agent.ToolScrapeTrending, map[string]any{"platform": "rss", "limit": 10})
	assert.False(t, out.IsError)

	var payload struct {
		Trending []struct {
			Symbol   string `json:"symbol"`
			Mentions int    `json:"mentions"`
		} `json:"trending"`
		TotalAnalyzed int `json:"totalAnalyzed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.Content[0].Text), &payload))
	assert.Equal(t, 2, payload.TotalAnalyzed)
	require.NotEmpty(t, payload.Trending)
	assert.Equal(t, "$PEPE", payload.Trending[0].Symbol)
	assert.Equal(t, 2, payload.Trending[0].Mentions)

	records, err := history.ListLatest(context.Background(), mysql.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, SourceMCP, records[0].Source)
}

func TestToolCallFailureIsToolError(t *testing.T) {
	s, _ := newTestServer(t)
	initialize(t, s)

	out := callTool(t, s, agent.ToolPostTweet, map[string]any{"text": "gm"})
	assert.True(t, out.IsError)
	assert.Equal(t, "Failed to post tweet: Twitter credentials not configured", out.Content[0].Text)

	out = callTool(t, s, agent.ToolAnalyzeSentiment, map[string]any{"symbol": "SOL", "timeframe": "2y"})
	assert.True(t, out.IsError)
	assert.True(t, strings.HasPrefix(out.Content[0].Text, "Failed to analyze sentiment: "), out.Content[0].Text)
}

func readResource(t *testing.T, s *Server, uri string) map[string]any {
	t.Helper()
	var res struct {
		Contents []struct {
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
			Text     string `json:"text"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(call(t, s, "resources/read", map[string]any{"uri": uri}), &res))
	require.Len(t, res.Contents, 1)
	assert.Equal(t, uri, res.Contents[0].URI)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	return out
}

func TestResources(t *testing.T) {
	s, _ := newTestServer(t)
	initialize(t, s)
	callTool(t, s, agent.ToolScrapeTrending, map[string]any{"platform": "rss"})

	stats := readResource(t, s, URIStats)
	assert.Equal(t, "active", stats["status"])
	assert.Equal(t, "1m30s", stats["uptime"])
	assert.Equal(t, false, stats["walletConfigured"])
	assert.Equal(t, []any{"Social Media Scraping", "Sentiment Analysis", "Balance Checking"}, stats["capabilities"])
	invocations := stats["invocations"].([]any)
	require.Len(t, invocations, 1)

	networks := readResource(t, s, URINetworks)
	assert.Equal(t, []any{"rss"}, networks["socialPlatforms"])
	assert.Empty(t, networks["chains"])
	assert.Equal(t, "https://api.devnet.solana.com", networks["solana"].(map[string]any)["devnet"])

	docs := readResource(t, s, URIDocs)
	assert.Equal(t, "KOL Agent MCP", docs["name"])
	assert.Contains(t, docs["tools"], agent.ToolDraftThread)
	assert.Contains(t, docs["resources"], URIHistory)
	assert.Contains(t, docs["prompts"], "content_calendar")

	history := readResource(t, s, URIHistory)
	assert.Len(t, history["invocations"], 1)
}

func getPrompt(t *testing.T, s *Server, name string, args map[string]string) string {
	t.Helper()
	var res struct {
		Messages []struct {
			Role    string `json:"role"`
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(call(t, s, "prompts/get", map[string]any{"name": name, "arguments": args}), &res))
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "user", res.Messages[0].Role)
	return res.Messages[0].Content.Text
}

func TestPrompts(t *testing.T) {
	s, _ := newTestServer(t)
	initialize(t, s)

	thread := getPrompt(t, s, "viral_thread", map[string]string{
		"tokenSymbol": "KOL", "style": "degen", "keyPoints": `["fair launch","memes"]`,
	})
	assert.Contains(t, thread, "meme-friendly Twitter thread about KOL.")
	assert.Contains(t, thread, "Make sure to cover these key points: fair launch, memes. ")

	analysis := getPrompt(t, s, "market_analysis", map[string]string{"tokenSymbol": "SOL", "includeCharts": "false"})
	assert.Contains(t, analysis, "1-month to 3-month outlook")
	assert.NotContains(t, analysis, "chart patterns")

	calendar := getPrompt(t, s, "content_calendar", map[string]string{"tokenSymbol": "WIF", "duration": "month", "postsPerDay": "2"})
	assert.Contains(t, calendar, fmt.Sprintf("Generate 2 post ideas per day (%d posts total)", 60))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList("  "))
	assert.Equal(t, []string{"a", "b"}, splitList("a, b,"))
	assert.Equal(t, []string{"x, y", "z"}, splitList(`["x, y","z"]`))
}
