package agent

import (
	"context"

	"KOL-Agent/internal/prompts"
)

// Tool names exposed over MCP and the REST API.
const (
	ToolCreateToken      = "create_solana_token"
	ToolScrapeTrending   = "scrape_trending_tokens"
	ToolPostTweet        = "post_to_twitter"
	ToolCheckBalance     = "check_token_balance"
	ToolAnalyzeSentiment = "analyze_sentiment"
	ToolFollowerCount    = "get_follower_count"
	ToolDraftThread      = "draft_thread"
)

// ParamType is the JSON schema type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
)

// Param describes one tool argument.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

// Descriptor describes a tool for discovery.
type Descriptor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	Capability  string  `json:"capability,omitempty"`
	Enabled     bool    `json:"enabled"`
	// SideEffect marks tools that may change external state (mint a token,
	// publish a tweet). Their failed calls must not be replayed blindly.
	SideEffect bool `json:"sideEffect,omitempty"`
}

type handler func(ctx context.Context, args Arguments) (any, error)

type tool struct {
	Descriptor
	action  string
	enabled func(Capabilities) bool
	run     handler
	// commits narrows SideEffect to the arguments that actually publish.
	commits func(Arguments) bool
}

func (a *Agent) registerTools() {
	always := func(Capabilities) bool { return true }
	styles := make([]string, len(prompts.Styles))
	for i, s := range prompts.Styles {
		styles[i] = string(s)
	}

	a.tools = []*tool{
		{
			Descriptor: Descriptor{
				Name:        ToolCreateToken,
				Description: "Create a new SPL token on Solana",
				Capability:  "token_creation",
				SideEffect:  true,
				Params: []Param{
					{Name: "name", Type: ParamString, Description: "Token name", Required: true},
					{Name: "symbol", Type: ParamString, Description: "Token symbol", Required: true},
					{Name: "decimals", Type: ParamNumber, Description: "Token decimals (default: 9)"},
					{Name: "supply", Type: ParamNumber, Description: "Initial supply (default: 1 billion)"},
					{Name: "network", Type: ParamString, Description: "Configured chain name or cluster label (default: configured default chain)"},
				},
			},
			action:  "create token",
			enabled: func(c Capabilities) bool { return c.TokenCreation },
			run:     a.createToken,
		},
		{
			Descriptor: Descriptor{
				Name:        ToolScrapeTrending,
				Description: "Scrape Twitter and Farcaster for trending cryptocurrency mentions",
				Params: []Param{
					{Name: "platform", Type: ParamString, Description: "Platform to scrape (default: both)", Enum: platformChoices},
					{Name: "limit", Type: ParamNumber, Description: "Number of posts to analyze (default: 100)"},
				},
			},
			action:  "scrape trending tokens",
			enabled: func(c Capabilities) bool { return c.TwitterSearch || c.Farcaster || c.RSS },
			run:     a.scrapeTrending,
		},
		{
			Descriptor: Descriptor{
				Name:        ToolPostTweet,
				Description: "Post a tweet to Twitter/X",
				Capability:  "twitter_post",
				SideEffect:  true,
				Params: []Param{
					{Name: "text", Type: ParamString, Description: "Tweet text (max 280 characters)", Required: true},
				},
			},
			action:  "post tweet",
			enabled: func(c Capabilities) bool { return c.TwitterPost },
			run:     a.postTweet,
		},
		{
			Descriptor: Descriptor{
				Name:        ToolCheckBalance,
				Description: "Check token balance for a Solana address",
				Params: []Param{
					{Name: "mint", Type: ParamString, Description: "Token mint address", Required: true},
					{Name: "owner", Type: ParamString, Description: "Owner wallet address", Required: true},
					{Name: "network", Type: ParamString, Description: "Configured chain name or cluster label (default: configured default chain)"},
				},
			},
			action:  "check balance",
			enabled: always,
			run:     a.checkBalance,
		},
		{
			Descriptor: Descriptor{
				Name:        ToolAnalyzeSentiment,
				Description: "Analyze sentiment of social media mentions for a token",
				Capability:  "twitter_search",
				Params: []Param{
					{Name: "symbol", Type: ParamString, Description: "Token symbol to analyze", Required: true},
					{Name: "timeframe", Type: ParamString, Description: "Timeframe for analysis (default: 24h)", Enum: timeframeChoices},
				},
			},
			action:  "analyze sentiment",
			enabled: always,
			run:     a.analyzeSentiment,
		},
		{
			Descriptor: Descriptor{
				Name:        ToolFollowerCount,
				Description: "Get follower count for a Twitter account",
				Capability:  "twitter_post",
				Params: []Param{
					{Name: "username", Type: ParamString, Description: "Twitter username (uses authenticated user if not provided)"},
				},
			},
			action:  "get follower count",
			enabled: func(c Capabilities) bool { return c.TwitterPost },
			run:     a.followerCount,
		},
		{
			Descriptor: Descriptor{
				Name:        ToolDraftThread,
				Description: "Draft a viral Twitter thread about a token with the configured language model, optionally posting it",
				Capability:  "llm",
				SideEffect:  true,
				Params: []Param{
					{Name: "tokenSymbol", Type: ParamString, Description: "Token symbol", Required: true},
					{Name: "tokenName", Type: ParamString, Description: "Token name"},
					{Name: "keyPoints", Type: ParamArray, Description: "Key points to cover"},
					{Name: "style", Type: ParamString, Description: "Writing style (default: professional)", Enum: styles},
					{Name: "post", Type: ParamBoolean, Description: "Publish the drafted thread to Twitter (default: false)"},
				},
			},
			action:  "draft thread",
			enabled: func(c Capabilities) bool { return c.LLM },
			run:     a.draftThread,
			commits: func(args Arguments) bool {
				publish, err := args.boolean("post", false)
				return publish || err != nil
			},
		},
	}

	a.byName = make(map[string]*tool, len(a.tools))
	for _, t := range a.tools {
		a.byName[t.Name] = t
	}
}

// Tools lists every tool with its effective availability.
func (a *Agent) Tools() []Descriptor {
	out := make([]Descriptor, 0, len(a.tools))
	for _, t := range a.tools {
		d := t.Descriptor
		d.Enabled = t.enabled(a.caps)
		out = append(out, d)
	}
	return out
}

// SideEffecting reports whether calling name with args may change external
// state. Unknown tools report false.
func (a *Agent) SideEffecting(name string, args Arguments) bool {
	t, ok := a.byName[name]
	if !ok || !t.SideEffect {
		return false
	}
	if t.commits == nil {
		return true
	}
	return t.commits(args)
}

// HasTool reports whether name is a registered tool.
func (a *Agent) HasTool(name string) bool {
	_, ok := a.byName[name]
	return ok
}
