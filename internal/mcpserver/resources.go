package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"KOL-Agent/internal/agent"
	"KOL-Agent/internal/storage/mysql"
	"KOL-Agent/internal/web3/provider"
)

const (
	URIStats    = "agent://stats"
	URINetworks = "agent://networks"
	URIDocs     = "agent://docs"
	URIHistory  = "agent://history"

	historyLimit = 50
)

// Public Solana cluster endpoints advertised alongside the configured chains.
var solanaClusters = map[string]string{
	"mainnet": "https://api.mainnet-beta.solana.com",
	"devnet":  "https://api.devnet.solana.com",
	"testnet": "https://api.testnet.solana.com",
}

type resourceDef struct {
	uri         string
	name        string
	description string
	read        func(ctx context.Context) (any, error)
}

func (s *Server) resources() []resourceDef {
	return []resourceDef{
		{URIStats, "agent_stats", "Agent statistics and status", s.readStats},
		{URINetworks, "supported_networks", "Supported networks", s.readNetworks},
		{URIDocs, "api_documentation", "API documentation", s.readDocs},
		{URIHistory, "invocation_history", "Latest tool invocations", s.readHistory},
	}
}

func (s *Server) registerResources() {
	for _, r := range s.resources() {
		resource := mcp.NewResource(r.uri, r.name,
			mcp.WithResourceDescription(r.description),
			mcp.WithMIMEType("application/json"),
		)
		read := r.read
		uri := r.uri
		s.mcp.AddResource(resource, func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			payload, err := read(ctx)
			if err != nil {
				return nil, err
			}
			return jsonContents(uri, payload)
		})
	}
}

type statsPayload struct {
	Status           string            `json:"status"`
	Uptime           string            `json:"uptime"`
	StartedAt        string            `json:"startedAt"`
	Capabilities     []string          `json:"capabilities"`
	WalletConfigured bool              `json:"walletConfigured"`
	Invocations      []mysql.ToolStats `json:"invocations"`
	LastUpdated      string            `json:"lastUpdated"`
}

var capabilityLabels = []struct {
	label   string
	enabled func(agent.Capabilities) bool
}{
	{"Token Creation", func(c agent.Capabilities) bool { return c.TokenCreation }},
	{"Social Media Scraping", func(c agent.Capabilities) bool { return c.TwitterSearch || c.Farcaster || c.RSS }},
	{"Sentiment Analysis", func(agent.Capabilities) bool { return true }},
	{"Automated Posting", func(c agent.Capabilities) bool { return c.TwitterPost }},
	{"Balance Checking", func(agent.Capabilities) bool { return true }},
	{"Thread Drafting", func(c agent.Capabilities) bool { return c.LLM }},
}

func (s *Server) readStats(ctx context.Context) (any, error) {
	caps := s.agent.Capabilities()
	labels := make([]string, 0, len(capabilityLabels))
	for _, c := range capabilityLabels {
		if c.enabled(caps) {
			labels = append(labels, c.label)
		}
	}
	stats, err := s.agent.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []mysql.ToolStats{}
	}
	now := s.now()
	return statsPayload{
		Status:           "active",
		Uptime:           now.Sub(s.agent.StartedAt()).Truncate(time.Second).String(),
		StartedAt:        timestamp(s.agent.StartedAt()),
		Capabilities:     labels,
		WalletConfigured: s.walletConfigured,
		Invocations:      stats,
		LastUpdated:      timestamp(now),
	}, nil
}

type networksPayload struct {
	Chains          []provider.NetworkInfo `json:"chains"`
	Solana          map[string]string      `json:"solana"`
	SocialPlatforms []string               `json:"socialPlatforms"`
}

func (s *Server) readNetworks(context.Context) (any, error) {
	caps := s.agent.Capabilities()
	platforms := []string{}
	if caps.TwitterSearch || caps.TwitterPost {
		platforms = append(platforms, "twitter")
	}
	if caps.Farcaster {
		platforms = append(platforms, "farcaster")
	}
	if caps.RSS {
		platforms = append(platforms, "rss")
	}
	chains := s.agent.Networks()
	if chains == nil {
		chains = []provider.NetworkInfo{}
	}
	return networksPayload{Chains: chains, Solana: solanaClusters, SocialPlatforms: platforms}, nil
}

type docsPayload struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Tools       map[string]string `json:"tools"`
	Resources   map[string]string `json:"resources"`
	Prompts     map[string]string `json:"prompts"`
}

func (s *Server) readDocs(context.Context) (any, error) {
	doc := docsPayload{
		Name:        "KOL Agent MCP",
		Version:     ServerVersion,
		Description: "Autonomous agent for creating tokens, analyzing trends, and managing social media presence",
		Tools:       map[string]string{},
		Resources:   map[string]string{},
		Prompts:     map[string]string{},
	}
	for _, t := range s.agent.Tools() {
		doc.Tools[t.Name] = t.Description
	}
	for _, r := range s.resources() {
		doc.Resources[r.uri] = r.description
	}
	for _, p := range promptDefs {
		doc.Prompts[p.name] = p.description
	}
	return doc, nil
}

func (s *Server) readHistory(ctx context.Context) (any, error) {
	records, err := s.agent.History(ctx, mysql.HistoryQuery{Limit: historyLimit})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []mysql.InvocationRecord{}
	}
	return map[string]any{"invocations": records}, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
