package mcpserver

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/prompts"
)

type promptArg struct {
	name        string
	description string
	required    bool
}

type promptDef struct {
	name        string
	description string
	args        []promptArg
	render      func(args map[string]string) (string, error)
}

var promptDefs = []promptDef{
	{
		name:        "viral_thread",
		description: "Generate a viral Twitter thread about a cryptocurrency or memecoin",
		args: []promptArg{
			{"tokenSymbol", "Token symbol", true},
			{"tokenName", "Token name", false},
			{"keyPoints", "Key points to highlight (JSON array or comma separated)", false},
			{"style", "Thread style: professional, degen or educational", false},
		},
		render: func(args map[string]string) (string, error) {
			return prompts.ViralThread(args["tokenSymbol"], args["tokenName"], splitList(args["keyPoints"]), prompts.Style(args["style"]))
		},
	},
	{
		name:        "market_analysis",
		description: "Generate a market analysis for a cryptocurrency",
		args: []promptArg{
			{"tokenSymbol", "Token symbol to analyze", true},
			{"includeCharts", "Whether to reference chart patterns (default true)", false},
			{"timeframe", "Analysis timeframe: short, medium or long", false},
		},
		render: func(args map[string]string) (string, error) {
			charts := true
			if raw := strings.TrimSpace(args["includeCharts"]); raw != "" {
				v, err := strconv.ParseBool(raw)
				if err != nil {
					return "", xerrors.New(xerrors.CodeInvalidArgument, "includeCharts must be a boolean")
				}
				charts = v
			}
			return prompts.MarketAnalysis(args["tokenSymbol"], charts, prompts.Horizon(args["timeframe"]))
		},
	},
	{
		name:        "content_calendar",
		description: "Generate a content calendar for social media marketing",
		args: []promptArg{
			{"tokenSymbol", "Token to create content for", true},
			{"duration", "Calendar duration: week or month", false},
			{"postsPerDay", "Number of posts per day (default 3)", false},
		},
		render: func(args map[string]string) (string, error) {
			perDay := 0
			if raw := strings.TrimSpace(args["postsPerDay"]); raw != "" {
				v, err := strconv.Atoi(raw)
				if err != nil || v <= 0 {
					return "", xerrors.New(xerrors.CodeInvalidArgument, "postsPerDay must be a positive integer")
				}
				perDay = v
			}
			return prompts.ContentCalendar(args["tokenSymbol"], prompts.Duration(args["duration"]), perDay)
		},
	},
}

func (s *Server) registerPrompts() {
	for _, def := range promptDefs {
		opts := []mcp.PromptOption{mcp.WithPromptDescription(def.description)}
		for _, a := range def.args {
			argOpts := []mcp.ArgumentOption{mcp.ArgumentDescription(a.description)}
			if a.required {
				argOpts = append(argOpts, mcp.RequiredArgument())
			}
			opts = append(opts, mcp.WithArgument(a.name, argOpts...))
		}
		render := def.render
		description := def.description
		s.mcp.AddPrompt(mcp.NewPrompt(def.name, opts...), func(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			text, err := render(request.Params.Arguments)
			if err != nil {
				return nil, err
			}
			return mcp.NewGetPromptResult(description, []mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
			}), nil
		})
	}
}

// splitList accepts either a JSON string array or a comma separated list.
func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var list []string
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &list) == nil {
		return list
	}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}
