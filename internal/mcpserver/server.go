// Package mcpserver exposes the agent tools, resources and prompts over the
// Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"KOL-Agent/internal/agent"
	"KOL-Agent/pkg/logger"
)

const (
	// ServerName is reported to MCP clients during initialisation.
	ServerName = "KOLMcpServer"
	// ServerVersion is reported to MCP clients during initialisation.
	ServerVersion = "1.0.0"

	// SourceMCP tags invocations issued by MCP clients.
	SourceMCP = "mcp"
)

// Server wraps an MCP server bound to one agent.
type Server struct {
	agent            *agent.Agent
	mcp              *server.MCPServer
	walletConfigured bool
	now              func() time.Time
	log              *slog.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithWalletConfigured reports whether a signing key is available.
func WithWalletConfigured(configured bool) Option {
	return func(s *Server) { s.walletConfigured = configured }
}

// WithClock overrides the clock used for resource timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New registers every tool, resource and prompt on a fresh MCP server.
func New(ag *agent.Agent, opts ...Option) *Server {
	s := &Server{
		agent: ag,
		now:   time.Now,
		log:   logger.Named("mcp"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.mcp = server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// ServeStdio speaks the protocol over in and out until ctx is cancelled or
// the input is closed. Diagnostics go to the application logger so that out
// carries protocol frames only.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError))
	s.log.Info("MCP stdio 服务已启动")
	return stdio.Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	for _, d := range s.agent.Tools() {
		s.mcp.AddTool(toolSchema(d), s.toolHandler(d.Name))
	}
}

func toolSchema(d agent.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(d.Description),
		mcp.WithReadOnlyHintAnnotation(!d.SideEffect),
		mcp.WithIdempotentHintAnnotation(!d.SideEffect),
	}
	for _, p := range d.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		if len(p.Enum) > 0 {
			props = append(props, mcp.Enum(p.Enum...))
		}
		switch p.Type {
		case agent.ParamNumber:
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case agent.ParamBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		case agent.ParamArray:
			props = append(props, mcp.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcp.WithArray(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(d.Name, opts...)
}

func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := s.agent.Execute(ctx, agent.ToolRequest{
			Tool:      name,
			Arguments: agent.Arguments(request.GetArguments()),
			Source:    SourceMCP,
		})
		if err != nil {
			return mcp.NewToolResultError(s.agent.FailureMessage(name, err)), nil
		}
		return mcp.NewToolResultText(res.Text()), nil
	}
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(body)},
	}, nil
}
