package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DomainsURI is the resource listing every domain with its rules.
const DomainsURI = "parley://domains"

// Conversation is what the MCP server needs from a session manager.
type Conversation interface {
	ports.Conversation
	LoadOrStart(ctx context.Context, sessionID string) (domain.Response, bool, error)
	Rules(name string) []string
}

// TurnResult aligns with the HTTP Turn schema and provides a unified structure across adapters.
type TurnResult struct {
	SessionID string          `json:"session_id" jsonschema_description:"The session the turn belongs to"`
	Response  domain.Response `json:"response" jsonschema_description:"What the machine answered"`
	Error     string          `json:"error,omitempty" jsonschema_description:"Set when interpretation failed and the response is the apology"`
}

// SessionArgs addresses an existing session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// AnswerArgs feeds one input to a session.
type AnswerArgs struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// RuleArgs runs a rule by name.
type RuleArgs struct {
	SessionID string `json:"session_id"`
	Rule      string `json:"rule"`
}

// DomainInfo describes one registered domain.
type DomainInfo struct {
	Name  string   `json:"name"`
	Rules []string `json:"rules"`
}

// Server wraps a Conversation and exposes it as an MCP Server.
type Server struct {
	conv      Conversation
	mcpServer *server.MCPServer
	sanitizer runner.Sanitizer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithInputLimit bounds the size of a query in bytes.
func WithInputLimit(limit int) Option {
	return func(s *Server) {
		s.sanitizer.Limit = limit
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(conv Conversation, opts ...Option) *Server {
	s := &Server{
		conv:      conv,
		mcpServer: server.NewMCPServer("parley-mcp", parley.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when
// ctx is canceled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a conversation and return the opening prompt. An existing session ID is left untouched."),
		mcp.WithString("session_id", mcp.Description("Session ID to create (optional, generated when omitted)")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("answer",
		mcp.WithDescription("Send one user input to a session and return the machine's answer."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("query", mcp.Required(), mcp.Description("User input")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleAnswer))

	s.mcpServer.AddTool(mcp.NewTool("run_rule",
		mcp.WithDescription("Run a rule by name inside a session, as if the user had asked for it."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("rule", mcp.Required(), mcp.Description("Rule name")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleRunRule))

	s.mcpServer.AddTool(mcp.NewTool("reset",
		mcp.WithDescription("Abandon the conversation in progress in a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.handleReset)

	s.mcpServer.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("Speak the leave greeting and delete a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleEnd))

	s.mcpServer.AddTool(mcp.NewTool("list_domains",
		mcp.WithDescription("List the registered domains in claim order, with their rules."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.domains())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list domains failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (TurnResult, error) {
	if args.SessionID == "" {
		id, resp, err := s.conv.Start(ctx)
		if err != nil {
			return TurnResult{}, fmt.Errorf("start failed: %w", err)
		}
		return TurnResult{SessionID: id, Response: resp}, nil
	}
	resp, _, err := s.conv.LoadOrStart(ctx, args.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("start failed: %w", err)
	}
	return TurnResult{SessionID: args.SessionID, Response: resp}, nil
}

func (s *Server) handleAnswer(ctx context.Context, request mcp.CallToolRequest, args AnswerArgs) (TurnResult, error) {
	clean, err := s.sanitizer.Sanitize(args.Query)
	if err != nil {
		s.logger.WarnContext(ctx, "MCP answer: input rejected", "err", err, "size", len(args.Query))
		return TurnResult{}, fmt.Errorf("input rejected: %w", err)
	}
	resp, err := s.conv.Answer(ctx, args.SessionID, clean)
	return s.turn(ctx, args.SessionID, resp, err)
}

func (s *Server) handleRunRule(ctx context.Context, request mcp.CallToolRequest, args RuleArgs) (TurnResult, error) {
	resp, err := s.conv.RunRule(ctx, args.SessionID, args.Rule)
	return s.turn(ctx, args.SessionID, resp, err)
}

func (s *Server) handleEnd(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (TurnResult, error) {
	resp, err := s.conv.End(ctx, args.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("end failed: %w", err)
	}
	return TurnResult{SessionID: args.SessionID, Response: resp}, nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.conv.Reset(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	return mcp.NewToolResultText("reset"), nil
}

// turn keeps the apology of a failed interpretation as a result; only
// failures without a response become tool errors.
func (s *Server) turn(ctx context.Context, id string, resp domain.Response, err error) (TurnResult, error) {
	if err != nil && resp.Text == "" {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.ErrorContext(ctx, "MCP turn failed", "session_id", id, "err", err)
		}
		return TurnResult{}, err
	}
	res := TurnResult{SessionID: id, Response: resp}
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

func (s *Server) domains() []DomainInfo {
	names := s.conv.Domains()
	out := make([]DomainInfo, len(names))
	for i, name := range names {
		out[i] = DomainInfo{Name: name, Rules: s.conv.Rules(name)}
	}
	return out
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(DomainsURI, "Registered Domains",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.domains())
		if err != nil {
			return nil, fmt.Errorf("failed to list domains: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      DomainsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
