package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/convoflow"
	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SimulateResponse is the structured output of simulate_message.
type SimulateResponse struct {
	SessionID string                   `json:"sessionId" jsonschema_description:"Id of the simulated session"`
	Status    domain.SessionStatus     `json:"status" jsonschema_description:"Session status after the run"`
	Waiting   domain.WaitKind          `json:"waiting,omitempty" jsonschema_description:"What the session waits for: input or timer"`
	Responses []domain.OutboundMessage `json:"responses" jsonschema_description:"Messages the bot sent during the run"`
	Error     string                   `json:"error,omitempty" jsonschema_description:"Failure of the run, if any"`
}

// ResetResponse is the structured output of reset_simulation.
type ResetResponse struct {
	Closed int `json:"closed" jsonschema_description:"Number of live test sessions closed"`
}

// LogsResponse is the structured output of get_session_logs.
type LogsResponse struct {
	Messages   []domain.MessageRecord   `json:"messages"`
	Executions []domain.ExecutionRecord `json:"executions"`
}

// Engine is what the MCP tools need from convoflow.Engine.
type Engine interface {
	ports.Conversations
	Logs() ports.LogStore
}

// Server exposes flow validation and the simulator as MCP tools.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("convoflow-mcp", strings.TrimSpace(convoflow.Version)),
		logger:    logger,
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	allowAll := cors.AllowAll().Handler
	mux := http.NewServeMux()
	mux.Handle("/sse", allowAll(sseServer.SSEHandler()))
	mux.Handle("/message", allowAll(sseServer.MessageHandler()))

	httpServer := &http.Server{Addr: addr, Handler: mux}
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

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("validate_flow",
		mcp.WithDescription("Parse a flow document (YAML or JSON) and report validation errors and warnings."),
		mcp.WithString("document", mcp.Required(), mcp.Description("The flow document")),
		mcp.WithOutputSchema[convoflow.ValidationResult](),
	), mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("simulate_message",
		mcp.WithDescription("Send a message to a bot as the simulator. Runs the newest draft and never reaches the channel."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("Bot to talk to")),
		mcp.WithString("text", mcp.Description("Message text")),
		mcp.WithString("choice_id", mcp.Description("Id of a selected button or list option")),
		mcp.WithString("address", mcp.Description("Test address; defaults to the simulator address")),
		mcp.WithString("flow_id", mcp.Description("Flow to start in instead of the bot's main flow")),
		mcp.WithOutputSchema[SimulateResponse](),
	), mcp.NewStructuredToolHandler(s.handleSimulate))

	s.mcpServer.AddTool(mcp.NewTool("reset_simulation",
		mcp.WithDescription("Close the live test sessions of an address so the next message starts over."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("Bot to reset")),
		mcp.WithString("address", mcp.Description("Test address; defaults to the simulator address")),
		mcp.WithOutputSchema[ResetResponse](),
	), mcp.NewStructuredToolHandler(s.handleReset))

	s.mcpServer.AddTool(mcp.NewTool("get_session_logs",
		mcp.WithDescription("Return the message and execution logs of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[LogsResponse](),
	), mcp.NewStructuredToolHandler(s.handleLogs))
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func addressArg(args map[string]any) string {
	if a := stringArg(args, "address"); a != "" {
		return a
	}
	return convoflow.DefaultSimulatorAddress
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (convoflow.ValidationResult, error) {
	fv, err := convoflow.ParseFlow([]byte(stringArg(args, "document")))
	if err != nil {
		return convoflow.ValidationResult{}, fmt.Errorf("parse failed: %w", err)
	}
	return convoflow.Validate(fv), nil
}

func (s *Server) handleSimulate(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SimulateResponse, error) {
	res, err := s.engine.HandleInbound(ctx, domain.Inbound{
		BotID:     stringArg(args, "bot_id"),
		FlowID:    stringArg(args, "flow_id"),
		Address:   addressArg(args),
		Text:      stringArg(args, "text"),
		ChoiceID:  stringArg(args, "choice_id"),
		Simulated: true,
	})
	if res == nil || res.Session == nil {
		if err == nil {
			err = fmt.Errorf("run produced no session")
		}
		return SimulateResponse{}, fmt.Errorf("simulate failed: %w", err)
	}

	out := SimulateResponse{
		SessionID: res.Session.ID,
		Status:    res.Session.Status,
		Waiting:   res.Session.Waiting,
		Responses: res.Responses,
	}
	if out.Responses == nil {
		out.Responses = []domain.OutboundMessage{}
	}
	if err != nil {
		s.logger.Warn("simulated run failed", logging.SessionID(out.SessionID), logging.Error(err))
		out.Error = err.Error()
	}
	return out, nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (ResetResponse, error) {
	closed, err := s.engine.ResetSimulation(ctx, stringArg(args, "bot_id"), addressArg(args))
	if err != nil {
		return ResetResponse{}, fmt.Errorf("reset failed: %w", err)
	}
	return ResetResponse{Closed: closed}, nil
}

func (s *Server) handleLogs(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (LogsResponse, error) {
	id := stringArg(args, "session_id")
	msgs, err := s.engine.Logs().Messages(ctx, id, time.Time{})
	if err != nil {
		return LogsResponse{}, err
	}
	execs, err := s.engine.Logs().Executions(ctx, id)
	if err != nil {
		return LogsResponse{}, err
	}
	return LogsResponse{Messages: msgs, Executions: execs}, nil
}
