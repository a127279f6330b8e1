// Package mcpserver publishes chat summaries and stored history as MCP tools
// so other agents can read what happened in a group.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/summarizer-go/internal/agent"
	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/prompt"
)

const (
	ToolSummarizeChat = "summarize_chat"
	ToolChatHistory   = "chat_history"
)

// Agent is the part of agent.Agent the tools call.
type Agent interface {
	Summarize(ctx context.Context, chatID int64, count int) (string, error)
	Recent(ctx context.Context, chatID int64, limit int) ([]history.Message, error)
	DefaultCount() int
	MaxCount() int
}

type Server struct {
	agent Agent
	addr  string
	mcp   *server.MCPServer
	sse   *server.SSEServer
}

// New registers the tools. addr is where Start listens.
func New(a Agent, version, addr string) *Server {
	s := &Server{agent: a}
	s.mcp = server.NewMCPServer("summarizer", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool(ToolSummarizeChat,
		mcp.WithDescription("Summarize the most recent messages of a Telegram chat the bot is in."),
		mcp.WithNumber("chat_id", mcp.Required(), mcp.Description("Telegram chat id")),
		mcp.WithNumber("count",
			mcp.Description("How many of the latest messages to summarize"),
			mcp.Min(1), mcp.Max(float64(a.MaxCount())), mcp.DefaultNumber(float64(a.DefaultCount())),
		),
	), s.handleSummarize)

	s.mcp.AddTool(mcp.NewTool(ToolChatHistory,
		mcp.WithDescription("Return the latest stored messages of a Telegram chat, one '@user: text' line each."),
		mcp.WithNumber("chat_id", mcp.Required(), mcp.Description("Telegram chat id")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of messages"), mcp.Min(1)),
	), s.handleHistory)

	s.addr = addr
	s.sse = server.NewSSEServer(s.mcp, server.WithHTTPServer(&http.Server{Addr: addr}))
	return s
}

// Start serves the tools over SSE until Shutdown.
func (s *Server) Start() error {
	logger.L.Info("starting MCP server", "address", s.addr)
	return s.sse.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}

func (s *Server) handleSummarize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chatID, err := req.RequireInt("chat_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	count := req.GetInt("count", s.agent.DefaultCount())

	summary, err := s.agent.Summarize(ctx, int64(chatID), count)
	if errors.Is(err, agent.ErrInvalidCount) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		logger.L.Error("MCP summary failed", "chat_id", chatID, "error", err)
		return mcp.NewToolResultErrorFromErr("summary failed", err), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chatID, err := req.RequireInt("chat_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be positive, got %d", limit)), nil
	}

	msgs, err := s.agent.Recent(ctx, int64(chatID), limit)
	if err != nil {
		logger.L.Error("MCP history read failed", "chat_id", chatID, "error", err)
		return mcp.NewToolResultErrorFromErr("history unavailable", err), nil
	}
	return mcp.NewToolResultText(prompt.Render(msgs)), nil
}
