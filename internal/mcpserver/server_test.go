package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/comigor/summarizer-go/internal/agent"
	"github.com/comigor/summarizer-go/internal/history"
)

type fakeAgent struct {
	calls  []int
	recent []history.Message
	err    error
}

func (f *fakeAgent) Summarize(_ context.Context, chatID int64, count int) (string, error) {
	f.calls = append(f.calls, count)
	if count < 1 || count > f.MaxCount() {
		return "", fmt.Errorf("%w: %d", agent.ErrInvalidCount, count)
	}
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("chat %d: %d messages", chatID, count), nil
}

func (f *fakeAgent) Recent(context.Context, int64, int) ([]history.Message, error) {
	return f.recent, f.err
}

func (f *fakeAgent) DefaultCount() int { return 100 }
func (f *fakeAgent) MaxCount() int     { return 1000 }

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestSummarizeTool(t *testing.T) {
	a := &fakeAgent{}
	s := New(a, "test", "127.0.0.1:0")
	ctx := context.Background()

	res, err := s.handleSummarize(ctx, call(ToolSummarizeChat, map[string]any{"chat_id": float64(-100), "count": float64(20)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "chat -100: 20 messages", text(t, res))

	res, err = s.handleSummarize(ctx, call(ToolSummarizeChat, map[string]any{"chat_id": float64(-100)}))
	require.NoError(t, err)
	require.Equal(t, "chat -100: 100 messages", text(t, res))

	res, err = s.handleSummarize(ctx, call(ToolSummarizeChat, map[string]any{"chat_id": float64(-100), "count": float64(0)}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, err = s.handleSummarize(ctx, call(ToolSummarizeChat, map[string]any{}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestSummarizeTool_BackendError(t *testing.T) {
	s := New(&fakeAgent{err: errors.New("store offline")}, "test", "127.0.0.1:0")
	res, err := s.handleSummarize(context.Background(), call(ToolSummarizeChat, map[string]any{"chat_id": float64(1)}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), "store offline")
}

func TestHistoryTool(t *testing.T) {
	a := &fakeAgent{recent: []history.Message{
		{SenderName: "alice", Text: "hi"},
		{SenderName: "bob", Text: "yo"},
	}}
	s := New(a, "test", "127.0.0.1:0")

	res, err := s.handleHistory(context.Background(), call(ToolChatHistory, map[string]any{"chat_id": float64(1), "limit": float64(2)}))
	require.NoError(t, err)
	require.Equal(t, "@alice: hi\n@bob: yo", text(t, res))

	res, err = s.handleHistory(context.Background(), call(ToolChatHistory, map[string]any{"chat_id": float64(1), "limit": float64(-3)}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := New(&fakeAgent{}, "test", "127.0.0.1:0")
	require.NoError(t, s.Shutdown(context.Background()))
	require.ErrorIs(t, s.Start(), http.ErrServerClosed)
}
