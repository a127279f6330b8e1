package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/comigor/summarizer-go/internal/config"
	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/llm"
	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/metrics"
	"github.com/comigor/summarizer-go/internal/prompt"
	"github.com/comigor/summarizer-go/internal/tokens"
)

// ErrInvalidCount is returned when a summary is requested for a message count
// outside [1, max].
var ErrInvalidCount = errors.New("agent: message count out of range")

// Completer is what the agent needs from the model gateway. It never fails;
// backend errors come back as a fallback text.
type Completer interface {
	Complete(ctx context.Context, turns []llm.Turn) string
}

// Agent runs the two model-backed use cases, summary and chat reply, on top of
// the stored history. It is shared by the chat router and the operator
// surfaces (HTTP, MCP).
type Agent struct {
	history      *history.Store
	llm          Completer
	counter      tokens.Counter
	summary      prompt.Summary
	dialogue     prompt.Dialogue
	defaultCount int
	maxCount     int
	metrics      *metrics.Metrics
}

// New creates a new agent.
func New(h *history.Store, c Completer, counter tokens.Counter, cfg config.Config, m *metrics.Metrics) *Agent {
	return &Agent{
		history: h,
		llm:     c,
		counter: counter,
		summary: prompt.Summary{
			Counter:    counter,
			MaxTokens:  cfg.Prompt.SummaryMaxTokens,
			ChunkChars: cfg.Prompt.SummaryChunkChars,
		},
		dialogue: prompt.Dialogue{
			Counter:      counter,
			BotName:      cfg.Bot.Username,
			SystemPrompt: cfg.Bot.SystemPrompt,
			MaxTurns:     cfg.Prompt.DialogueMaxTurns,
			MaxTokens:    cfg.Prompt.DialogueMaxTokens,
		},
		defaultCount: cfg.Prompt.DefaultSummaryCount,
		maxCount:     cfg.Prompt.MaxSummaryCount,
		metrics:      m,
	}
}

// DefaultCount is the number of messages summarized when none is given.
func (a *Agent) DefaultCount() int { return a.defaultCount }

// MaxCount is the largest accepted summary window.
func (a *Agent) MaxCount() int { return a.maxCount }

// Summarize asks the model to summarize the last count messages of chatID. A
// chat with no stored history yields a summary of an empty conversation.
func (a *Agent) Summarize(ctx context.Context, chatID int64, count int) (string, error) {
	if count < 1 || count > a.maxCount {
		return "", fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidCount, count, a.maxCount)
	}
	h, err := a.history.Load(ctx, chatID)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return "", err
	}

	turns, text := a.summary.Build(h, count)
	size := a.counter.Count(turns[0].Content)
	a.metrics.ObservePromptTokens("summary", size)
	logger.L.Info("summary prompt built", "chat_id", chatID, "requested", count, "available", h.Len(), "chars", len(text), "tokens", size)

	return prompt.StripAnswer(a.llm.Complete(ctx, turns)), nil
}

// Reply answers the latest user turn of chatID using the dialogue rebuilt
// from its whole history.
func (a *Agent) Reply(ctx context.Context, chatID int64) (string, error) {
	h, err := a.history.Load(ctx, chatID)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return "", err
	}

	turns := a.dialogue.Build(h)
	size := a.counter.CountTurns(turns)
	a.metrics.ObservePromptTokens("dialogue", size)
	logger.L.Info("dialogue prompt built", "chat_id", chatID, "turns", len(turns), "tokens", size)

	return prompt.StripAnswer(a.llm.Complete(ctx, turns)), nil
}

// Recent returns up to limit of the newest stored messages of chatID.
func (a *Agent) Recent(ctx context.Context, chatID int64, limit int) ([]history.Message, error) {
	h, err := a.history.Load(ctx, chatID)
	if errors.Is(err, history.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = a.defaultCount
	}
	return h.Tail(limit), nil
}

// Forget drops the stored history of chatID.
func (a *Agent) Forget(ctx context.Context, chatID int64) error {
	return a.history.Clear(ctx, chatID)
}
