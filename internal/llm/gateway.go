package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/summarizer-go/internal/config"
	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/metrics"
)

var errEmptyCompletion = errors.New("completion has no choices")

// Gateway sends turn lists to the model. It never fails: any backend error,
// including the timeout, resolves to the configured fallback text.
type Gateway struct {
	client      Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	fallback    string
	metrics     *metrics.Metrics
}

func NewGateway(client Client, cfg config.LLMConfig, m *metrics.Metrics) *Gateway {
	return &Gateway{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		fallback:    cfg.FallbackMessage,
		metrics:     m,
	}
}

// Complete returns the model's reply to turns, or the fallback text.
func (g *Gateway) Complete(ctx context.Context, turns []Turn) string {
	requestID := uuid.NewString()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := g.temperature
	if temperature == 0 {
		// go-openai drops a zero temperature as omitempty, which the API reads as 1.
		temperature = math.SmallestNonzeroFloat32
	}

	logger.L.Debug("completion request", "request_id", requestID, "model", g.model, "turns", len(turns))
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAI(turns),
		Temperature: temperature,
		MaxTokens:   g.maxTokens,
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errEmptyCompletion
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		logger.L.Error("LLM call failed", "request_id", requestID, "outcome", outcome, "error", err)
		g.metrics.ObserveCompletion(outcome, time.Since(start))
		return g.fallback
	}

	g.metrics.ObserveCompletion("ok", time.Since(start))
	logger.L.Debug("completion received", "request_id", requestID, "usage_total", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content
}
