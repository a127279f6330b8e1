package llm

import (
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/summarizer-go/internal/config"
)

// NewClient creates the chat completion backend named by cfg.Provider:
// "openai" (or any OpenAI-compatible base URL) or "azure".
func NewClient(cfg config.LLMConfig) *openai.Client {
	var oc openai.ClientConfig
	switch strings.ToLower(cfg.Provider) {
	case "azure":
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
	default:
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	}
	// Per-call deadlines come from the gateway context; this only bounds
	// a connection that never answers.
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: 2 * cfg.Timeout}
	}
	return openai.NewClientWithConfig(oc)
}
