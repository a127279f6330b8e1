// Package tokens estimates how many model tokens a text or a turn list costs,
// following the accounting rules of the OpenAI chat model family.
package tokens

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/comigor/summarizer-go/internal/llm"
	"github.com/comigor/summarizer-go/internal/logger"
)

// DefaultEncoding is used for models tiktoken doesn't know.
const DefaultEncoding = "cl100k_base"

func init() {
	// BPE ranks are embedded; counting must never reach the network.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Counter is what the prompt builders need from an estimator.
type Counter interface {
	Count(text string) int
	CountTurns(turns []llm.Turn) int
}

// Estimator counts tokens with a model's encoding.
type Estimator struct {
	enc        *tiktoken.Tiktoken
	encoding   string
	perMessage int
}

// New returns an estimator for model, falling back to DefaultEncoding when
// the model is unknown.
func New(model string) (*Estimator, error) {
	encoding := DefaultEncoding
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.L.Warn("model not known to tokenizer; using default encoding", "model", model, "encoding", DefaultEncoding)
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("load encoding %s: %w", DefaultEncoding, err)
		}
	} else {
		encoding = encodingName(model)
	}

	e := &Estimator{enc: enc, encoding: encoding, perMessage: 3}
	// every message of the legacy snapshot follows <|start|>{role/name}\n{content}<|end|>\n
	if model == "gpt-3.5-turbo-0301" {
		e.perMessage = 4
	}
	return e, nil
}

func encodingName(model string) string {
	if name, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return name
	}
	for prefix, name := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return name
		}
	}
	return DefaultEncoding
}

// Encoding names the BPE encoding in use.
func (e *Estimator) Encoding() string { return e.encoding }

// Count returns the encoded length of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}

// CountTurns prices a request: a fixed overhead per message, the encoded
// length of every field, and the priming of the assistant reply.
func (e *Estimator) CountTurns(turns []llm.Turn) int {
	n := 0
	for _, t := range turns {
		n += e.perMessage
		n += e.Count(string(t.Role))
		n += e.Count(t.Content)
	}
	// every reply is primed with <|start|>assistant<|message|>
	return n + 3
}
