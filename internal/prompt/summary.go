package prompt

import (
	"fmt"
	"strings"

	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/llm"
	"github.com/comigor/summarizer-go/internal/tokens"
)

const summaryTemplate = `Your task is to write a short summary of the conversation below that is accurate, concise and informative.
Write the summary in the language of the conversation. It should cover:
1. The main topics of discussion.
2. A retelling of the conversation in at most 3 sentences.
3. Up to 15 short representative quotes, each attributed to its sender.
4. Any notable or funny moments. If there are none, leave this point out entirely.

Each line of the conversation has the format "@sender: message".

Conversation: ` + "```%s```"

// Summary builds the one-turn summarization request.
type Summary struct {
	Counter    tokens.Counter
	MaxTokens  int
	ChunkChars int
}

// Render flattens messages into "@sender: text" lines.
func Render(msgs []history.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "@%s: %s", m.SenderName, m.Text)
	}
	return b.String()
}

func summaryTurn(text string) llm.Turn {
	return llm.Turn{Role: llm.RoleUser, Content: fmt.Sprintf(summaryTemplate, text)}
}

// Build renders the last k messages of h and wraps them in the instruction.
// While the wrapped turn is over budget, ChunkChars characters are cut from
// the front of the rendered text. It returns the single turn and the text
// that ended up inside it.
func (b Summary) Build(h *history.History, k int) ([]llm.Turn, string) {
	text := Render(h.Tail(k))
	turn := summaryTurn(text)
	if b.MaxTokens <= 0 {
		return []llm.Turn{turn}, text
	}
	chunk := b.ChunkChars
	if chunk <= 0 {
		chunk = 100
	}
	for text != "" && b.Counter.Count(turn.Content) > b.MaxTokens {
		text = dropPrefix(text, chunk)
		turn = summaryTurn(text)
	}
	return []llm.Turn{turn}, text
}

// dropPrefix cuts n characters (not bytes) from the front of s.
func dropPrefix(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}
