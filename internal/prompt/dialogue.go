package prompt

import (
	"strings"

	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/llm"
	"github.com/comigor/summarizer-go/internal/tokens"
)

// blank fills the missing side when two same-role turns meet.
const blank = " "

// Dialogue rebuilds a system/user/assistant conversation from a chat log.
// Only marked bot answers and user text addressed to the bot take part;
// commands and unrelated chatter are skipped.
type Dialogue struct {
	Counter      tokens.Counter
	BotName      string
	SystemPrompt string
	MaxTurns     int
	MaxTokens    int
}

// Mentions reports whether text mentions the bot's @handle as a whole word:
// "@bot," counts, "@bot_helper" and "me@bot.com" do not.
func Mentions(text, botName string) bool {
	if botName == "" {
		return false
	}
	lower := strings.ToLower(text)
	handle := "@" + strings.ToLower(botName)
	for from := 0; from < len(lower); {
		i := strings.Index(lower[from:], handle)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(handle)
		if (start == 0 || !isHandleByte(lower[start-1])) && (end == len(lower) || !isHandleByte(lower[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isHandleByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func (b Dialogue) candidate(m history.Message) (llm.Turn, bool) {
	if m.IsFromBot(b.BotName) {
		if strings.HasPrefix(m.Text, AnswerMarker) {
			return llm.Turn{Role: llm.RoleAssistant, Content: StripAnswer(m.Text)}, true
		}
		return llm.Turn{}, false
	}
	if strings.HasPrefix(m.Text, AskMarker) {
		return llm.Turn{Role: llm.RoleUser, Content: strings.TrimPrefix(m.Text, AskMarker)}, true
	}
	if Mentions(m.Text, b.BotName) {
		return llm.Turn{Role: llm.RoleUser, Content: m.Text}, true
	}
	return llm.Turn{}, false
}

// Build returns the system turn followed by strictly alternating turns,
// trimmed from the oldest end to MaxTurns turns and MaxTokens tokens. The
// system turn is never dropped.
func (b Dialogue) Build(h *history.History) []llm.Turn {
	system := llm.Turn{Role: llm.RoleSystem, Content: b.SystemPrompt}

	var turns []llm.Turn
	lastRole := system.Role
	for _, m := range h.Messages() {
		t, ok := b.candidate(m)
		if !ok {
			continue
		}
		if t.Role == lastRole {
			turns = append(turns, llm.Turn{Role: other(t.Role), Content: blank})
		}
		turns = append(turns, t)
		lastRole = t.Role
	}

	if b.MaxTurns > 0 {
		keep := b.MaxTurns - 1
		if keep < 0 {
			keep = 0
		}
		if len(turns) > keep {
			turns = turns[len(turns)-keep:]
		}
	}

	out := append([]llm.Turn{system}, turns...)
	if b.MaxTokens <= 0 {
		return out
	}
	for len(out) > 1 && b.Counter.CountTurns(out) > b.MaxTokens {
		out = append(out[:1], out[2:]...)
	}
	return out
}

func other(r llm.Role) llm.Role {
	if r == llm.RoleUser {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}
