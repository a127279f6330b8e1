// Package prompt turns stored chat history into model input: a single
// instruction turn for summaries, or an alternating dialogue for chat.
package prompt

import "strings"

// Stored messages carry these prefixes so the dialogue can be rebuilt from the
// log alone: bot replies meant as dialogue, and user text meant for the bot.
const (
	AnswerMarker = "<answer>\n"
	AskMarker    = "&"
)

// StripAnswer removes a leading AnswerMarker.
func StripAnswer(s string) string { return strings.TrimPrefix(s, AnswerMarker) }

// TagAnswer marks s as a bot reply that belongs to the dialogue.
func TagAnswer(s string) string { return AnswerMarker + StripAnswer(s) }

// TagAsk marks s as user text addressed to the bot.
func TagAsk(s string) string { return AskMarker + s }
