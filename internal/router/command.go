package router

import "strings"

// Command is a slash command understood by the bot.
type Command string

const (
	CmdStart      Command = "/start"
	CmdHelp       Command = "/help"
	CmdSummarize  Command = "/sum_up"
	CmdShowChats  Command = "/show_chats"
	CmdRemoveChat Command = "/remove_chat"
)

// CancelToken aborts a pending /sum_up or /remove_chat.
const CancelToken = "x"

// MenuCommands are offered on the reply keyboard in private chats.
var MenuCommands = []string{string(CmdSummarize), string(CmdShowChats), string(CmdRemoveChat), string(CmdHelp)}

// parseCommand recognizes "/cmd" and "/cmd@botname" as the first word of text.
func parseCommand(text, botName string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	word := fields[0]
	if name, target, ok := strings.Cut(word, "@"); ok {
		if !strings.EqualFold(target, botName) {
			return "", false
		}
		word = name
	}
	switch c := Command(strings.ToLower(word)); c {
	case CmdStart, CmdHelp, CmdSummarize, CmdShowChats, CmdRemoveChat:
		return c, true
	}
	return "", false
}
