package router

import (
	"fmt"
	"strings"
)

const (
	msgWelcome = `Hello, I'm your best friend for summing everything up :)
If you want to talk to me or ask me something, just write a message.
The buttons below are my commands. To cancel a command, send 'x'.
To let me summarize a group chat, add me to it, or send /start in a group I'm already in.
So, how can I help you?`
	msgWelcomeBack = "Hi, I think we've met before 😑\nHow can I help you?"
	msgHelp        = `I can summarize the dialog of any group you registered with me.
To register a group, add me to it, or send /start there if someone else added me.
Summaries are only available in our private chat.
Commands:
/sum_up - summarize a registered group
/show_chats - list your registered groups
/remove_chat - remove a group from your list (I stay in the group)
/help - show this message`

	msgRegisteredChats = "Chats you registered:\n"
	msgNoChats         = "You haven't registered any chats yet. Add me to a group first."
	msgSummaryPrompt   = "Tell me the name of a chat from the list and, optionally, how many of its last messages to sum up (1 to %d, default %d), in this format:\n\nmy_group\n100"
	msgRemovePrompt    = "Send me the name of the chat you want to remove."

	msgUnknownChatSummary = "Sorry, I don't know a chat with that name. Try again with /sum_up 😅"
	msgUnknownChatRemove  = "Sorry, I don't know a chat with that name. Try again with /remove_chat 😅"
	msgBadFormat          = "Sorry, your instruction isn't in the right format. Try again with /sum_up 😅"
	msgBadNumber          = "Sorry, that is an incorrect number format. Try again with /sum_up 😅"
	msgChatRemoved        = "Good, chat '%s' was removed from your list 😄"
	msgCanceled           = "Good, your command %s was canceled 😌"
	msgNothingToCancel    = "Sorry, you don't have a command to cancel 😅"

	msgGroupRegistered       = "I registered this chat, as you wish 😄"
	msgGroupAlreadyThere     = "This chat is already registered for you 😁"
	msgGroupRegisteredForYou = "I registered the chat '%s' for you 😌"
	msgNotInGroup            = "Sorry, I can't do that in a group 😅"

	msgDeliveryApology = "Sorry, something went wrong, try again 😅"
)

var progressSteps = []string{".", ". .", ". . ."}

func msgOnboarding(botName string) string {
	return fmt.Sprintf("Sorry, I don't remember you 😅\nIf you want, we can get to know each other :)\nhttps://t.me/%s\nand press /start", botName)
}

func chatList(names []string) string {
	if len(names) == 0 {
		return msgNoChats
	}
	return msgRegisteredChats + strings.Join(names, "\n")
}
