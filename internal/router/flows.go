package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/qmuntal/stateless"

	"github.com/comigor/summarizer-go/internal/access"
	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/prompt"
)

func (r *Router) handlePrivate(ctx context.Context, c PrivateConversation, ev Event) error {
	fsm := r.states.machine(c.ID)
	st, err := currentState(ctx, fsm)
	if err != nil {
		return err
	}
	logger.L.Debug("conversation state resolved", "chat_id", c.ID, "state", st)

	text := strings.TrimSpace(ev.Text)
	cmd, isCmd := parseCommand(text, r.botName)
	isCancel := text == CancelToken

	stored := text
	if !isCmd && !isCancel && st == StateIdle {
		stored = prompt.TagAsk(text)
	}
	if seen, err := r.record(ctx, ev, stored); err != nil || seen {
		return err
	}

	switch {
	case isCmd:
		r.metrics.ObserveEvent(string(KindPrivate), "command")
		return r.privateCommand(ctx, fsm, c, ev.Sender, cmd)
	case isCancel:
		r.metrics.ObserveEvent(string(KindPrivate), "cancel")
		return r.cancel(ctx, fsm, c, st)
	case st == StateAwaitingSummaryArgs:
		r.metrics.ObserveEvent(string(KindPrivate), "summary_args")
		fire(ctx, fsm, c.ID, TriggerInput)
		return r.summaryArgs(ctx, c, ev.Sender, text)
	case st == StateAwaitingRemoveTarget:
		r.metrics.ObserveEvent(string(KindPrivate), "remove_target")
		fire(ctx, fsm, c.ID, TriggerInput)
		return r.removeTarget(ctx, c, ev.Sender, text)
	default:
		r.metrics.ObserveEvent(string(KindPrivate), "chat")
		return r.chat(ctx, c.ID)
	}
}

func (r *Router) privateCommand(ctx context.Context, fsm *stateless.StateMachine, c PrivateConversation, from Sender, cmd Command) error {
	switch cmd {
	case CmdStart:
		fire(ctx, fsm, c.ID, TriggerReset)
		created, err := r.access.Create(ctx, from.ID)
		if err != nil {
			return err
		}
		greeting := msgWelcomeBack
		if created {
			logger.L.Info("user registered", "user_id", from.ID, "username", from.Name)
			greeting = msgWelcome
		}
		return r.sayWith(ctx, c.ID, greeting, true, MenuCommands)

	case CmdHelp:
		fire(ctx, fsm, c.ID, TriggerReset)
		return r.say(ctx, c.ID, msgHelp, true)

	case CmdShowChats:
		fire(ctx, fsm, c.ID, TriggerReset)
		list, err := r.access.Load(ctx, from.ID)
		if errors.Is(err, access.ErrNotRegistered) {
			return r.say(ctx, c.ID, msgOnboarding(r.botName), false)
		}
		if err != nil {
			return err
		}
		return r.say(ctx, c.ID, chatList(list.Names()), false)

	case CmdSummarize, CmdRemoveChat:
		list, err := r.access.Load(ctx, from.ID)
		if errors.Is(err, access.ErrNotRegistered) {
			fire(ctx, fsm, c.ID, TriggerReset)
			return r.say(ctx, c.ID, msgOnboarding(r.botName), false)
		}
		if err != nil {
			return err
		}
		if list.Len() == 0 {
			fire(ctx, fsm, c.ID, TriggerReset)
			return r.say(ctx, c.ID, msgNoChats, false)
		}
		ask := msgRemovePrompt
		trigger := TriggerRemove
		if cmd == CmdSummarize {
			ask = fmt.Sprintf(msgSummaryPrompt, r.maxCount, r.defaultCnt)
			trigger = TriggerSummarize
		}
		fire(ctx, fsm, c.ID, trigger)
		return r.say(ctx, c.ID, chatList(list.Names())+"\n\n"+ask, false)
	}
	return nil
}

func (r *Router) cancel(ctx context.Context, fsm *stateless.StateMachine, c PrivateConversation, st State) error {
	if st == StateIdle {
		return r.say(ctx, c.ID, msgNothingToCancel, false)
	}
	fire(ctx, fsm, c.ID, TriggerCancel)
	return r.say(ctx, c.ID, fmt.Sprintf(msgCanceled, st.pendingCommand()), false)
}

// summaryArgs parses "<chat name>[\n<count>]" and runs the summary.
func (r *Router) summaryArgs(ctx context.Context, c PrivateConversation, from Sender, text string) error {
	list, err := r.access.Load(ctx, from.ID)
	if errors.Is(err, access.ErrNotRegistered) {
		return r.say(ctx, c.ID, msgOnboarding(r.botName), false)
	}
	if err != nil {
		return err
	}

	lines := strings.Split(text, "\n")
	name, chatID, ok := list.Lookup(lines[0])
	if !ok {
		return r.say(ctx, c.ID, msgUnknownChatSummary, false)
	}
	if len(lines) > 2 {
		return r.say(ctx, c.ID, msgBadFormat, false)
	}
	count := r.defaultCnt
	if len(lines) == 2 {
		n, ok := parseCount(lines[1], r.maxCount)
		if !ok {
			return r.say(ctx, c.ID, msgBadNumber, false)
		}
		count = n
	}

	logger.L.Info("summary requested", "user_id", from.ID, "chat", name, "chat_id", chatID, "count", count)
	p := r.startProgress(ctx, c.ID)
	p.advance(ctx)
	summary, err := r.agent.Summarize(ctx, chatID, count)
	if err != nil {
		r.deliver(ctx, c.ID, msgDeliveryApology, nil)
		return fmt.Errorf("router: summarize %d: %w", chatID, err)
	}
	p.advance(ctx)
	return r.say(ctx, c.ID, summary, true)
}

// parseCount accepts a plain decimal number in [1, max].
func parseCount(s string, max int) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

func (r *Router) removeTarget(ctx context.Context, c PrivateConversation, from Sender, text string) error {
	removed, ok, err := r.access.Remove(ctx, from.ID, text)
	if errors.Is(err, access.ErrNotRegistered) {
		return r.say(ctx, c.ID, msgOnboarding(r.botName), false)
	}
	if err != nil {
		return err
	}
	if !ok {
		return r.say(ctx, c.ID, msgUnknownChatRemove, false)
	}
	logger.L.Info("chat removed from access list", "user_id", from.ID, "chat", removed)
	return r.say(ctx, c.ID, fmt.Sprintf(msgChatRemoved, removed), false)
}

// chat answers the latest message of chatID from the stored dialogue.
func (r *Router) chat(ctx context.Context, chatID int64) error {
	p := r.startProgress(ctx, chatID)
	p.advance(ctx)
	reply, err := r.agent.Reply(ctx, chatID)
	if err != nil {
		r.deliver(ctx, chatID, msgDeliveryApology, nil)
		return fmt.Errorf("router: reply %d: %w", chatID, err)
	}
	p.advance(ctx)
	return r.say(ctx, chatID, reply, true)
}

func (r *Router) handleGroup(ctx context.Context, c GroupConversation, ev Event) error {
	if ev.NewMember != "" {
		r.metrics.ObserveEvent(string(KindGroup), "new_member")
		return r.memberAdded(ctx, c, ev)
	}

	text := strings.TrimSpace(ev.Text)
	if seen, err := r.record(ctx, ev, text); err != nil || seen {
		return err
	}

	if cmd, ok := parseCommand(text, r.botName); ok {
		r.metrics.ObserveEvent(string(KindGroup), "command")
		return r.groupCommand(ctx, c, ev.Sender, cmd)
	}
	if prompt.Mentions(text, r.botName) {
		r.metrics.ObserveEvent(string(KindGroup), "mention")
		return r.chat(ctx, c.ID)
	}
	r.metrics.ObserveEvent(string(KindGroup), "message")
	return nil
}

func (r *Router) groupCommand(ctx context.Context, c GroupConversation, from Sender, cmd Command) error {
	switch cmd {
	case CmdStart:
		return r.registerGroup(ctx, c, from, true)
	case CmdHelp:
		return r.say(ctx, c.ID, msgHelp, false)
	default:
		return r.say(ctx, c.ID, msgNotInGroup, false)
	}
}

// memberAdded records a join and, when the bot itself joined, registers the
// group for whoever added it. The join note is stored as the bot's own
// unmarked message so it shows up in summaries but never in the dialogue.
func (r *Router) memberAdded(ctx context.Context, c GroupConversation, ev Event) error {
	text := fmt.Sprintf("@%s added @%s to group %s", ev.Sender.Name, ev.NewMember, c.Title)
	if seen, err := r.recordAs(ctx, ev, Sender{Name: r.botName}, text); err != nil || seen {
		return err
	}
	if !strings.EqualFold(strings.TrimPrefix(ev.NewMember, "@"), r.botName) {
		return nil
	}
	return r.registerGroup(ctx, c, ev.Sender, false)
}

// registerGroup adds c to from's access list. loud reports the outcome in the
// group; otherwise only a newly registered chat is announced, privately.
func (r *Router) registerGroup(ctx context.Context, c GroupConversation, from Sender, loud bool) error {
	added, err := r.access.Register(ctx, from.ID, c.Title, c.ID)
	if errors.Is(err, access.ErrNotRegistered) {
		return r.say(ctx, c.ID, msgOnboarding(r.botName), false)
	}
	if err != nil {
		return err
	}
	if !added {
		if loud {
			return r.say(ctx, c.ID, msgGroupAlreadyThere, false)
		}
		return nil
	}

	logger.L.Info("group registered", "user_id", from.ID, "chat_id", c.ID, "title", c.Title)
	r.deliver(ctx, from.ID, fmt.Sprintf(msgGroupRegisteredForYou, c.Title), nil)
	if loud {
		return r.say(ctx, c.ID, msgGroupRegistered, false)
	}
	return nil
}
