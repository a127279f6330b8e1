package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/router"
)

// Handler consumes chat events.
type Handler interface {
	Handle(ctx context.Context, ev router.Event) error
}

// Poller feeds updates from getUpdates to a Handler, one at a time.
type Poller struct {
	client  *Client
	handler Handler
	botName string
	timeout time.Duration
	backoff time.Duration
	offset  int64
}

func NewPoller(c *Client, h Handler, botName string, pollTimeout time.Duration) *Poller {
	return &Poller{
		client:  c,
		handler: h,
		botName: botName,
		timeout: pollTimeout,
		backoff: 3 * time.Second,
	}
}

// Run polls until ctx is canceled. Transport errors are logged and retried;
// handler errors are logged and the update is acknowledged.
func (p *Poller) Run(ctx context.Context) error {
	logger.L.Info("telegram polling started", "bot", p.botName)
	for {
		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.L.Warn("getUpdates failed", "error", err, "retry_in", p.backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}

		for _, u := range updates {
			p.offset = u.UpdateID + 1
			ev, ok := p.toEvent(u)
			if !ok {
				continue
			}
			if err := p.handler.Handle(ctx, ev); err != nil {
				logger.L.Error("event handling failed", "update_id", u.UpdateID, "chat_id", ev.Conversation.ChatID(), "error", err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// toEvent converts an update. Edits, channel posts and messages without
// text are dropped.
func (p *Poller) toEvent(u Update) (router.Event, bool) {
	m := u.Message
	if m == nil || m.From == nil {
		return router.Event{}, false
	}

	var conv router.Conversation
	switch m.Chat.Type {
	case "private":
		conv = router.PrivateConversation{ID: m.Chat.ID, Username: m.Chat.Username}
	case "group", "supergroup":
		conv = router.GroupConversation{ID: m.Chat.ID, Title: m.Chat.Title}
	default:
		return router.Event{}, false
	}

	ev := router.Event{
		Conversation: conv,
		Sender:       router.Sender{ID: m.From.ID, Name: m.From.Handle()},
		MessageID:    m.MessageID,
		Text:         m.Text,
	}
	if len(m.NewChatMembers) > 0 {
		ev.NewMember = p.joined(m.NewChatMembers)
		return ev, true
	}
	return ev, m.Text != ""
}

// joined picks the one member a join event is recorded for, preferring the
// bot itself so that its own arrival is never missed.
func (p *Poller) joined(members []User) string {
	for _, u := range members {
		if u.IsBot && strings.EqualFold(u.Username, p.botName) {
			return u.Username
		}
	}
	return members[0].Handle()
}
