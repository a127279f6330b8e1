// Package router dispatches incoming chat events: commands, the cancel token,
// the summarize and remove dialogs, and free chat with the model.
package router

import (
	"context"
	"errors"
	"sync"

	"github.com/comigor/summarizer-go/internal/access"
	"github.com/comigor/summarizer-go/internal/agent"
	"github.com/comigor/summarizer-go/internal/config"
	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/kv"
	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/metrics"
	"github.com/comigor/summarizer-go/internal/prompt"
)

// Kind distinguishes private chats from groups.
type Kind string

const (
	KindPrivate Kind = "private"
	KindGroup   Kind = "group"
)

// Conversation is either a PrivateConversation or a GroupConversation.
type Conversation interface {
	ChatID() int64
	Kind() Kind
	conversation()
}

// PrivateConversation is a one-to-one chat; its id equals the user's id.
type PrivateConversation struct {
	ID       int64
	Username string
}

func (c PrivateConversation) ChatID() int64 { return c.ID }
func (PrivateConversation) Kind() Kind      { return KindPrivate }
func (PrivateConversation) conversation()   {}

// GroupConversation is a group or supergroup.
type GroupConversation struct {
	ID    int64
	Title string
}

func (c GroupConversation) ChatID() int64 { return c.ID }
func (GroupConversation) Kind() Kind      { return KindGroup }
func (GroupConversation) conversation()   {}

// Sender identifies who wrote a message.
type Sender struct {
	ID   int64
	Name string
}

// Event is one incoming message.
type Event struct {
	Conversation Conversation
	Sender       Sender
	MessageID    int64
	Text         string
	// NewMember is the handle of a member just added to a group, if any.
	NewMember string
}

// Messenger delivers text to conversations.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (messageID int64, err error)
	SendMenu(ctx context.Context, chatID int64, text string, buttons []string) (messageID int64, err error)
	Edit(ctx context.Context, chatID, messageID int64, text string) error
}

// Router handles one event at a time per conversation.
type Router struct {
	botName    string
	maxCount   int
	defaultCnt int
	history    *history.Store
	access     *access.Store
	states     *stateStore
	agent      *agent.Agent
	out        Messenger
	metrics    *metrics.Metrics
	convLocks  sync.Map
}

func New(cfg config.Config, h *history.Store, a *access.Store, state kv.Store, ag *agent.Agent, out Messenger, m *metrics.Metrics) *Router {
	return &Router{
		botName:    cfg.Bot.Username,
		maxCount:   ag.MaxCount(),
		defaultCnt: ag.DefaultCount(),
		history:    h,
		access:     a,
		states:     &stateStore{kv: state, history: h},
		agent:      ag,
		out:        out,
		metrics:    m,
	}
}

func (r *Router) lock(chatID int64) func() {
	v, _ := r.convLocks.LoadOrStore(chatID, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Handle processes ev start to finish. The returned error is informational:
// the caller logs it and moves on to the next event.
func (r *Router) Handle(ctx context.Context, ev Event) error {
	if ev.Conversation == nil {
		return errors.New("router: event without conversation")
	}
	unlock := r.lock(ev.Conversation.ChatID())
	defer unlock()

	logger.L.Debug("event received",
		"chat_id", ev.Conversation.ChatID(),
		"kind", ev.Conversation.Kind(),
		"message_id", ev.MessageID,
		"sender", ev.Sender.Name,
	)

	switch c := ev.Conversation.(type) {
	case PrivateConversation:
		return r.handlePrivate(ctx, c, ev)
	case GroupConversation:
		return r.handleGroup(ctx, c, ev)
	default:
		return errors.New("router: unknown conversation kind")
	}
}

// record stores an incoming user message. seen is true when the message was
// already stored, i.e. the event is a redelivery.
func (r *Router) record(ctx context.Context, ev Event, text string) (seen bool, err error) {
	return r.recordAs(ctx, ev, ev.Sender, text)
}

func (r *Router) recordAs(ctx context.Context, ev Event, from Sender, text string) (seen bool, err error) {
	_, err = r.history.Append(ctx, history.Message{
		ChatID:     ev.Conversation.ChatID(),
		SenderID:   from.ID,
		SenderName: from.Name,
		Seq:        ev.MessageID,
		Text:       text,
	})
	if errors.Is(err, history.ErrDuplicateMessage) {
		logger.L.Info("duplicate event skipped", "chat_id", ev.Conversation.ChatID(), "message_id", ev.MessageID)
		return true, nil
	}
	return false, err
}

// deliver sends text, replacing it with a generic apology when the transport
// rejects it. It returns the delivered message id, or 0, and whether the
// apology went out instead of text.
func (r *Router) deliver(ctx context.Context, chatID int64, text string, menu []string) (id int64, apologized bool) {
	var err error
	if menu != nil {
		id, err = r.out.SendMenu(ctx, chatID, text, menu)
	} else {
		id, err = r.out.Send(ctx, chatID, text)
	}
	if err == nil {
		return id, false
	}
	r.metrics.ObserveDeliveryFailure()
	logger.L.Warn("delivery failed; sending apology", "chat_id", chatID, "error", err)
	id, err = r.out.Send(ctx, chatID, msgDeliveryApology)
	if err != nil {
		logger.L.Error("apology delivery failed", "chat_id", chatID, "error", err)
		return 0, true
	}
	return id, true
}

// say delivers text and stores it as the bot's message. answer marks it as
// part of the dialogue with the model.
func (r *Router) say(ctx context.Context, chatID int64, text string, answer bool) error {
	return r.sayWith(ctx, chatID, text, answer, nil)
}

func (r *Router) sayWith(ctx context.Context, chatID int64, text string, answer bool, menu []string) error {
	id, apologized := r.deliver(ctx, chatID, text, menu)
	stored := text
	switch {
	case apologized:
		stored = msgDeliveryApology
	case answer:
		stored = prompt.TagAnswer(text)
	}
	return r.remember(ctx, chatID, id, stored)
}

// remember stores a bot message under the id the transport gave it. Nothing
// is stored when nothing was delivered: a made-up id could later collide with
// a real incoming message.
func (r *Router) remember(ctx context.Context, chatID, seq int64, text string) error {
	if seq == 0 {
		logger.L.Warn("bot message not stored: no message id", "chat_id", chatID)
		return nil
	}
	_, err := r.history.Append(ctx, history.Message{ChatID: chatID, SenderName: r.botName, Seq: seq, Text: text})
	if errors.Is(err, history.ErrDuplicateMessage) {
		return nil
	}
	return err
}

// progress shows ".", ". .", ". . ." while the model works.
type progress struct {
	r      *Router
	chatID int64
	msgID  int64
	step   int
}

func (r *Router) startProgress(ctx context.Context, chatID int64) *progress {
	p := &progress{r: r, chatID: chatID}
	id, err := r.out.Send(ctx, chatID, progressSteps[0])
	if err != nil {
		logger.L.Debug("progress indicator unavailable", "chat_id", chatID, "error", err)
		return p
	}
	p.msgID = id
	return p
}

func (p *progress) advance(ctx context.Context) {
	if p.msgID == 0 || p.step+1 >= len(progressSteps) {
		return
	}
	p.step++
	if err := p.r.out.Edit(ctx, p.chatID, p.msgID, progressSteps[p.step]); err != nil {
		logger.L.Debug("progress edit failed", "chat_id", p.chatID, "error", err)
	}
}
