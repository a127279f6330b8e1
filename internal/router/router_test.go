package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/summarizer-go/internal/access"
	"github.com/comigor/summarizer-go/internal/agent"
	"github.com/comigor/summarizer-go/internal/config"
	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/kv"
	"github.com/comigor/summarizer-go/internal/llm"
	"github.com/comigor/summarizer-go/internal/prompt"
	"github.com/comigor/summarizer-go/internal/tokens"
)

const (
	bot     = "test_bot"
	userID  = int64(42)
	groupID = int64(-100)
)

type mockLLM struct {
	mu       sync.Mutex
	replies  []string
	block    bool
	requests []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, r)
	block := m.block
	var text string
	if len(m.replies) > 0 {
		text, m.replies = m.replies[0], m.replies[1:]
	}
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return openai.ChatCompletionResponse{}, ctx.Err()
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: text}}}}, nil
}

type sent struct {
	ChatID int64
	ID     int64
	Text   string
	Menu   []string
}

type fakeMessenger struct {
	nextID   int64
	sent     []sent
	edits    []string
	failures int
}

func (f *fakeMessenger) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	return f.SendMenu(ctx, chatID, text, nil)
}

func (f *fakeMessenger) SendMenu(_ context.Context, chatID int64, text string, buttons []string) (int64, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("message is too long")
	}
	f.nextID++
	f.sent = append(f.sent, sent{ChatID: chatID, ID: 1000 + f.nextID, Text: text, Menu: buttons})
	return 1000 + f.nextID, nil
}

func (f *fakeMessenger) Edit(_ context.Context, _, _ int64, text string) error {
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeMessenger) last() sent {
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	router  *Router
	store   kv.Store
	history *history.Store
	access  *access.Store
	llm     *mockLLM
	out     *fakeMessenger
	seq     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Config{
		Bot: config.BotConfig{Username: bot, SystemPrompt: "persona"},
		LLM: config.LLMConfig{Model: "gpt-3.5-turbo", MaxTokens: 500, Timeout: 200 * time.Millisecond, FallbackMessage: "sorry, try later"},
		Prompt: config.PromptConfig{
			SummaryMaxTokens:    3000,
			SummaryChunkChars:   100,
			DialogueMaxTokens:   3000,
			DialogueMaxTurns:    100,
			DefaultSummaryCount: 100,
			MaxSummaryCount:     1000,
		},
	}
	est, err := tokens.New(cfg.LLM.Model)
	require.NoError(t, err)

	store := kv.NewMemoryStore()
	h := history.NewStore(store, 1000, nil)
	a := access.NewStore(store)
	client := &mockLLM{}
	ag := agent.New(h, llm.NewGateway(client, cfg.LLM, nil), est, cfg, nil)
	out := &fakeMessenger{}
	return &fixture{
		router:  New(cfg, h, a, store, ag, out, nil),
		store:   store,
		history: h,
		access:  a,
		llm:     client,
		out:     out,
	}
}

func (f *fixture) private(t *testing.T, text string) {
	t.Helper()
	f.seq++
	err := f.router.Handle(context.Background(), Event{
		Conversation: PrivateConversation{ID: userID, Username: "alice"},
		Sender:       Sender{ID: userID, Name: "alice"},
		MessageID:    f.seq,
		Text:         text,
	})
	require.NoError(t, err)
}

func (f *fixture) group(t *testing.T, from Sender, text string) {
	t.Helper()
	f.seq++
	err := f.router.Handle(context.Background(), Event{
		Conversation: GroupConversation{ID: groupID, Title: "Team"},
		Sender:       from,
		MessageID:    f.seq,
		Text:         text,
	})
	require.NoError(t, err)
}

// registered gives alice an access list holding the group "Team" with some
// history in it.
func (f *fixture) registered(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.access.Create(ctx, userID)
	require.NoError(t, err)
	_, err = f.access.Register(ctx, userID, "Team", groupID)
	require.NoError(t, err)
	for i, l := range [][2]string{{"alice", "hi"}, {"bob", "yo"}, {"carol", "bye"}} {
		_, err := f.history.Append(ctx, history.Message{ChatID: groupID, Seq: int64(500 + i), SenderName: l[0], Text: l[1]})
		require.NoError(t, err)
	}
}

func (f *fixture) state(t *testing.T) State {
	t.Helper()
	st, err := f.router.states.get(context.Background(), userID)
	require.NoError(t, err)
	return st
}

func TestPrivate_CancelWithNothingPending(t *testing.T) {
	f := newFixture(t)
	f.private(t, "x")

	require.Equal(t, msgNothingToCancel, f.out.last().Text)
	require.Equal(t, StateIdle, f.state(t))
	require.Empty(t, f.llm.requests)

	h, err := f.history.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, []string{"x", msgNothingToCancel}, []string{h.Messages()[0].Text, h.Messages()[1].Text})
	require.Equal(t, 2, h.Len())
	_, err = f.access.Load(context.Background(), userID)
	require.ErrorIs(t, err, access.ErrNotRegistered)
}

func TestPrivate_StartGreetsOnceWithMenu(t *testing.T) {
	f := newFixture(t)
	f.private(t, "/start")
	require.Equal(t, msgWelcome, f.out.last().Text)
	require.Equal(t, MenuCommands, f.out.last().Menu)

	f.private(t, "/start")
	require.Equal(t, msgWelcomeBack, f.out.last().Text)

	list, err := f.access.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Zero(t, list.Len())
}

func TestPrivate_SummarizeLastMessagesOfGroup(t *testing.T) {
	f := newFixture(t)
	f.registered(t)
	f.llm.replies = []string{"they said goodbye"}

	f.private(t, "/sum_up")
	require.Equal(t, StateAwaitingSummaryArgs, f.state(t))
	require.Contains(t, f.out.last().Text, "Team")

	f.private(t, "team\n2")
	require.Equal(t, StateIdle, f.state(t))
	require.Len(t, f.llm.requests, 1)
	content := f.llm.requests[0].Messages[0].Content
	require.Contains(t, content, "@bob: yo\n@carol: bye")
	require.NotContains(t, content, "@alice: hi")

	require.Equal(t, "they said goodbye", f.out.last().Text)
	require.Equal(t, []string{". .", ". . ."}, f.out.edits)

	h, err := f.history.Load(context.Background(), userID)
	require.NoError(t, err)
	last, ok := history.Last(h)
	require.True(t, ok)
	require.Equal(t, prompt.AnswerMarker+"they said goodbye", last.Text)
	require.Equal(t, bot, last.SenderName)
	require.Equal(t, f.out.last().ID, last.Seq)
}

func TestPrivate_SummaryArgsValidation(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
		want  string
	}{
		{"zero count", "Team\n0", msgBadNumber},
		{"count above max", "Team\n1001", msgBadNumber},
		{"signed count", "Team\n+5", msgBadNumber},
		{"too many lines", "Team\n1\n2", msgBadFormat},
		{"unknown chat checked first", "Other\n1\n2", msgUnknownChatSummary},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.registered(t)
			f.private(t, "/sum_up")
			f.private(t, tc.input)

			require.Equal(t, tc.want, f.out.last().Text)
			require.Empty(t, f.llm.requests)
			require.Equal(t, StateIdle, f.state(t))
		})
	}
}

func TestPrivate_CancelPendingSummary(t *testing.T) {
	f := newFixture(t)
	f.registered(t)
	f.private(t, "/sum_up")
	f.private(t, "x")

	require.Equal(t, "Good, your command /sum_up was canceled 😌", f.out.last().Text)
	require.Equal(t, StateIdle, f.state(t))
}

func TestPrivate_CancelTokenIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	f.registered(t)
	f.private(t, "/remove_chat")
	f.private(t, "X")

	require.Equal(t, msgUnknownChatRemove, f.out.last().Text)
	require.Equal(t, StateIdle, f.state(t))
}

func TestPrivate_CommandSwitchesPendingDialog(t *testing.T) {
	f := newFixture(t)
	f.registered(t)
	f.private(t, "/sum_up")
	f.private(t, "/remove_chat")
	require.Equal(t, StateAwaitingRemoveTarget, f.state(t))

	f.private(t, "/help")
	require.Equal(t, StateIdle, f.state(t))
}

func TestPrivate_RemoveChatIgnoresCase(t *testing.T) {
	f := newFixture(t)
	f.registered(t)
	f.private(t, "/remove_chat")
	f.private(t, "TEAM")

	require.Equal(t, "Good, chat 'Team' was removed from your list 😄", f.out.last().Text)
	list, err := f.access.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Zero(t, list.Len())

	f.private(t, "/remove_chat")
	require.Equal(t, msgNoChats, f.out.last().Text)
	require.Equal(t, StateIdle, f.state(t))
}

func TestPrivate_UnregisteredUserIsOnboarded(t *testing.T) {
	f := newFixture(t)
	f.private(t, "/sum_up")

	require.Contains(t, f.out.last().Text, "https://t.me/"+bot)
	require.Equal(t, StateIdle, f.state(t))
}

func TestPrivate_ChatReplyStoredAsAnswer(t *testing.T) {
	f := newFixture(t)
	f.llm.replies = []string{prompt.AnswerMarker + "4"}
	f.private(t, "what is 2+2?")

	require.Len(t, f.llm.requests, 1)
	msgs := f.llm.requests[0].Messages
	require.Equal(t, "what is 2+2?", msgs[len(msgs)-1].Content)
	require.Equal(t, "4", f.out.last().Text)

	h, err := f.history.Load(context.Background(), userID)
	require.NoError(t, err)
	stored := h.Messages()
	require.Equal(t, prompt.AskMarker+"what is 2+2?", stored[0].Text)
	require.Equal(t, prompt.AnswerMarker+"4", stored[1].Text)
}

func TestPrivate_TimeoutRepliesWithFallback(t *testing.T) {
	f := newFixture(t)
	f.llm.block = true
	f.private(t, "are you there?")

	require.Equal(t, "sorry, try later", f.out.last().Text)
	h, err := f.history.Load(context.Background(), userID)
	require.NoError(t, err)
	last, _ := history.Last(h)
	require.Equal(t, prompt.AnswerMarker+"sorry, try later", last.Text)
}

func TestPrivate_DuplicateEventHandledOnce(t *testing.T) {
	f := newFixture(t)
	ev := Event{
		Conversation: PrivateConversation{ID: userID},
		Sender:       Sender{ID: userID, Name: "alice"},
		MessageID:    7,
		Text:         "/help",
	}
	require.NoError(t, f.router.Handle(context.Background(), ev))
	require.NoError(t, f.router.Handle(context.Background(), ev))
	require.Len(t, f.out.sent, 1)
}

func TestPrivate_DeliveryFailureSendsApology(t *testing.T) {
	f := newFixture(t)
	f.out.failures = 1
	f.private(t, "/help")

	require.Len(t, f.out.sent, 1)
	require.Equal(t, msgDeliveryApology, f.out.last().Text)

	h, err := f.history.Load(context.Background(), userID)
	require.NoError(t, err)
	last, ok := history.Last(h)
	require.True(t, ok)
	require.Equal(t, msgDeliveryApology, last.Text)
	require.Equal(t, f.out.last().ID, last.Seq)
}

func TestPrivate_StateInferredFromLegacyHistory(t *testing.T) {
	f := newFixture(t)
	f.registered(t)
	f.llm.replies = []string{"summary"}
	_, err := f.history.Append(context.Background(), history.Message{ChatID: userID, SenderID: userID, SenderName: "alice", Seq: 1, Text: "/sum_up"})
	require.NoError(t, err)
	f.seq = 1

	f.private(t, "Team")

	require.Len(t, f.llm.requests, 1)
	require.Equal(t, "summary", f.out.last().Text)

	data, err := f.store.Get(context.Background(), stateName(userID))
	require.NoError(t, err)
	var rec stateRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, StateIdle, rec.State)
}

func TestGroup_MentionGetsReply(t *testing.T) {
	f := newFixture(t)
	f.llm.replies = []string{"hello there"}
	f.group(t, Sender{ID: 7, Name: "bob"}, "just chatting")
	require.Empty(t, f.llm.requests)

	f.group(t, Sender{ID: 7, Name: "bob"}, "hey @Test_Bot how are you")
	require.Len(t, f.llm.requests, 1)
	require.Equal(t, groupID, f.out.last().ChatID)
	require.Equal(t, "hello there", f.out.last().Text)
}

func TestGroup_SummaryCommandUnavailable(t *testing.T) {
	f := newFixture(t)
	f.group(t, Sender{ID: userID, Name: "alice"}, "/sum_up@test_bot")
	require.Equal(t, msgNotInGroup, f.out.last().Text)
}

func TestGroup_StartRegistersForSender(t *testing.T) {
	f := newFixture(t)
	_, err := f.access.Create(context.Background(), userID)
	require.NoError(t, err)

	f.group(t, Sender{ID: userID, Name: "alice"}, "/start")
	require.Equal(t, msgGroupRegistered, f.out.last().Text)
	require.Equal(t, userID, f.out.sent[0].ChatID)

	f.group(t, Sender{ID: userID, Name: "alice"}, "/start")
	require.Equal(t, msgGroupAlreadyThere, f.out.last().Text)

	f.group(t, Sender{ID: 9, Name: "mallory"}, "/start")
	require.Contains(t, f.out.last().Text, "https://t.me/"+bot)
}

func TestGroup_BotAddedRegistersForAdder(t *testing.T) {
	f := newFixture(t)
	_, err := f.access.Create(context.Background(), userID)
	require.NoError(t, err)

	f.seq++
	require.NoError(t, f.router.Handle(context.Background(), Event{
		Conversation: GroupConversation{ID: groupID, Title: "Team"},
		Sender:       Sender{ID: userID, Name: "alice"},
		MessageID:    f.seq,
		NewMember:    bot,
	}))

	list, err := f.access.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, []string{"Team"}, list.Names())
	require.Equal(t, userID, f.out.last().ChatID)

	h, err := f.history.Load(context.Background(), groupID)
	require.NoError(t, err)
	last, _ := history.Last(h)
	require.Equal(t, "@alice added @test_bot to group Team", last.Text)
	require.Equal(t, bot, last.SenderName)

	f.llm.replies = []string{"hi alice"}
	f.group(t, Sender{ID: userID, Name: "alice"}, "@test_bot hello")
	require.Len(t, f.llm.requests, 1)
	msgs := f.llm.requests[0].Messages
	require.Len(t, msgs, 2)
	require.Equal(t, "@test_bot hello", msgs[1].Content)
}

func TestGroup_OtherHandleIsNotAMention(t *testing.T) {
	f := newFixture(t)
	f.group(t, Sender{ID: 7, Name: "bob"}, "ask @test_bot_helper about it")

	require.Empty(t, f.llm.requests)
	require.Empty(t, f.out.sent)
}

func TestParseCommand(t *testing.T) {
	for in, want := range map[string]Command{
		"/start":               CmdStart,
		"/SUM_UP":              CmdSummarize,
		"/help@test_bot":       CmdHelp,
		"/show_chats please":   CmdShowChats,
		"/remove_chat@TEST_BOT": CmdRemoveChat,
	} {
		got, ok := parseCommand(in, bot)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "hello", "/unknown", "/help@other_bot", "x"} {
		_, ok := parseCommand(in, bot)
		require.False(t, ok, in)
	}
}

func TestParseCount(t *testing.T) {
	n, ok := parseCount(" 15 ", 100)
	require.True(t, ok)
	require.Equal(t, 15, n)

	for _, in := range []string{"", "0", "-1", "1e2", "101", "١٢"} {
		_, ok := parseCount(in, 100)
		require.False(t, ok, in)
	}
}
