package history

import (
	"strconv"
	"strings"

	"github.com/comigor/summarizer-go/internal/kv"
)

// Message is one stored chat message. Seq is the map key in the persisted
// record, so it is not repeated in the JSON body.
type Message struct {
	ChatID     int64  `json:"chat_id"`
	SenderID   int64  `json:"user_id"`
	SenderName string `json:"username"`
	Seq        int64  `json:"-"`
	Text       string `json:"message_text"`
}

// IsFromBot reports whether the message was sent by the bot itself.
func (m Message) IsFromBot(botName string) bool {
	return strings.EqualFold(m.SenderName, botName)
}

// History is a conversation's messages in arrival order.
type History struct {
	entries kv.Ordered[Message]
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return h.entries.Len()
}

// Messages returns every message, oldest first.
func (h *History) Messages() []Message {
	return h.Tail(h.Len())
}

// Tail returns the last k messages, oldest first. k larger than the history
// returns all of it.
func (h *History) Tail(k int) []Message {
	n := h.Len()
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	out := make([]Message, 0, k)
	skip := n - k
	h.entries.Range(func(_ string, m Message) bool {
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, m)
		return true
	})
	return out
}

// Last returns the most recently inserted message.
func Last(h *History) (Message, bool) {
	if h == nil {
		return Message{}, false
	}
	_, m, ok := h.entries.Last()
	return m, ok
}

// add inserts m, evicting the oldest entries first so that at most max remain.
func (h *History) add(m Message, max int) (evicted int, err error) {
	key := strconv.FormatInt(m.Seq, 10)
	if h.entries.Has(key) {
		return 0, ErrDuplicateMessage
	}
	for max > 0 && h.entries.Len() >= max {
		h.entries.PopFirst()
		evicted++
	}
	h.entries.Set(key, m)
	return evicted, nil
}

func (h *History) MarshalJSON() ([]byte, error) {
	return h.entries.MarshalJSON()
}

func (h *History) UnmarshalJSON(data []byte) error {
	if err := h.entries.UnmarshalJSON(data); err != nil {
		return err
	}
	var restored kv.Ordered[Message]
	h.entries.Range(func(key string, m Message) bool {
		m.Seq, _ = strconv.ParseInt(key, 10, 64)
		restored.Set(key, m)
		return true
	})
	h.entries = restored
	return nil
}
