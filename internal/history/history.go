// Package history is the append-only, size-bounded message log kept per
// conversation. Every read-modify-write of one conversation is serialized;
// different conversations proceed independently.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/comigor/summarizer-go/internal/kv"
	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/metrics"
)

var (
	// ErrNotFound means nothing was ever stored for the conversation.
	ErrNotFound = errors.New("history: conversation not found")
	// ErrDuplicateMessage means the sequence id is already stored.
	ErrDuplicateMessage = errors.New("history: duplicate message")
)

// DefaultMaxMessages is the retention bound when none is configured.
const DefaultMaxMessages = 10000

// Store persists histories in a kv.Store under history/<chatID>.
type Store struct {
	kv          kv.Store
	maxMessages int
	metrics     *metrics.Metrics

	locks sync.Map // chatID -> *sync.Mutex
}

func NewStore(s kv.Store, maxMessages int, m *metrics.Metrics) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Store{kv: s, maxMessages: maxMessages, metrics: m}
}

func recordName(chatID int64) string {
	return kv.Name("history", strconv.FormatInt(chatID, 10))
}

func (s *Store) lock(chatID int64) func() {
	v, _ := s.locks.LoadOrStore(chatID, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Append stores msg in its conversation's history and returns the result.
func (s *Store) Append(ctx context.Context, msg Message) (*History, error) {
	unlock := s.lock(msg.ChatID)
	defer unlock()

	h, err := s.load(ctx, msg.ChatID)
	if errors.Is(err, ErrNotFound) {
		h, err = &History{}, nil
	}
	if err != nil {
		return nil, err
	}

	evicted, err := h.add(msg, s.maxMessages)
	if err != nil {
		return h, err
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("history: encode %d: %w", msg.ChatID, err)
	}
	if err := s.kv.Put(ctx, recordName(msg.ChatID), data); err != nil {
		return nil, fmt.Errorf("history: persist %d: %w", msg.ChatID, err)
	}
	s.metrics.ObserveAppend(evicted > 0)
	logger.L.Debug("message stored", "chat_id", msg.ChatID, "seq", msg.Seq, "size", h.Len(), "evicted", evicted)
	return h, nil
}

// Load returns the conversation's history, or ErrNotFound.
func (s *Store) Load(ctx context.Context, chatID int64) (*History, error) {
	unlock := s.lock(chatID)
	defer unlock()
	return s.load(ctx, chatID)
}

// Clear drops the conversation's history. Clearing a missing history is not
// an error.
func (s *Store) Clear(ctx context.Context, chatID int64) error {
	unlock := s.lock(chatID)
	defer unlock()
	if err := s.kv.Delete(ctx, recordName(chatID)); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("history: delete %d: %w", chatID, err)
	}
	logger.L.Info("history cleared", "chat_id", chatID)
	return nil
}

func (s *Store) load(ctx context.Context, chatID int64) (*History, error) {
	data, err := s.kv.Get(ctx, recordName(chatID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %d: %w", chatID, err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("history: decode %d: %w", chatID, err)
	}
	return &h, nil
}
