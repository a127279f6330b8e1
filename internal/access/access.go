// Package access records which group chats each user may summarize.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/comigor/summarizer-go/internal/kv"
)

// ErrNotRegistered means the user never ran /start in a private chat.
var ErrNotRegistered = errors.New("access: user is not registered")

// List maps chat display names to chat ids, in registration order.
type List struct {
	chats kv.Ordered[int64]
}

func (l *List) Len() int { return l.chats.Len() }

// Names returns the registered chat names in registration order.
func (l *List) Names() []string { return l.chats.Keys() }

// Lookup finds a chat by name, ignoring case.
func (l *List) Lookup(name string) (canonical string, chatID int64, ok bool) {
	name = strings.TrimSpace(name)
	l.chats.Range(func(k string, id int64) bool {
		if strings.EqualFold(k, name) {
			canonical, chatID, ok = k, id, true
			return false
		}
		return true
	})
	return canonical, chatID, ok
}

func (l *List) MarshalJSON() ([]byte, error)     { return l.chats.MarshalJSON() }
func (l *List) UnmarshalJSON(data []byte) error { return l.chats.UnmarshalJSON(data) }

// Store keeps one List per user under access/<userID>.
type Store struct {
	kv    kv.Store
	locks sync.Map
}

func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

func recordName(userID int64) string {
	return kv.Name("access", strconv.FormatInt(userID, 10))
}

func (s *Store) lock(userID int64) func() {
	v, _ := s.locks.LoadOrStore(userID, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Load returns the user's list or ErrNotRegistered.
func (s *Store) Load(ctx context.Context, userID int64) (*List, error) {
	unlock := s.lock(userID)
	defer unlock()
	return s.load(ctx, userID)
}

// Create gives the user an empty list. created is false when one exists.
func (s *Store) Create(ctx context.Context, userID int64) (created bool, err error) {
	unlock := s.lock(userID)
	defer unlock()

	_, err = s.load(ctx, userID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotRegistered) {
		return false, err
	}
	return true, s.save(ctx, userID, &List{})
}

// Register adds chat name -> chatID to the user's list. added is false when a
// chat with that name is already there.
func (s *Store) Register(ctx context.Context, userID int64, name string, chatID int64) (added bool, err error) {
	unlock := s.lock(userID)
	defer unlock()

	l, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if _, _, ok := l.Lookup(name); ok {
		return false, nil
	}
	l.chats.Set(name, chatID)
	return true, s.save(ctx, userID, l)
}

// Remove deletes the chat matching name (case-insensitive) and returns its
// stored name. ok is false when nothing matched.
func (s *Store) Remove(ctx context.Context, userID int64, name string) (removed string, ok bool, err error) {
	unlock := s.lock(userID)
	defer unlock()

	l, err := s.load(ctx, userID)
	if err != nil {
		return "", false, err
	}
	removed, _, ok = l.Lookup(name)
	if !ok {
		return "", false, nil
	}
	l.chats.Delete(removed)
	return removed, true, s.save(ctx, userID, l)
}

func (s *Store) load(ctx context.Context, userID int64) (*List, error) {
	data, err := s.kv.Get(ctx, recordName(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("access: read %d: %w", userID, err)
	}
	var l List
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("access: decode %d: %w", userID, err)
	}
	return &l, nil
}

func (s *Store) save(ctx context.Context, userID int64, l *List) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("access: encode %d: %w", userID, err)
	}
	if err := s.kv.Put(ctx, recordName(userID), data); err != nil {
		return fmt.Errorf("access: persist %d: %w", userID, err)
	}
	return nil
}
