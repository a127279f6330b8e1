package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/summarizer-go/internal/kv"
)

func TestStore_UnregisteredUser(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())

	_, err := s.Load(ctx, 1)
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = s.Register(ctx, 1, "Foo", -100)
	require.ErrorIs(t, err, ErrNotRegistered)

	_, _, err = s.Remove(ctx, 1, "Foo")
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestStore_CaseInsensitiveLookup(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())

	created, err := s.Create(ctx, 1)
	require.NoError(t, err)
	require.True(t, created)
	created, err = s.Create(ctx, 1)
	require.NoError(t, err)
	require.False(t, created, "second /start keeps the existing list")

	added, err := s.Register(ctx, 1, "Foo", -100)
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.Register(ctx, 1, "FOO", -100)
	require.NoError(t, err)
	require.False(t, added)

	l, err := s.Load(ctx, 1)
	require.NoError(t, err)
	for _, q := range []string{"foo", "FOO", " Foo "} {
		name, id, ok := l.Lookup(q)
		require.True(t, ok, q)
		require.Equal(t, "Foo", name)
		require.Equal(t, int64(-100), id)
	}
}

func TestStore_RemoveKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())
	_, err := s.Create(ctx, 9)
	require.NoError(t, err)
	for i, name := range []string{"Alpha", "Beta", "Gamma"} {
		_, err := s.Register(ctx, 9, name, int64(-i-1))
		require.NoError(t, err)
	}

	removed, ok, err := s.Remove(ctx, 9, "beta")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Beta", removed)

	_, ok, err = s.Remove(ctx, 9, "delta")
	require.NoError(t, err)
	require.False(t, ok)

	l, err := s.Load(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, []string{"Alpha", "Gamma"}, l.Names())
}
