package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtable-ai/roundtable/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	s := NewRedisStore(cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_Ping(t *testing.T) {
	t.Parallel()
	s := newTestRedisStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestRedisStore_ConversationRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestRedisStore(t)
	ctx := context.Background()

	conv := &types.Conversation{
		Title:          "brainstorm",
		ParticipantIDs: []string{"alpha", "beta"},
		IsActive:       true,
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "brainstorm", got.Title)
	assert.Equal(t, []string{"alpha", "beta"}, got.ParticipantIDs)

	assert.ErrorIs(t, s.CreateConversation(ctx, &types.Conversation{ID: conv.ID}), ErrAlreadyExists)

	got.Instructions = "focus on tradeoffs"
	require.NoError(t, s.UpdateConversation(ctx, got))

	updated, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "focus on tradeoffs", updated.Instructions)

	list, err := s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRedisStore_GetConversation_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestRedisStore(t)
	_, err := s.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_AppendAndHistoryPreserveOrder(t *testing.T) {
	t.Parallel()
	s := newTestRedisStore(t)
	ctx := context.Background()

	conv := &types.Conversation{ID: "c1"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	contents := []string{"first", "second", "third"}
	for i, c := range contents {
		msg, err := s.Append(ctx, "c1", "alpha", c, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), msg.Seq)
	}

	history, err := s.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, c := range contents {
		assert.Equal(t, c, history[i].Content)
		assert.Equal(t, int64(i+1), history[i].Seq)
	}
}

func TestRedisStore_Append_UnknownConversation(t *testing.T) {
	t.Parallel()
	s := newTestRedisStore(t)
	_, err := s.Append(context.Background(), "ghost", "alpha", "x", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.History(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Personalities(t *testing.T) {
	t.Parallel()
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePersonality(ctx, types.Personality{NameID: "muse", Provider: "mistral", Model: "mistral-large"}))

	p, err := s.GetPersonality(ctx, "muse")
	require.NoError(t, err)
	assert.Equal(t, "mistral-large", p.Model)

	list, err := s.ListPersonalities(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeletePersonality(ctx, "muse"))
	_, err = s.GetPersonality(ctx, "muse")
	assert.ErrorIs(t, err, ErrNotFound)
}
