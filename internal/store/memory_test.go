package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foneai-widget/internal/chat"
)

func msg(text string, role chat.Role) chat.Message {
	return chat.Message{Text: text, Role: role, CreatedAt: time.UnixMilli(1_700_000_000_000)}
}

func TestMemoryStoreAppendAndRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	require.NoError(t, s.Append(ctx, "a", msg("hi", chat.RoleUser)))
	require.NoError(t, s.Append(ctx, "a", msg("hello", chat.RoleAI)))
	require.NoError(t, s.Append(ctx, "b", msg("other", chat.RoleUser)))

	got, err := s.Messages(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Text)
	assert.Equal(t, "hello", got[1].Text)

	other, err := s.Messages(ctx, "b")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "other", other[0].Text)
}

func TestMemoryStoreMessagesIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.Append(ctx, "a", msg("hi", chat.RoleUser)))

	got, _ := s.Messages(ctx, "a")
	got[0].Text = "changed"

	again, _ := s.Messages(ctx, "a")
	assert.Equal(t, "hi", again[0].Text)
}

func TestMemoryStoreRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	for _, text := range []string{"1", "2", "3"} {
		require.NoError(t, s.Append(ctx, "a", msg(text, chat.RoleUser)))
	}
	got, _ := s.Messages(ctx, "a")
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Text)
	assert.Equal(t, "3", got[1].Text)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.Append(ctx, "a", msg("hi", chat.RoleUser)))
	require.NoError(t, s.Delete(ctx, "a"))

	got, err := s.Messages(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got)
}
