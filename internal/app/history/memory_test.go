package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow/internal/app/message"
)

func seedConversation(t *testing.T, s *MemoryStore, roomID string, count int) {
	t.Helper()

	for i := 1; i <= count; i++ {
		err := s.Append(context.Background(), &message.Message{
			ID:       fmt.Sprintf("m%d", i),
			RoomID:   roomID,
			SenderID: "alice",
			Content:  fmt.Sprintf("message %d", i),
			Kind:     message.KindText,
			Seq:      int64(i),
		})
		require.NoError(t, err)
	}
}

func TestFetchHistory_NewestPage(t *testing.T) {
	s := NewMemoryStore()
	seedConversation(t, s, "r1", 10)

	page, err := s.FetchHistory(context.Background(), "r1", 0, 3)
	require.NoError(t, err)

	require.Len(t, page, 3)
	assert.Equal(t, int64(8), page[0].Seq)
	assert.Equal(t, int64(10), page[2].Seq, "pages come back in ascending order")
}

func TestFetchHistory_PaginatesBackwards(t *testing.T) {
	s := NewMemoryStore()
	seedConversation(t, s, "r1", 10)

	newest, err := s.FetchHistory(context.Background(), "r1", 0, 4)
	require.NoError(t, err)
	require.Len(t, newest, 4)

	older, err := s.FetchHistory(context.Background(), "r1", newest[0].Seq, 4)
	require.NoError(t, err)
	require.Len(t, older, 4)
	assert.Equal(t, int64(3), older[0].Seq)
	assert.Equal(t, int64(6), older[3].Seq)
}

func TestFetchHistory_EmptyConversation(t *testing.T) {
	s := NewMemoryStore()

	page, err := s.FetchHistory(context.Background(), "nothing-here", 0, 50)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestFetchHistory_BeyondOldest(t *testing.T) {
	s := NewMemoryStore()
	seedConversation(t, s, "r1", 3)

	page, err := s.FetchHistory(context.Background(), "r1", 1, 50)
	require.NoError(t, err)
	assert.Empty(t, page, "nothing precedes the first message")
}

func TestFetchHistory_DefaultLimit(t *testing.T) {
	s := NewMemoryStore()
	seedConversation(t, s, "r1", 60)

	page, err := s.FetchHistory(context.Background(), "r1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page, 50)
}

func TestConversationsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	seedConversation(t, s, "r1", 2)
	seedConversation(t, s, "r2", 3)

	p1, err := s.FetchHistory(context.Background(), "r1", 0, 50)
	require.NoError(t, err)
	p2, err := s.FetchHistory(context.Background(), "r2", 0, 50)
	require.NoError(t, err)

	assert.Len(t, p1, 2)
	assert.Len(t, p2, 3)
}
