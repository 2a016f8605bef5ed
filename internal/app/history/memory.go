/*
Package history provides implementations of the message persistence collaborator.

The in-memory store backs local development and tests; the Postgres store backs
real deployments.
*/
package history

import (
	"context"
	"sync"

	"chatflow/internal/app/message"
)

// MemoryStore keeps conversation history in process memory. Safe for concurrent
// use; contents are lost on restart.
type MemoryStore struct {
	mu sync.RWMutex

	// conversations maps conversation keys to messages in ascending Seq order.
	conversations map[string][]message.Message
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]message.Message),
	}
}

// Append records the message at the tail of its conversation. The router
// assigns strictly increasing sequence numbers under the conversation lock, so
// appending preserves Seq order.
func (s *MemoryStore) Append(_ context.Context, m *message.Message) error {
	key := message.ConversationKey(m.RoomID, m.SenderID, m.RecipientID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[key] = append(s.conversations[key], *m)
	return nil
}

// FetchHistory returns up to limit messages with Seq < beforeSeq in ascending
// Seq order. beforeSeq <= 0 selects the newest messages.
func (s *MemoryStore) FetchHistory(_ context.Context, conversationKey string, beforeSeq int64, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.conversations[conversationKey]

	end := len(all)
	if beforeSeq > 0 {
		for end > 0 && all[end-1].Seq >= beforeSeq {
			end--
		}
	}

	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]message.Message, end-start)
	copy(out, all[start:end])
	return out, nil
}
