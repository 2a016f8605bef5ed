package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow/internal/app/event"
	"chatflow/internal/app/user"
	"chatflow/internal/pkg/logx"
)

// newQueueOnlyClient builds a client with just an outbound queue, enough to
// exercise the hub's routing without a real WebSocket connection.
func newQueueOnlyClient(sessionID, userID string) *Client {
	return &Client{
		sessionID: sessionID,
		connKey:   "conn-" + sessionID,
		usr:       user.User{ID: userID},
		send:      make(chan []byte, 4),
		logger:    *logx.Logger(),
	}
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case payload := <-c.send:
			out = append(out, payload)
		default:
			return out
		}
	}
}

func TestPushUser_ReachesEverySessionOfUser(t *testing.T) {
	h := NewHub()

	phone := newQueueOnlyClient("s1", "alice")
	laptop := newQueueOnlyClient("s2", "alice")
	other := newQueueOnlyClient("s3", "bob")
	h.Attach(phone)
	h.Attach(laptop)
	h.Attach(other)

	h.PushUser("alice", event.Event{Type: event.TypePresenceChanged, Payload: map[string]any{"userId": "x"}})

	assert.Len(t, drain(phone), 1)
	assert.Len(t, drain(laptop), 1)
	assert.Empty(t, drain(other))
}

func TestPushUser_UnknownUserIsSilentDrop(t *testing.T) {
	h := NewHub()

	// Must not panic or block.
	h.PushUser("nobody", event.Event{Type: event.TypeMessagePosted})
}

func TestPushSession_TargetsOneSession(t *testing.T) {
	h := NewHub()

	phone := newQueueOnlyClient("s1", "alice")
	laptop := newQueueOnlyClient("s2", "alice")
	h.Attach(phone)
	h.Attach(laptop)

	h.PushSession("s2", event.Event{Type: event.TypeRoomJoined})

	assert.Empty(t, drain(phone))
	require.Len(t, drain(laptop), 1)

	// Unknown session is a silent drop.
	h.PushSession("s9", event.Event{Type: event.TypeRoomJoined})
}

func TestPush_SerializesEventEnvelope(t *testing.T) {
	h := NewHub()

	c := newQueueOnlyClient("s1", "alice")
	h.Attach(c)

	h.PushUser("alice", event.Event{Type: event.TypeTypingChanged, Payload: map[string]string{"roomId": "r1"}})

	payloads := drain(c)
	require.Len(t, payloads, 1)

	var decoded struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(payloads[0], &decoded))
	assert.Equal(t, "typing-changed", decoded.Type)
	assert.JSONEq(t, `{"roomId":"r1"}`, string(decoded.Payload))
}

func TestPushUser_FullQueueDropsForThatSessionOnly(t *testing.T) {
	h := NewHub()

	slow := newQueueOnlyClient("s1", "alice")
	fast := newQueueOnlyClient("s2", "alice")
	h.Attach(slow)
	h.Attach(fast)

	// Fill the slow session's queue.
	for i := 0; i < cap(slow.send); i++ {
		slow.enqueue([]byte("backlog"))
	}

	h.PushUser("alice", event.Event{Type: event.TypeMessagePosted})

	assert.Len(t, drain(slow), cap(slow.send), "overflowing event was dropped")
	assert.Len(t, drain(fast), 1, "the healthy session still receives it")
}

func TestDetach_RemovesOnlyTheGivenClient(t *testing.T) {
	h := NewHub()

	phone := newQueueOnlyClient("s1", "alice")
	laptop := newQueueOnlyClient("s2", "alice")
	h.Attach(phone)
	h.Attach(laptop)
	require.Equal(t, 2, h.ConnectedSessions())

	h.Detach(phone)
	assert.Equal(t, 1, h.ConnectedSessions())

	h.PushUser("alice", event.Event{Type: event.TypeMessagePosted})
	assert.Empty(t, drain(phone))
	assert.Len(t, drain(laptop), 1)

	// Detaching twice is a no-op.
	h.Detach(phone)
	assert.Equal(t, 1, h.ConnectedSessions())
}

func TestEnqueue_ClosedQueueDoesNotPanic(t *testing.T) {
	c := newQueueOnlyClient("s1", "alice")
	c.closeSend()

	// Sending to a closed client must be absorbed, not propagated.
	c.enqueue([]byte("late event"))
}
