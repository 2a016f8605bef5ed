package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow/internal/app/event"
	"chatflow/internal/app/room"
	"chatflow/internal/app/session"
	"chatflow/internal/app/user"
)

// capturePusher records every pushed event per user.
type capturePusher struct {
	mu     sync.Mutex
	byUser map[string][]event.Event
}

func newCapturePusher() *capturePusher {
	return &capturePusher{byUser: make(map[string][]event.Event)}
}

func (p *capturePusher) PushUser(userID string, evt event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byUser[userID] = append(p.byUser[userID], evt)
}

func (p *capturePusher) PushSession(sessionID string, evt event.Event) {}

func (p *capturePusher) eventsFor(userID string) []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.byUser[userID]...)
}

func (p *capturePusher) lastOfType(userID string, typ event.Type) (event.Event, bool) {
	events := p.eventsFor(userID)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i], true
		}
	}
	return event.Event{}, false
}

// fakeConn satisfies session.Conn.
type fakeConn struct{ key string }

func (c *fakeConn) Key() string         { return c.key }
func (c *fakeConn) Close(reason string) {}

func newTestBroadcaster(t *testing.T) (*Broadcaster, *session.Registry, *room.Directory, *capturePusher) {
	t.Helper()

	registry := session.NewRegistry(time.Minute, 10*time.Minute)
	directory := room.NewDirectory()
	pusher := newCapturePusher()
	b := NewBroadcaster(registry, directory, pusher, 4*time.Second)
	return b, registry, directory, pusher
}

func TestTypingSignal_StartAndStop(t *testing.T) {
	b, _, directory, pusher := newTestBroadcaster(t)

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice", "bob"}})
	require.Nil(t, customErr)

	b.TypingSignal("r1", "alice", "Alice", true)

	evt, ok := pusher.lastOfType("bob", event.TypeTypingChanged)
	require.True(t, ok)
	change := evt.Payload.(TypingChange)
	require.Len(t, change.Typing, 1)
	assert.Equal(t, "alice", change.Typing[0].UserID)
	assert.Equal(t, "Alice", change.Typing[0].Username)

	b.TypingSignal("r1", "alice", "Alice", false)

	evt, ok = pusher.lastOfType("bob", event.TypeTypingChanged)
	require.True(t, ok)
	assert.Empty(t, evt.Payload.(TypingChange).Typing)
	assert.Empty(t, b.CurrentTyping("r1"))
}

func TestTypingSignal_RefreshDoesNotReannounce(t *testing.T) {
	b, _, directory, pusher := newTestBroadcaster(t)

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice", "bob"}})
	require.Nil(t, customErr)

	b.TypingSignal("r1", "alice", "Alice", true)
	before := len(pusher.eventsFor("bob"))

	// Refreshing an existing entry extends the expiry silently.
	b.TypingSignal("r1", "alice", "Alice", true)
	assert.Len(t, pusher.eventsFor("bob"), before)
	assert.Len(t, b.CurrentTyping("r1"), 1)
}

func TestTypingSweep_ExpiresStaleEntries(t *testing.T) {
	b, _, directory, pusher := newTestBroadcaster(t)

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice", "bob"}})
	require.Nil(t, customErr)

	b.TypingSignal("r1", "alice", "Alice", true)

	b.sweepOnce(time.Now())
	assert.Len(t, b.CurrentTyping("r1"), 1, "entry survives within its expiry window")

	b.sweepOnce(time.Now().Add(5 * time.Second))
	assert.Empty(t, b.CurrentTyping("r1"))

	evt, ok := pusher.lastOfType("bob", event.TypeTypingChanged)
	require.True(t, ok)
	assert.Empty(t, evt.Payload.(TypingChange).Typing, "expiry is announced as a typing delta")
}

func TestCurrentTyping_ExcludesExpiredEntriesBeforeSweep(t *testing.T) {
	b, _, directory, _ := newTestBroadcaster(t)

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice", "bob"}})
	require.Nil(t, customErr)

	b.TypingSignal("r1", "alice", "Alice", true)

	// Age the entry past its expiry without running the sweep.
	b.mu.Lock()
	e := b.typing["r1"]["alice"]
	e.expiresAt = time.Now().Add(-time.Second)
	b.typing["r1"]["alice"] = e
	b.mu.Unlock()

	assert.Empty(t, b.CurrentTyping("r1"), "reads respect expiry even between sweeps")
}

func TestPresenceChange_FannedOutToRoomMates(t *testing.T) {
	b, registry, directory, pusher := newTestBroadcaster(t)
	_ = b

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice", "bob"}})
	require.Nil(t, customErr)

	_, regErr := registry.Register(user.User{ID: "alice", Username: "Alice"}, &fakeConn{key: "c1"})
	require.Nil(t, regErr)

	evt, ok := pusher.lastOfType("bob", event.TypePresenceChanged)
	require.True(t, ok)
	change := evt.Payload.(PresenceChange)
	assert.Equal(t, "alice", change.UserID)
	assert.True(t, change.Online)

	// The affected user is not notified about themselves.
	_, ok = pusher.lastOfType("alice", event.TypePresenceChanged)
	assert.False(t, ok)
}

func TestDisconnect_ClearsTypingAndGoesOffline(t *testing.T) {
	b, registry, directory, pusher := newTestBroadcaster(t)

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice", "bob"}})
	require.Nil(t, customErr)

	sessID, regErr := registry.Register(user.User{ID: "alice", Username: "Alice"}, &fakeConn{key: "c1"})
	require.Nil(t, regErr)

	b.TypingSignal("r1", "alice", "Alice", true)
	registry.Deregister(sessID)

	assert.Empty(t, b.CurrentTyping("r1"), "disconnect clears typing state")

	evt, ok := pusher.lastOfType("bob", event.TypePresenceChanged)
	require.True(t, ok)
	change := evt.Payload.(PresenceChange)
	assert.False(t, change.Online)
	assert.False(t, change.LastSeenAt.IsZero())
}

func TestMembershipChange_AnnouncedToOtherMembers(t *testing.T) {
	b, _, directory, pusher := newTestBroadcaster(t)
	_ = b

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice"}})
	require.Nil(t, customErr)

	require.Nil(t, directory.Join("r1", "bob", "bob"))

	evt, ok := pusher.lastOfType("alice", event.TypeRoomJoined)
	require.True(t, ok)
	assert.Equal(t, "bob", evt.Payload.(MembershipChange).UserID)

	// The joiner is not notified through the membership fan-out; their own
	// session receives the room state from the transport instead.
	_, ok = pusher.lastOfType("bob", event.TypeRoomJoined)
	assert.False(t, ok)

	require.Nil(t, directory.Leave("r1", "bob"))

	evt, ok = pusher.lastOfType("alice", event.TypeRoomLeft)
	require.True(t, ok)
	assert.Equal(t, "bob", evt.Payload.(MembershipChange).UserID)
}

func TestCurrentOnline_IntersectsMembersAndSessions(t *testing.T) {
	b, registry, directory, _ := newTestBroadcaster(t)

	_, customErr := directory.Create(room.Spec{ID: "r1", Name: "Room", Members: []string{"alice", "bob", "carol"}})
	require.Nil(t, customErr)

	_, regErr := registry.Register(user.User{ID: "alice"}, &fakeConn{key: "c1"})
	require.Nil(t, regErr)
	_, regErr = registry.Register(user.User{ID: "dave"}, &fakeConn{key: "c2"})
	require.Nil(t, regErr)

	online := b.CurrentOnline("r1")
	assert.Equal(t, []string{"alice"}, online, "online non-members are excluded")
}
