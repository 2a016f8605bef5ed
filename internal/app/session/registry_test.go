package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow/internal/app/user"
	"chatflow/internal/pkg/errs"
)

// fakeConn implements Conn for testing.
type fakeConn struct {
	key string

	mu     sync.Mutex
	closed bool
	reason string
}

func (c *fakeConn) Key() string { return c.key }

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reason = reason
}

func (c *fakeConn) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// presenceRecorder collects presence transitions for assertions.
type presenceRecorder struct {
	mu     sync.Mutex
	events []string
}

func (p *presenceRecorder) record(u user.User, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if online {
		p.events = append(p.events, u.ID+":online")
	} else {
		p.events = append(p.events, u.ID+":offline")
	}
}

func (p *presenceRecorder) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func newTestRegistry(t *testing.T) (*Registry, *presenceRecorder) {
	t.Helper()

	rec := &presenceRecorder{}
	r := NewRegistry(90*time.Second, 10*time.Minute)
	r.OnPresenceChange(rec.record)
	return r, rec
}

func TestRegister_AssignsSessionAndMarksOnline(t *testing.T) {
	r, rec := newTestRegistry(t)

	id, customErr := r.Register(user.User{ID: "u1", Username: "alice"}, &fakeConn{key: "c1"})
	require.Nil(t, customErr)
	assert.NotEmpty(t, id)

	assert.True(t, r.IsOnline("u1"))
	assert.Equal(t, []string{"u1:online"}, rec.snapshot())

	u, ok := r.UserByID("u1")
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.Online)
}

func TestRegister_DuplicateConnectionHandleRejected(t *testing.T) {
	r, _ := newTestRegistry(t)

	conn := &fakeConn{key: "same-handle"}
	_, customErr := r.Register(user.User{ID: "u1"}, conn)
	require.Nil(t, customErr)

	_, customErr = r.Register(user.User{ID: "u2"}, conn)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrDuplicateConnection, customErr.Code)
}

func TestRegister_MultiDeviceSameUser(t *testing.T) {
	r, rec := newTestRegistry(t)

	_, customErr := r.Register(user.User{ID: "u1"}, &fakeConn{key: "phone"})
	require.Nil(t, customErr)
	_, customErr = r.Register(user.User{ID: "u1"}, &fakeConn{key: "laptop"})
	require.Nil(t, customErr)

	assert.Len(t, r.SessionsOf("u1"), 2)

	// Only the first session flips the user online.
	assert.Equal(t, []string{"u1:online"}, rec.snapshot())
}

func TestDeregister_LastSessionGoesOffline(t *testing.T) {
	r, rec := newTestRegistry(t)

	s1, _ := r.Register(user.User{ID: "u1"}, &fakeConn{key: "phone"})
	s2, _ := r.Register(user.User{ID: "u1"}, &fakeConn{key: "laptop"})

	r.Deregister(s1)
	assert.True(t, r.IsOnline("u1"), "user stays online while another session is live")

	r.Deregister(s2)
	assert.False(t, r.IsOnline("u1"))

	u, ok := r.UserByID("u1")
	require.True(t, ok)
	assert.False(t, u.LastSeenAt.IsZero(), "lastSeenAt stamped on going offline")

	assert.Equal(t, []string{"u1:online", "u1:offline"}, rec.snapshot())
}

func TestDeregister_UnknownSessionIsNoOp(t *testing.T) {
	r, rec := newTestRegistry(t)

	r.Deregister("no-such-session")
	assert.Empty(t, rec.snapshot())
}

func TestHeartbeat_UnknownSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	customErr := r.Heartbeat("no-such-session")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrUnknownSession, customErr.Code)
}

func TestSweep_EvictsSilentSessions(t *testing.T) {
	rec := &presenceRecorder{}
	r := NewRegistry(time.Minute, 10*time.Minute)
	r.OnPresenceChange(rec.record)

	staleConn := &fakeConn{key: "stale"}
	freshConn := &fakeConn{key: "fresh"}

	staleID, _ := r.Register(user.User{ID: "stale-user"}, staleConn)
	r.Register(user.User{ID: "fresh-user"}, freshConn)

	// The stale session went silent longer ago than the timeout allows.
	r.mu.Lock()
	r.sessions[staleID].LastActivityAt = time.Now().Add(-2 * time.Minute)
	r.mu.Unlock()

	r.sweepOnce(time.Now())

	assert.True(t, staleConn.wasClosed(), "evicted session's connection is closed")
	assert.False(t, freshConn.wasClosed())
	assert.False(t, r.IsOnline("stale-user"))
	assert.True(t, r.IsOnline("fresh-user"))

	// Eviction has the same side effects as an explicit deregister.
	assert.Contains(t, rec.snapshot(), "stale-user:offline")
	assert.NotNil(t, r.Heartbeat(staleID), "evicted session is forgotten")
}

func TestSweep_OfflineTransitionFiresExactlyOnce(t *testing.T) {
	rec := &presenceRecorder{}
	r := NewRegistry(time.Second, 10*time.Minute)
	r.OnPresenceChange(rec.record)

	_, customErr := r.Register(user.User{ID: "u1"}, &fakeConn{key: "c1"})
	require.Nil(t, customErr)

	deadline := time.Now().Add(5 * time.Second)
	r.sweepOnce(deadline)
	r.sweepOnce(deadline.Add(time.Second))
	r.sweepOnce(deadline.Add(2 * time.Second))

	offline := 0
	for _, e := range rec.snapshot() {
		if e == "u1:offline" {
			offline++
		}
	}
	assert.Equal(t, 1, offline)
}

func TestSweep_EvictsOfflineUsersAfterGrace(t *testing.T) {
	r := NewRegistry(time.Second, time.Minute)

	sessID, _ := r.Register(user.User{ID: "u1", Username: "alice"}, &fakeConn{key: "c1"})
	r.Deregister(sessID)

	_, ok := r.UserByID("u1")
	require.True(t, ok, "offline user kept within grace period")

	r.sweepOnce(time.Now().Add(2 * time.Minute))

	_, ok = r.UserByID("u1")
	assert.False(t, ok, "offline user evicted past grace period")
}

func TestMarkJoinedAndLeft(t *testing.T) {
	r, _ := newTestRegistry(t)

	sessID, _ := r.Register(user.User{ID: "u1"}, &fakeConn{key: "c1"})

	r.MarkJoined(sessID, "general")
	r.MarkJoined(sessID, "tech")
	r.MarkLeft(sessID, "general")

	// No panic on unknown sessions.
	r.MarkJoined("no-such-session", "general")
	r.MarkLeft("no-such-session", "general")
}
