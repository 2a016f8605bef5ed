package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow/internal/pkg/errs"
)

// membershipRecorder collects membership transitions for assertions.
type membershipRecorder struct {
	mu     sync.Mutex
	events []string
}

func (m *membershipRecorder) record(roomID, userID string, joined bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if joined {
		m.events = append(m.events, roomID+"/"+userID+":joined")
	} else {
		m.events = append(m.events, roomID+"/"+userID+":left")
	}
}

func (m *membershipRecorder) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func newTestDirectory(t *testing.T) (*Directory, *membershipRecorder) {
	t.Helper()

	rec := &membershipRecorder{}
	d := NewDirectory()
	d.OnMembership(rec.record)
	return d, rec
}

func TestSeedDefaults(t *testing.T) {
	d, _ := newTestDirectory(t)
	d.SeedDefaults()

	for _, id := range []string{"general", "random", "tech"} {
		_, customErr := d.Get(id)
		assert.Nil(t, customErr, "default room %q should exist", id)
	}

	// Seeding twice never duplicates.
	d.SeedDefaults()
	assert.Len(t, d.List("anyone"), 3)
}

func TestCreate_CaseInsensitiveNameCollision(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{Name: "Gaming"})
	require.Nil(t, customErr)

	_, customErr = d.Create(Spec{Name: "GAMING"})
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrDuplicateRoom, customErr.Code)
}

func TestCreate_PrivateRoomsSkipNameNamespace(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{Name: "Planning", IsPrivate: true, Members: []string{"u1"}})
	require.Nil(t, customErr)

	// A public room may still claim the name, and a second private one may reuse it.
	_, customErr = d.Create(Spec{Name: "planning"})
	assert.Nil(t, customErr)

	_, customErr = d.Create(Spec{Name: "Planning", IsPrivate: true, Members: []string{"u2"}})
	assert.Nil(t, customErr)
}

func TestCreate_DuplicateID(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "fixed", Name: "First"})
	require.Nil(t, customErr)

	_, customErr = d.Create(Spec{ID: "fixed", Name: "Second"})
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrDuplicateRoom, customErr.Code)
}

func TestCreate_BlankNameRejected(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{Name: "   "})
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrInvalidParams, customErr.Code)
}

func TestJoin_Idempotent(t *testing.T) {
	d, rec := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "r1", Name: "Room One"})
	require.Nil(t, customErr)

	require.Nil(t, d.Join("r1", "u1", "u1"))
	require.Nil(t, d.Join("r1", "u1", "u1"))

	members, customErr := d.MembersOf("r1")
	require.Nil(t, customErr)
	assert.Equal(t, []string{"u1"}, members)

	// The second join was a no-op and announced nothing.
	assert.Equal(t, []string{"r1/u1:joined"}, rec.snapshot())
}

func TestJoin_IdempotentOnPrivateRoom(t *testing.T) {
	d, rec := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "p1", Name: "Secret", IsPrivate: true, Members: []string{"alice"}})
	require.Nil(t, customErr)

	// A duplicate join from an existing member is a no-op, never Forbidden.
	require.Nil(t, d.Join("p1", "alice", "alice"))

	require.Nil(t, d.Join("p1", "alice", "bob"))
	require.Nil(t, d.Join("p1", "alice", "bob"))

	members, customErr := d.MembersOf("p1")
	require.Nil(t, customErr)
	assert.Equal(t, []string{"alice", "bob"}, members)
	assert.Equal(t, []string{"p1/bob:joined"}, rec.snapshot())
}

func TestJoin_UnknownRoom(t *testing.T) {
	d, _ := newTestDirectory(t)

	customErr := d.Join("missing", "u1", "u1")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrRoomNotFound, customErr.Code)
}

func TestJoin_PrivateRoomSelfJoinForbidden(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "p1", Name: "Secret", IsPrivate: true, Members: []string{"owner"}})
	require.Nil(t, customErr)

	customErr = d.Join("p1", "outsider", "outsider")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrForbidden, customErr.Code)
}

func TestJoin_PrivateRoomInviteByMember(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "p1", Name: "Secret", IsPrivate: true, Members: []string{"owner"}})
	require.Nil(t, customErr)

	require.Nil(t, d.Join("p1", "owner", "guest"))
	assert.True(t, d.IsMember("p1", "guest"))
}

func TestJoin_PrivateRoomInviteByNonMemberForbidden(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "p1", Name: "Secret", IsPrivate: true, Members: []string{"owner"}})
	require.Nil(t, customErr)

	customErr = d.Join("p1", "outsider", "guest")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrForbidden, customErr.Code)
}

func TestLeave_NonMemberIsSilentNoOp(t *testing.T) {
	d, rec := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "r1", Name: "Room One"})
	require.Nil(t, customErr)

	require.Nil(t, d.Leave("r1", "stranger"))
	assert.Empty(t, rec.snapshot())
}

func TestLeave_RemovesMember(t *testing.T) {
	d, rec := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "r1", Name: "Room One", Members: []string{"u1", "u2"}})
	require.Nil(t, customErr)

	require.Nil(t, d.Leave("r1", "u1"))
	assert.False(t, d.IsMember("r1", "u1"))
	assert.True(t, d.IsMember("r1", "u2"))
	assert.Equal(t, []string{"r1/u1:left"}, rec.snapshot())
}

func TestList_PrivateRoomsVisibleToMembersOnly(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "pub", Name: "Public"})
	require.Nil(t, customErr)
	_, customErr = d.Create(Spec{ID: "prv", Name: "Private", IsPrivate: true, Members: []string{"insider"}})
	require.Nil(t, customErr)

	insiderRooms := d.List("insider")
	outsiderRooms := d.List("outsider")

	assert.Len(t, insiderRooms, 2)
	require.Len(t, outsiderRooms, 1)
	assert.Equal(t, "pub", outsiderRooms[0].ID)
}

func TestRoomsOf(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, customErr := d.Create(Spec{ID: "a", Name: "A", Members: []string{"u1"}})
	require.Nil(t, customErr)
	_, customErr = d.Create(Spec{ID: "b", Name: "B", Members: []string{"u1", "u2"}})
	require.Nil(t, customErr)
	_, customErr = d.Create(Spec{ID: "c", Name: "C"})
	require.Nil(t, customErr)

	assert.Equal(t, []string{"a", "b"}, d.RoomsOf("u1"))
	assert.Equal(t, []string{"b"}, d.RoomsOf("u2"))
	assert.Empty(t, d.RoomsOf("u3"))
}
