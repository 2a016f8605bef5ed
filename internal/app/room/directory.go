/*
Package room owns the set of chat rooms and their memberships.

The Directory serializes mutations per room: membership changes for one room go
through that room's lock, so a membership read taken for message fan-out always
reflects every join and leave applied before the message. Rooms in different
locks never contend with each other.
*/
package room

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatflow/internal/pkg/errs"
	"chatflow/internal/pkg/logx"
	"chatflow/internal/pkg/randx"
)

// Room describes a named group-messaging channel.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Spec is the input for creating a room.
type Spec struct {
	// ID is optional; when empty a random identifier is generated.
	ID          string
	Name        string
	Description string
	IsPrivate   bool
	// Members seeds the initial membership, typically just the creator.
	Members []string
}

// state pairs a room with its membership under a room-scoped lock.
type state struct {
	mu      sync.Mutex
	room    Room
	members map[string]struct{}
}

// Directory tracks every room. Rooms are never implicitly deleted; removing a
// room is an external administrative action outside this core.
type Directory struct {
	mu sync.RWMutex

	// rooms maps roomID to its state.
	rooms map[string]*state

	// byName maps lowercased names of non-private rooms to roomIDs, enforcing
	// the case-insensitive public namespace.
	byName map[string]string

	// onMembership is invoked (outside all locks) after a join or leave.
	onMembership func(roomID, userID string, joined bool)

	logger zerolog.Logger
}

// NewDirectory constructs an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms:  make(map[string]*state),
		byName: make(map[string]string),
		logger: logx.Logger().With().Str("component", "RoomDirectory").Logger(),
	}
}

// OnMembership sets the callback fired after membership changes.
// It must be set before the directory starts accepting mutations.
func (d *Directory) OnMembership(fn func(roomID, userID string, joined bool)) {
	d.onMembership = fn
}

// SeedDefaults creates the default public rooms a fresh deployment starts with.
func (d *Directory) SeedDefaults() {
	defaults := []Spec{
		{ID: "general", Name: "General", Description: "General discussion"},
		{ID: "random", Name: "Random", Description: "Random chatter"},
		{ID: "tech", Name: "Tech Talk", Description: "Technology discussions"},
	}

	for _, spec := range defaults {
		if _, err := d.Create(spec); err != nil {
			d.logger.Warn().Str("room_id", spec.ID).Msg("Default room already present, skipping seed.")
		}
	}
}

// Create adds a new room. Non-private rooms share a case-insensitive name
// namespace; a collision fails with ErrDuplicateRoom.
func (d *Directory) Create(spec Spec) (Room, *errs.CustomError) {
	if strings.TrimSpace(spec.Name) == "" {
		return Room{}, errs.NewError(errs.ErrInvalidParams)
	}

	id := spec.ID
	if id == "" {
		generated, err := randx.RoomID()
		if err != nil {
			logx.Error(err, "Failed to generate room id")
			return Room{}, errs.NewError(errs.ErrUnknown)
		}
		id = generated
	}

	nameKey := strings.ToLower(spec.Name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rooms[id]; ok {
		return Room{}, errs.NewError(errs.ErrDuplicateRoom)
	}

	if !spec.IsPrivate {
		if _, ok := d.byName[nameKey]; ok {
			return Room{}, errs.NewError(errs.ErrDuplicateRoom)
		}
	}

	st := &state{
		room: Room{
			ID:          id,
			Name:        spec.Name,
			Description: spec.Description,
			IsPrivate:   spec.IsPrivate,
			CreatedAt:   time.Now(),
		},
		members: make(map[string]struct{}, len(spec.Members)),
	}
	for _, m := range spec.Members {
		st.members[m] = struct{}{}
	}

	d.rooms[id] = st
	if !spec.IsPrivate {
		d.byName[nameKey] = id
	}

	d.logger.Info().
		Str("room_id", id).
		Str("name", spec.Name).
		Bool("private", spec.IsPrivate).
		Msg("Room created.")

	return st.room, nil
}

// Get returns the room metadata by ID.
func (d *Directory) Get(roomID string) (Room, *errs.CustomError) {
	st, ok := d.lookup(roomID)
	if !ok {
		return Room{}, errs.NewError(errs.ErrRoomNotFound)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.room, nil
}

// Join adds targetID to the room's membership. Joining twice is a no-op, not an
// error. For private rooms, only an existing member may add a third party
// (invite semantics); a user adding themselves fails with ErrForbidden.
func (d *Directory) Join(roomID, actorID, targetID string) *errs.CustomError {
	st, ok := d.lookup(roomID)
	if !ok {
		return errs.NewError(errs.ErrRoomNotFound)
	}

	st.mu.Lock()

	// Membership wins over authorization: a duplicate join from an existing
	// member stays an idempotent no-op even on private rooms.
	if _, already := st.members[targetID]; already {
		st.mu.Unlock()
		return nil
	}

	if st.room.IsPrivate {
		_, actorIsMember := st.members[actorID]
		if !actorIsMember || actorID == targetID {
			st.mu.Unlock()
			return errs.NewError(errs.ErrForbidden)
		}
	}

	st.members[targetID] = struct{}{}
	total := len(st.members)
	st.mu.Unlock()

	d.logger.Info().
		Str("room_id", roomID).
		Str("user_id", targetID).
		Int("members", total).
		Msg("User joined room.")

	if d.onMembership != nil {
		d.onMembership(roomID, targetID, true)
	}

	return nil
}

// Leave removes the user from the room. Leaving a room the user is not a member
// of is a silent no-op, tolerating duplicate client requests.
func (d *Directory) Leave(roomID, userID string) *errs.CustomError {
	st, ok := d.lookup(roomID)
	if !ok {
		return errs.NewError(errs.ErrRoomNotFound)
	}

	st.mu.Lock()

	if _, member := st.members[userID]; !member {
		st.mu.Unlock()
		return nil
	}

	delete(st.members, userID)
	total := len(st.members)
	st.mu.Unlock()

	d.logger.Info().
		Str("room_id", roomID).
		Str("user_id", userID).
		Int("members", total).
		Msg("User left room.")

	if d.onMembership != nil {
		d.onMembership(roomID, userID, false)
	}

	return nil
}

// MembersOf returns the room's current membership. The slice is a stable
// snapshot taken under the room's lock.
func (d *Directory) MembersOf(roomID string) ([]string, *errs.CustomError) {
	st, ok := d.lookup(roomID)
	if !ok {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	members := make([]string, 0, len(st.members))
	for id := range st.members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

// IsMember reports whether the user belongs to the room.
func (d *Directory) IsMember(roomID, userID string) bool {
	st, ok := d.lookup(roomID)
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	_, member := st.members[userID]
	return member
}

// RoomsOf returns the IDs of the rooms the user belongs to.
func (d *Directory) RoomsOf(userID string) []string {
	d.mu.RLock()
	states := make([]*state, 0, len(d.rooms))
	for _, st := range d.rooms {
		states = append(states, st)
	}
	d.mu.RUnlock()

	var ids []string
	for _, st := range states {
		st.mu.Lock()
		if _, member := st.members[userID]; member {
			ids = append(ids, st.room.ID)
		}
		st.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// List returns metadata for every non-private room plus the private rooms the
// given user belongs to.
func (d *Directory) List(userID string) []Room {
	d.mu.RLock()
	states := make([]*state, 0, len(d.rooms))
	for _, st := range d.rooms {
		states = append(states, st)
	}
	d.mu.RUnlock()

	rooms := make([]Room, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		_, member := st.members[userID]
		if !st.room.IsPrivate || member {
			rooms = append(rooms, st.room)
		}
		st.mu.Unlock()
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// lookup finds the room state under the directory read lock.
func (d *Directory) lookup(roomID string) (*state, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.rooms[roomID]
	return st, ok
}
