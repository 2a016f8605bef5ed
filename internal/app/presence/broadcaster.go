/*
Package presence derives online/offline and typing deltas and pushes them to
interested sessions.

Typing state is ephemeral: each signal refreshes an entry with a fixed expiry,
and a sweep independent of client signals clears entries whose senders went
silent, so a client that disconnects mid-type never leaves a permanent "is
typing" ghost. The same silence-resolves-to-a-known-state principle the session
registry applies to liveness.
*/
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatflow/internal/app/event"
	"chatflow/internal/app/room"
	"chatflow/internal/app/session"
	"chatflow/internal/app/user"
	"chatflow/internal/pkg/logx"
)

// TypingUser is one entry in a room's current typing set.
type TypingUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

// typingEntry tracks one user's typing state in one room.
type typingEntry struct {
	username  string
	expiresAt time.Time
}

// PresenceChange is the payload of a presence-changed event.
type PresenceChange struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"lastSeenAt,omitzero"`
}

// TypingChange is the payload of a typing-changed event.
type TypingChange struct {
	RoomID string       `json:"roomId"`
	Typing []TypingUser `json:"typing"`
}

// MembershipChange is the payload of room-joined and room-left events.
type MembershipChange struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Broadcaster subscribes to session and membership transitions and owns the
// ephemeral typing state.
type Broadcaster struct {
	registry  *session.Registry
	directory *room.Directory
	pusher    event.Pusher

	mu sync.Mutex

	// typing maps roomID to the users currently typing in it.
	typing map[string]map[string]typingEntry

	// expiry is how long a typing signal stays valid without a refresh.
	expiry time.Duration

	stop   chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewBroadcaster wires a Broadcaster to the registry's presence transitions and
// the directory's membership transitions.
func NewBroadcaster(registry *session.Registry, directory *room.Directory, pusher event.Pusher, typingExpiry time.Duration) *Broadcaster {
	b := &Broadcaster{
		registry:  registry,
		directory: directory,
		pusher:    pusher,
		typing:    make(map[string]map[string]typingEntry),
		expiry:    typingExpiry,
		stop:      make(chan struct{}),
		logger:    logx.Logger().With().Str("component", "PresenceBroadcaster").Logger(),
	}

	registry.OnPresenceChange(b.handlePresence)
	directory.OnMembership(b.handleMembership)

	return b
}

// TypingSignal creates or refreshes the user's typing state when isTyping is
// true, or clears it immediately otherwise. Any resulting change is pushed to
// the room's members as a typing-changed delta.
func (b *Broadcaster) TypingSignal(roomID, userID, username string, isTyping bool) {
	b.mu.Lock()

	changed := false
	if isTyping {
		if b.typing[roomID] == nil {
			b.typing[roomID] = make(map[string]typingEntry)
		}
		_, present := b.typing[roomID][userID]
		b.typing[roomID][userID] = typingEntry{
			username:  username,
			expiresAt: time.Now().Add(b.expiry),
		}
		changed = !present
	} else {
		if _, present := b.typing[roomID][userID]; present {
			delete(b.typing[roomID], userID)
			changed = true
		}
	}

	snapshot := b.typingLocked(roomID)
	b.mu.Unlock()

	if changed {
		b.pushTyping(roomID, snapshot)
	}
}

// CurrentTyping returns the users currently typing in the room.
func (b *Broadcaster) CurrentTyping(roomID string) []TypingUser {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.typingLocked(roomID)
}

// CurrentOnline returns the room members that currently hold a live session.
func (b *Broadcaster) CurrentOnline(roomID string) []string {
	members, err := b.directory.MembersOf(roomID)
	if err != nil {
		return nil
	}

	online := make([]string, 0, len(members))
	for _, uid := range members {
		if b.registry.IsOnline(uid) {
			online = append(online, uid)
		}
	}
	return online
}

// StartSweeper launches the background sweep that expires stale typing entries.
func (b *Broadcaster) StartSweeper(interval time.Duration) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.sweepOnce(time.Now())
			case <-b.stop:
				return
			}
		}
	}()
}

// sweepOnce clears typing entries past their expiry and pushes a typing-changed
// delta for every room that changed.
func (b *Broadcaster) sweepOnce(now time.Time) {
	type delta struct {
		roomID string
		typing []TypingUser
	}

	b.mu.Lock()

	var deltas []delta
	for roomID, users := range b.typing {
		expired := false
		for uid, e := range users {
			if now.After(e.expiresAt) {
				delete(users, uid)
				expired = true
			}
		}
		if len(users) == 0 {
			delete(b.typing, roomID)
		}
		if expired {
			deltas = append(deltas, delta{roomID: roomID, typing: b.typingLocked(roomID)})
		}
	}

	b.mu.Unlock()

	for _, d := range deltas {
		b.pushTyping(d.roomID, d.typing)
	}
}

// Stop terminates the background sweep and waits for it to exit.
func (b *Broadcaster) Stop() {
	close(b.stop)
	b.wg.Wait()
}

// handlePresence fans an online/offline transition out to every user sharing a
// room with the affected user, and drops the user's typing state on disconnect.
func (b *Broadcaster) handlePresence(u user.User, online bool) {
	if !online {
		b.clearTypingEverywhere(u.ID)
	}

	change := PresenceChange{
		UserID:     u.ID,
		Username:   u.Username,
		Online:     online,
		LastSeenAt: u.LastSeenAt,
	}

	interested := make(map[string]struct{})
	for _, roomID := range b.directory.RoomsOf(u.ID) {
		members, err := b.directory.MembersOf(roomID)
		if err != nil {
			continue
		}
		for _, uid := range members {
			interested[uid] = struct{}{}
		}
	}
	delete(interested, u.ID)

	evt := event.Event{Type: event.TypePresenceChanged, Payload: change}
	for uid := range interested {
		b.pusher.PushUser(uid, evt)
	}

	b.logger.Debug().
		Str("user_id", u.ID).
		Bool("online", online).
		Int("notified", len(interested)).
		Msg("Presence change fanned out.")
}

// handleMembership announces joins and leaves to the room's members.
func (b *Broadcaster) handleMembership(roomID, userID string, joined bool) {
	change := MembershipChange{RoomID: roomID, UserID: userID}
	if u, ok := b.registry.UserByID(userID); ok {
		change.Username = u.Username
	}

	evtType := event.TypeRoomJoined
	if !joined {
		evtType = event.TypeRoomLeft
		b.clearTyping(roomID, userID)
	}

	members, err := b.directory.MembersOf(roomID)
	if err != nil {
		return
	}

	evt := event.Event{Type: evtType, Payload: change}
	for _, uid := range members {
		if uid == userID {
			continue
		}
		b.pusher.PushUser(uid, evt)
	}
}

// clearTyping drops one user's typing entry in one room, announcing the change.
func (b *Broadcaster) clearTyping(roomID, userID string) {
	b.mu.Lock()

	_, present := b.typing[roomID][userID]
	if present {
		delete(b.typing[roomID], userID)
		if len(b.typing[roomID]) == 0 {
			delete(b.typing, roomID)
		}
	}
	snapshot := b.typingLocked(roomID)

	b.mu.Unlock()

	if present {
		b.pushTyping(roomID, snapshot)
	}
}

// clearTypingEverywhere drops the user's typing entries in every room.
func (b *Broadcaster) clearTypingEverywhere(userID string) {
	type delta struct {
		roomID string
		typing []TypingUser
	}

	b.mu.Lock()

	var deltas []delta
	for roomID, users := range b.typing {
		if _, present := users[userID]; present {
			delete(users, userID)
			if len(users) == 0 {
				delete(b.typing, roomID)
			}
			deltas = append(deltas, delta{roomID: roomID, typing: b.typingLocked(roomID)})
		}
	}

	b.mu.Unlock()

	for _, d := range deltas {
		b.pushTyping(d.roomID, d.typing)
	}
}

// typingLocked snapshots the room's typing set, excluding entries past their
// expiry. The sweep deletes those entries and announces the delta later, but
// reads must never surface them in the meantime. Caller holds b.mu.
func (b *Broadcaster) typingLocked(roomID string) []TypingUser {
	users := b.typing[roomID]
	now := time.Now()

	out := make([]TypingUser, 0, len(users))
	for uid, e := range users {
		if now.After(e.expiresAt) {
			continue
		}
		out = append(out, TypingUser{UserID: uid, Username: e.username, RoomID: roomID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// pushTyping delivers a typing-changed delta to the room's members.
func (b *Broadcaster) pushTyping(roomID string, typing []TypingUser) {
	members, err := b.directory.MembersOf(roomID)
	if err != nil {
		return
	}

	evt := event.Event{Type: event.TypeTypingChanged, Payload: TypingChange{RoomID: roomID, Typing: typing}}
	for _, uid := range members {
		b.pusher.PushUser(uid, evt)
	}
}
