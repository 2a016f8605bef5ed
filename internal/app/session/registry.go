/*
Package session tracks live client connections and derives authoritative user
presence from them.

The Registry owns every Session and every User record. A user may hold several
concurrent sessions (multi-device); the user is online while at least one session
is live. A background sweep converts transport-level silence into a disconnect
with the same side effects as an explicit deregister, so presence never depends
on a close callback that may be lost.
*/
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatflow/internal/app/user"
	"chatflow/internal/pkg/errs"
	"chatflow/internal/pkg/logx"
	"chatflow/internal/pkg/randx"
)

// Conn is the minimal view the registry needs of a live connection.
// The transport adapter's client satisfies it.
type Conn interface {
	// Key returns a stable identity for the underlying connection.
	Key() string

	// Close terminates the connection, telling the client why.
	Close(reason string)
}

// Session binds one live connection to a user identity.
type Session struct {
	ID             string
	UserID         string
	Conn           Conn
	JoinedRooms    map[string]struct{}
	LastActivityAt time.Time
}

// Registry is the authoritative owner of sessions and user presence.
type Registry struct {
	mu sync.Mutex

	// sessions maps sessionID to its Session.
	sessions map[string]*Session

	// byUser maps userID to that user's live sessions, keyed by sessionID.
	byUser map[string]map[string]*Session

	// byConn maps connection keys to sessionIDs, to reject duplicate handles.
	byConn map[string]string

	// users holds every known user, online or within the eviction grace period.
	users map[string]*user.User

	// timeout is the inactivity threshold after which a session counts as dead.
	timeout time.Duration

	// grace is how long an offline user record is kept before eviction.
	grace time.Duration

	// onPresence is invoked (outside the registry lock) whenever a user
	// transitions between online and offline.
	onPresence func(u user.User, online bool)

	stop   chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewRegistry constructs a Registry with the given session inactivity timeout
// and offline-user eviction grace period.
func NewRegistry(timeout, grace time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
		byConn:   make(map[string]string),
		users:    make(map[string]*user.User),
		timeout:  timeout,
		grace:    grace,
		stop:     make(chan struct{}),
		logger:   logx.Logger().With().Str("component", "SessionRegistry").Logger(),
	}
}

// OnPresenceChange sets the callback fired on online/offline transitions.
// It must be set before the registry starts accepting registrations.
func (r *Registry) OnPresenceChange(fn func(u user.User, online bool)) {
	r.onPresence = fn
}

// Register creates a session for the given user and connection. It fails with
// ErrDuplicateConnection only if the same connection handle is already
// registered; a user connecting from several devices always succeeds.
func (r *Registry) Register(u user.User, conn Conn) (string, *errs.CustomError) {
	r.mu.Lock()

	if existingID, ok := r.byConn[conn.Key()]; ok {
		r.mu.Unlock()
		r.logger.Warn().
			Str("conn_key", conn.Key()).
			Str("session_id", existingID).
			Msg("Rejected duplicate connection handle.")
		return "", errs.NewError(errs.ErrDuplicateConnection)
	}

	sess := &Session{
		ID:             randx.SessionID(),
		UserID:         u.ID,
		Conn:           conn,
		JoinedRooms:    make(map[string]struct{}),
		LastActivityAt: time.Now(),
	}

	r.sessions[sess.ID] = sess
	r.byConn[conn.Key()] = sess.ID

	if r.byUser[u.ID] == nil {
		r.byUser[u.ID] = make(map[string]*Session)
	}
	r.byUser[u.ID][sess.ID] = sess

	known, ok := r.users[u.ID]
	wentOnline := !ok || !known.Online
	if !ok {
		known = &user.User{ID: u.ID}
		r.users[u.ID] = known
	}
	known.Username = u.Username
	known.AvatarRef = u.AvatarRef
	known.Online = true
	known.LastSeenAt = time.Time{}

	snapshot := *known
	r.mu.Unlock()

	r.logger.Info().
		Str("session_id", sess.ID).
		Str("user_id", u.ID).
		Msg("Session registered.")

	if wentOnline && r.onPresence != nil {
		r.onPresence(snapshot, true)
	}

	return sess.ID, nil
}

// Heartbeat refreshes the session's activity timestamp.
func (r *Registry) Heartbeat(sessionID string) *errs.CustomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return errs.NewError(errs.ErrUnknownSession)
	}

	sess.LastActivityAt = time.Now()
	return nil
}

// Deregister removes the session. If it was the user's last live session, the
// user is marked offline, lastSeenAt is stamped, and a presence change is
// emitted. Deregistering an unknown session is a no-op.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}

	snapshot, wentOffline := r.removeLocked(sess)
	r.mu.Unlock()

	r.logger.Info().
		Str("session_id", sessionID).
		Str("user_id", sess.UserID).
		Bool("user_offline", wentOffline).
		Msg("Session deregistered.")

	if wentOffline && r.onPresence != nil {
		r.onPresence(snapshot, false)
	}
}

// removeLocked deletes the session from all indexes and flips the owning user
// offline when no sessions remain. Caller holds r.mu.
func (r *Registry) removeLocked(sess *Session) (user.User, bool) {
	delete(r.sessions, sess.ID)
	delete(r.byConn, sess.Conn.Key())

	if userSessions, ok := r.byUser[sess.UserID]; ok {
		delete(userSessions, sess.ID)
		if len(userSessions) == 0 {
			delete(r.byUser, sess.UserID)
		}
	}

	known, ok := r.users[sess.UserID]
	if !ok {
		return user.User{}, false
	}

	if len(r.byUser[sess.UserID]) > 0 || !known.Online {
		return *known, false
	}

	known.Online = false
	known.LastSeenAt = time.Now()
	return *known, true
}

// SessionsOf returns the IDs of the user's live sessions.
func (r *Registry) SessionsOf(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

// IsOnline reports whether the user currently holds a live session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	return ok && u.Online
}

// UserByID returns a snapshot of the user record, if known.
func (r *Registry) UserByID(userID string) (user.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return user.User{}, false
	}
	return *u, true
}

// MarkJoined records the session's subscription to a room.
func (r *Registry) MarkJoined(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[sessionID]; ok {
		sess.JoinedRooms[roomID] = struct{}{}
	}
}

// MarkLeft removes the session's subscription to a room.
func (r *Registry) MarkLeft(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[sessionID]; ok {
		delete(sess.JoinedRooms, roomID)
	}
}

// StartSweeper launches the background liveness sweep.
func (r *Registry) StartSweeper(interval time.Duration) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.logger.Info().Dur("interval", interval).Msg("Liveness sweep started.")

		for {
			select {
			case <-ticker.C:
				r.sweepOnce(time.Now())
			case <-r.stop:
				r.logger.Info().Msg("Liveness sweep stopped.")
				return
			}
		}
	}()
}

// sweepOnce evicts sessions silent for longer than the timeout, with the same
// side effects as an explicit deregister, and drops offline user records older
// than the grace period. Evicted connections are closed outside the lock.
func (r *Registry) sweepOnce(now time.Time) {
	type transition struct {
		u    user.User
		conn Conn
	}

	r.mu.Lock()

	var expired []*Session
	for _, sess := range r.sessions {
		if now.Sub(sess.LastActivityAt) > r.timeout {
			expired = append(expired, sess)
		}
	}

	var offline []transition
	for _, sess := range expired {
		snapshot, wentOffline := r.removeLocked(sess)
		t := transition{conn: sess.Conn}
		if wentOffline {
			t.u = snapshot
		}
		offline = append(offline, t)
	}

	evictedUsers := 0
	for id, u := range r.users {
		if !u.Online && !u.LastSeenAt.IsZero() && now.Sub(u.LastSeenAt) > r.grace {
			delete(r.users, id)
			evictedUsers++
		}
	}

	r.mu.Unlock()

	if len(expired) > 0 || evictedUsers > 0 {
		r.logger.Info().
			Int("expired_sessions", len(expired)).
			Int("evicted_users", evictedUsers).
			Msg("Liveness sweep evicted stale state.")
	}

	for _, t := range offline {
		t.conn.Close("session timed out")
		if t.u.ID != "" && r.onPresence != nil {
			r.onPresence(t.u, false)
		}
	}
}

// Stop terminates the background sweep and waits for it to exit.
func (r *Registry) Stop() {
	close(r.stop)
	r.wg.Wait()
}
