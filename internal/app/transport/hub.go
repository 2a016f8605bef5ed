/*
Package transport is the delivery boundary: it decodes inbound client frames
into core calls and serializes outbound events to each target session's
WebSocket connection.

This file defines the Hub, which maps logical recipients (users, sessions) to
live connections. Events for recipients without a live connection are silently
dropped; clients recover missed events through the history-fetch API after
reconnecting.
*/
package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"chatflow/internal/app/event"
	"chatflow/internal/app/message"
	"chatflow/internal/app/presence"
	"chatflow/internal/app/room"
	"chatflow/internal/app/session"
	"chatflow/internal/pkg/logx"
)

// Hub tracks every attached client connection and implements event.Pusher.
type Hub struct {
	mu sync.RWMutex

	// bySession maps sessionID to its client.
	bySession map[string]*Client

	// byUser maps userID to that user's clients, keyed by sessionID.
	byUser map[string]map[string]*Client

	registry  *session.Registry
	directory *room.Directory
	router    *message.Router
	presence  *presence.Broadcaster

	// lookupUser reports whether a user ID refers to a known account. Optional;
	// when unset every ID is treated as known.
	lookupUser func(ctx context.Context, userID string) bool

	logger zerolog.Logger
}

// NewHub constructs an empty Hub. Bind must be called before clients attach;
// the two-step construction breaks the cycle between the hub (Pusher) and the
// core components that push through it.
func NewHub() *Hub {
	return &Hub{
		bySession: make(map[string]*Client),
		byUser:    make(map[string]map[string]*Client),
		logger:    logx.Logger().With().Str("component", "TransportHub").Logger(),
	}
}

// Bind wires the hub to the core components inbound frames dispatch to.
func (h *Hub) Bind(registry *session.Registry, directory *room.Directory, router *message.Router, broadcaster *presence.Broadcaster) {
	h.registry = registry
	h.directory = directory
	h.router = router
	h.presence = broadcaster
}

// SetUserLookup installs the account-existence check used to validate private
// message recipients.
func (h *Hub) SetUserLookup(fn func(ctx context.Context, userID string) bool) {
	h.lookupUser = fn
}

// knownUser reports whether the user ID resolves to an account.
func (h *Hub) knownUser(ctx context.Context, userID string) bool {
	if h.lookupUser == nil {
		return true
	}
	return h.lookupUser(ctx, userID)
}

// Attach registers the client under its session and user.
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.bySession[c.sessionID] = c
	if h.byUser[c.usr.ID] == nil {
		h.byUser[c.usr.ID] = make(map[string]*Client)
	}
	h.byUser[c.usr.ID][c.sessionID] = c
}

// Detach removes the client. Detaching an already-detached client is a no-op.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.bySession[c.sessionID]; !ok || current != c {
		return
	}

	delete(h.bySession, c.sessionID)
	if clients, ok := h.byUser[c.usr.ID]; ok {
		delete(clients, c.sessionID)
		if len(clients) == 0 {
			delete(h.byUser, c.usr.ID)
		}
	}
}

// PushUser delivers the event to every live session of the user. Sessions
// without capacity drop the event individually; one slow connection never
// affects the others.
func (h *Hub) PushUser(userID string, evt event.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(evt.Type)).Msg("Failed to marshal outbound event.")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(payload)
	}
}

// PushSession delivers the event to one specific session, silently dropping it
// if the session has no live connection.
func (h *Hub) PushSession(sessionID string, evt event.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(evt.Type)).Msg("Failed to marshal outbound event.")
		return
	}

	h.mu.RLock()
	c, ok := h.bySession[sessionID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	c.enqueue(payload)
}

// ConnectedSessions returns the number of currently attached sessions.
func (h *Hub) ConnectedSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.bySession)
}

// Shutdown closes every attached connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.bySession))
	for _, c := range h.bySession {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close("server shutting down")
	}

	h.logger.Info().Int("closed", len(clients)).Msg("Hub shutdown complete.")
}
