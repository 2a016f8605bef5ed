/*
Package transport is the delivery boundary: it decodes inbound client frames
into core calls and serializes outbound events to each target session's
WebSocket connection.

This file defines the Client, one live WebSocket connection bound to a session.
It owns the read and write pumps and the inbound frame dispatch. Every inbound
frame doubles as a heartbeat, so an actively chatting client never times out
even if its pong frames are lost.
*/
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatflow/internal/app/event"
	"chatflow/internal/app/message"
	"chatflow/internal/app/user"
	"chatflow/internal/pkg/errs"
	"chatflow/internal/pkg/logx"
	"chatflow/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendQueueSize is the per-connection outbound buffer. When it fills, new
	// events for this connection are dropped rather than queued indefinitely.
	sendQueueSize = 256

	// wsCloseCodeServerInitiated is the custom Close Code (4000-4999 range)
	// used when the server terminates the session (timeout, shutdown).
	wsCloseCodeServerInitiated = 4001
)

// Client represents one live WebSocket connection bound to a session.
type Client struct {
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// usr is the authenticated identity behind the connection.
	usr user.User

	// sessionID is assigned by the session registry on attach.
	sessionID string

	// connKey is the stable identity of this connection handle.
	connKey string

	// send queues outbound event bytes waiting for the write pump.
	send      chan []byte
	closeOnce sync.Once

	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection. The session ID is
// set by SetSession after the registry accepts the connection.
func NewClient(hub *Hub, conn *websocket.Conn, usr user.User) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		usr:     usr,
		connKey: conn.RemoteAddr().String() + "/" + randx.SessionID(),
		send:    make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().
			Str("user_id", usr.ID).
			Str("component", "Client").
			Logger(),
	}
}

// SetSession binds the registry-assigned session ID to the client.
func (c *Client) SetSession(sessionID string) {
	c.sessionID = sessionID
	c.logger = c.logger.With().Str("session_id", sessionID).Logger()
}

// SessionID returns the registry-assigned session ID.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Key implements session.Conn.
func (c *Client) Key() string {
	return c.connKey
}

// Close implements session.Conn: it sends a close frame with the reason and
// shuts the outbound queue, which terminates the write pump.
func (c *Client) Close(reason string) {
	closeMessage := websocket.FormatCloseMessage(wsCloseCodeServerInitiated, reason)

	// Close may run from the sweeper or shutdown while the write pump owns the
	// connection; WriteControl is the only write safe to make concurrently.
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send close frame.")
	}

	c.closeSend()
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// enqueue hands outbound bytes to the write pump without blocking. A full or
// closed queue drops the event for this connection only.
func (c *Client) enqueue(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().Msg("Dropped event for closed connection.")
		}
	}()

	select {
	case c.send <- payload:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping event.")
	}
}

// ReadPump reads frames from the connection until it closes. Pongs and inbound
// frames both refresh the session's liveness. Cleanup deregisters the session,
// which cascades into presence updates when it was the user's last one.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.hub.registry.Heartbeat(c.sessionID); err != nil {
			c.logger.Warn().Msg("Heartbeat for unknown session, closing connection.")
			return errs.NewError(errs.ErrUnknownSession)
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frameBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection closed unexpectedly.")
			}
			break
		}

		if err := c.hub.registry.Heartbeat(c.sessionID); err != nil {
			c.logger.Warn().Msg("Session evicted while connected, closing connection.")
			break
		}

		c.dispatch(frameBytes)
	}
}

// cleanupOnDisconnect detaches the client and deregisters its session.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Connection cleanup starting.")

	c.hub.Detach(c)
	c.hub.registry.Deregister(c.sessionID)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error during cleanup.")
	}
}

// WritePump writes queued events to the connection and keeps the heartbeat
// ping going. It terminates when the send queue closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump.")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing event, terminating connection.")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing ping, terminating connection.")
				return
			}
		}
	}
}

// dispatch decodes one inbound frame and routes it to the core. Validation
// failures go back to this session only; other participants never observe them.
func (c *Client) dispatch(frameBytes []byte) {
	var frame Frame
	if err := json.Unmarshal(frameBytes, &frame); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame.")
		c.sendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	switch frame.Type {
	case FrameJoinRoom:
		c.handleJoinRoom(frame.Payload)
	case FrameLeaveRoom:
		c.handleLeaveRoom(frame.Payload)
	case FrameSendMessage:
		c.handleSendMessage(frame.Payload)
	case FramePrivateMessage:
		c.handlePrivateMessage(frame.Payload)
	case FrameTyping:
		c.handleTyping(frame.Payload)
	case FrameAddReaction:
		c.handleAddReaction(frame.Payload)
	case FrameMarkRead:
		c.handleMarkRead(frame.Payload)
	default:
		c.logger.Warn().Str("frame_type", string(frame.Type)).Msg("Client sent unsupported frame type.")
		c.sendError(errs.NewError(errs.ErrInvalidParams))
	}
}

func (c *Client) handleJoinRoom(payload json.RawMessage) {
	var in JoinRoomPayload
	if err := json.Unmarshal(payload, &in); err != nil || !randx.IsValidRoomID(in.RoomID) {
		c.sendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	target := in.UserID
	if target == "" {
		target = c.usr.ID
	}

	if customErr := c.hub.directory.Join(in.RoomID, c.usr.ID, target); customErr != nil {
		c.sendError(customErr)
		return
	}

	if target != c.usr.ID {
		return
	}

	c.hub.registry.MarkJoined(c.sessionID, in.RoomID)

	state, customErr := c.roomState(in.RoomID)
	if customErr != nil {
		c.sendError(customErr)
		return
	}

	c.hub.PushSession(c.sessionID, event.Event{Type: event.TypeRoomJoined, Payload: state})
}

func (c *Client) handleLeaveRoom(payload json.RawMessage) {
	var in LeaveRoomPayload
	if err := json.Unmarshal(payload, &in); err != nil || in.RoomID == "" {
		c.sendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if customErr := c.hub.directory.Leave(in.RoomID, c.usr.ID); customErr != nil {
		c.sendError(customErr)
		return
	}

	c.hub.registry.MarkLeft(c.sessionID, in.RoomID)
}

func (c *Client) handleSendMessage(payload json.RawMessage) {
	var in SendMessagePayload
	if err := json.Unmarshal(payload, &in); err != nil {
		c.sendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	_, customErr := c.hub.router.PostMessage(context.Background(), c.usr.ID, message.PostInput{
		RoomID:  in.RoomID,
		Content: in.Content,
		Kind:    message.Kind(in.Kind),
		FileRef: in.FileRef,
	})
	if customErr != nil {
		c.sendError(customErr)
	}
}

func (c *Client) handlePrivateMessage(payload json.RawMessage) {
	var in PrivateMessagePayload
	if err := json.Unmarshal(payload, &in); err != nil || in.RecipientID == "" {
		c.sendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	// The recipient must be a real account; routing to whatever ID the client
	// typed would persist conversations nobody can ever read.
	if in.RecipientID != c.usr.ID && !c.hub.knownUser(context.Background(), in.RecipientID) {
		c.sendError(errs.NewError(errs.ErrUserNotFound))
		return
	}

	_, customErr := c.hub.router.PostMessage(context.Background(), c.usr.ID, message.PostInput{
		RecipientID: in.RecipientID,
		Content:     in.Content,
		Kind:        message.Kind(in.Kind),
		FileRef:     in.FileRef,
	})
	if customErr != nil {
		c.sendError(customErr)
	}
}

func (c *Client) handleTyping(payload json.RawMessage) {
	var in TypingPayload
	if err := json.Unmarshal(payload, &in); err != nil || in.RoomID == "" {
		c.sendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	// Typing signals from non-members are dropped, not rejected: a stale
	// signal racing a leave is expected client behavior, not an error.
	if !c.hub.directory.IsMember(in.RoomID, c.usr.ID) {
		return
	}

	c.hub.presence.TypingSignal(in.RoomID, c.usr.ID, c.usr.Username, in.IsTyping)
}

func (c *Client) handleAddReaction(payload json.RawMessage) {
	var in AddReactionPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		c.sendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if _, customErr := c.hub.router.AddReaction(in.MessageID, in.Emoji, c.usr.ID); customErr != nil {
		c.sendError(customErr)
	}
}

func (c *Client) handleMarkRead(payload json.RawMessage) {
	var in MarkReadPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		c.sendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if customErr := c.hub.router.MarkRead(in.MessageID, c.usr.ID); customErr != nil {
		c.sendError(customErr)
	}
}

// roomState assembles the snapshot pushed to a session after it joins a room.
func (c *Client) roomState(roomID string) (RoomState, *errs.CustomError) {
	rm, customErr := c.hub.directory.Get(roomID)
	if customErr != nil {
		return RoomState{}, customErr
	}

	memberIDs, customErr := c.hub.directory.MembersOf(roomID)
	if customErr != nil {
		return RoomState{}, customErr
	}

	members := make([]user.User, 0, len(memberIDs))
	for _, uid := range memberIDs {
		if u, ok := c.hub.registry.UserByID(uid); ok {
			members = append(members, u)
		} else {
			members = append(members, user.User{ID: uid})
		}
	}

	return RoomState{
		Room:    rm,
		Members: members,
		Online:  c.hub.presence.CurrentOnline(roomID),
		Typing:  c.hub.presence.CurrentTyping(roomID),
	}, nil
}

// sendError pushes a validation failure back to this session only.
func (c *Client) sendError(customErr *errs.CustomError) {
	evt := event.Event{
		Type:    event.TypeError,
		Payload: ErrorPayload{Code: customErr.Code, Message: customErr.Message},
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to marshal error event.")
		return
	}

	c.enqueue(payload)
}
