/*
Package event defines the outbound event envelope pushed to client sessions and
the Pusher interface the core components use to hand events to the delivery
transport.

The core never talks to connections directly: the message router and the presence
broadcaster address logical recipients (users or sessions), and the transport
adapter resolves those to live connections. This keeps ordering logic independent
of the concrete transport.
*/
package event

// Type identifies an outbound event kind on the wire.
type Type string

const (
	// TypeMessagePosted carries a newly routed room or private message.
	TypeMessagePosted Type = "message-posted"

	// TypeReactionAdded carries the updated reaction set of a message.
	TypeReactionAdded Type = "reaction-added"

	// TypeMessageRead carries the updated read receipt set of a message.
	TypeMessageRead Type = "message-read"

	// TypePresenceChanged carries an online/offline transition for a user.
	TypePresenceChanged Type = "presence-changed"

	// TypeTypingChanged carries the current set of typing users in a room.
	TypeTypingChanged Type = "typing-changed"

	// TypeRoomJoined carries room membership changes and, for the joining
	// session, the room's current state.
	TypeRoomJoined Type = "room-joined"

	// TypeRoomLeft notifies room members that a user left the room.
	TypeRoomLeft Type = "room-left"

	// TypeError carries a validation failure back to the originating session only.
	TypeError Type = "error"
)

// Event is the outbound envelope serialized to clients.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// Pusher delivers events to logical recipients. Implementations must not block:
// an event for a recipient without a live connection is silently dropped, and a
// push failure for one recipient never affects delivery to the others.
type Pusher interface {
	// PushUser delivers the event to every live session of the given user.
	PushUser(userID string, evt Event)

	// PushSession delivers the event to one specific session.
	PushSession(sessionID string, evt Event)
}
