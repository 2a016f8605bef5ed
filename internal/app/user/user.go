/*
Package user contains the core data structure for user identity.

It defines the representation of a chat participant that is shared between the
session registry, the message router, and the wire payloads pushed to clients.
*/
package user

import "time"

// User represents a chat participant.
// Online and LastSeenAt are owned by the session registry: they change only when
// the registry observes a connect, a disconnect, or a liveness timeout.
type User struct {
	// ID is the stable opaque identifier for the user.
	ID string `json:"id"`

	// Username is the display name. Display names are not unique.
	Username string `json:"username"`

	// AvatarRef is an optional URI for the user's avatar.
	AvatarRef string `json:"avatarRef,omitempty"`

	// Online reports whether the user currently holds at least one live session.
	Online bool `json:"online"`

	// LastSeenAt is the time the user's last session ended. Zero while online.
	LastSeenAt time.Time `json:"lastSeenAt,omitzero"`
}
