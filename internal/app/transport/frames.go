/*
Package transport is the delivery boundary: it decodes inbound client frames
into core calls and serializes outbound events to each target session's
WebSocket connection.

This file defines the wire frame envelope and the inbound payload structures.
*/
package transport

import (
	"encoding/json"

	"chatflow/internal/app/presence"
	"chatflow/internal/app/room"
	"chatflow/internal/app/user"
)

// FrameType identifies an inbound client frame kind.
type FrameType string

const (
	FrameJoinRoom       FrameType = "join-room"
	FrameLeaveRoom      FrameType = "leave-room"
	FrameSendMessage    FrameType = "send-message"
	FrameTyping         FrameType = "typing"
	FrameAddReaction    FrameType = "add-reaction"
	FrameMarkRead       FrameType = "mark-read"
	FramePrivateMessage FrameType = "private-message"
)

// Frame is the inbound wire envelope.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRoomPayload requests membership in a room. UserID is optional: when set
// to another user it is an invite, which private rooms require to come from an
// existing member.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// LeaveRoomPayload requests leaving a room.
type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload posts a message to a room.
type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
	Kind    string `json:"kind"`
	FileRef string `json:"fileRef,omitempty"`
}

// PrivateMessagePayload posts a message to a single recipient.
type PrivateMessagePayload struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Kind        string `json:"kind"`
	FileRef     string `json:"fileRef,omitempty"`
}

// TypingPayload signals the start or end of typing in a room.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// AddReactionPayload adds an emoji reaction to a message.
type AddReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// MarkReadPayload marks a message as read by the sender of the frame.
type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

// RoomState is pushed to a session right after it joins a room: the room's
// metadata plus the membership, online, and typing snapshots the client needs
// to render it.
type RoomState struct {
	Room    room.Room             `json:"room"`
	Members []user.User           `json:"members"`
	Online  []string              `json:"online"`
	Typing  []presence.TypingUser `json:"typing"`
}

// ErrorPayload carries a validation failure back to the originating session.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
