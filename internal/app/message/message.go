/*
Package message validates, stamps, and fans out chat messages, reactions, and
read receipts.

This file defines the Message model and the persistence collaborator interface.
A message targets either a room or a single recipient (private message), never
both. Once routed, a message is immutable except for its reactions and read
receipts, which only grow.
*/
package message

import (
	"context"
	"time"
)

// Kind classifies the message payload.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// MaxContentBytes is the maximum allowed size (in bytes) for message content.
const MaxContentBytes = 5000

// Message is a routed chat message. Seq is the server-assigned per-conversation
// sequence number: strictly increasing, observed identically by every recipient.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	Kind        Kind      `json:"kind"`
	FileRef     string    `json:"fileRef,omitempty"`
	Seq         int64     `json:"seq"`
	CreatedAt   time.Time `json:"createdAt"`

	// Reactions maps emoji to the set of users who reacted with it.
	Reactions map[string][]string `json:"reactions"`

	// ReadBy is the set of users who marked the message read.
	ReadBy []string `json:"readBy"`
}

// ValidKind reports whether k is a supported message kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}

// ConversationKey derives the persistence and sequencing key for a message:
// the room ID for room messages, or an order-independent pair key for private
// messages so both directions share one sequence.
func ConversationKey(roomID, senderID, recipientID string) string {
	if roomID != "" {
		return roomID
	}

	a, b := senderID, recipientID
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

// Store is the external persistence collaborator. The router appends every
// routed message; clients recover backlog through FetchHistory, paginated
// backwards by sequence number.
type Store interface {
	// Append durably records the message.
	Append(ctx context.Context, m *Message) error

	// FetchHistory returns up to limit messages of the conversation with
	// Seq < beforeSeq, ordered by ascending Seq. beforeSeq <= 0 means
	// "from the latest".
	FetchHistory(ctx context.Context, conversationKey string, beforeSeq int64, limit int) ([]Message, error)
}
