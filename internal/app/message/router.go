/*
Package message validates, stamps, and fans out chat messages, reactions, and
read receipts.

This file defines the Router. Each conversation (room or private pair) has its
own sequence guarded by its own lock; assignment, persistence, and hand-off to
the transport all happen under that lock, so every recipient observes one total
order per conversation while different conversations route fully in parallel.
Reactions and read receipts are commutative set unions and only need per-message
atomicity.
*/
package message

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatflow/internal/app/event"
	"chatflow/internal/app/room"
	"chatflow/internal/pkg/errs"
	"chatflow/internal/pkg/logx"
	"chatflow/internal/pkg/randx"
)

// conversation holds the single-writer sequence state for one conversation.
type conversation struct {
	mu      sync.Mutex
	lastSeq int64
}

// entry pairs a routed message with the lock guarding its mutable sets.
type entry struct {
	mu  sync.Mutex
	msg *Message
}

// Router is the fan-out engine. It knows logical recipients only; resolving
// them to live connections is the transport's job.
type Router struct {
	directory *room.Directory
	store     Store
	pusher    event.Pusher

	mu sync.Mutex

	// convs maps conversation keys to their sequence state.
	convs map[string]*conversation

	// index maps message IDs to routed messages, for reaction and read-receipt
	// lookups.
	index map[string]*entry

	logger zerolog.Logger
}

// NewRouter constructs a Router over the given directory, store, and transport.
func NewRouter(directory *room.Directory, store Store, pusher event.Pusher) *Router {
	return &Router{
		directory: directory,
		store:     store,
		pusher:    pusher,
		convs:     make(map[string]*conversation),
		index:     make(map[string]*entry),
		logger:    logx.Logger().With().Str("component", "MessageRouter").Logger(),
	}
}

// PostInput is the validated-on-entry input for posting a message.
// Exactly one of RoomID and RecipientID must be set.
type PostInput struct {
	RoomID      string
	RecipientID string
	Content     string
	Kind        Kind
	FileRef     string
}

// PostMessage validates, stamps, persists, and fans out a message. Room
// messages require sender membership; private messages require only two user
// IDs. The returned Message is a caller-owned snapshot.
func (r *Router) PostMessage(ctx context.Context, senderID string, in PostInput) (Message, *errs.CustomError) {
	if (in.RoomID == "") == (in.RecipientID == "") {
		return Message{}, errs.NewError(errs.ErrInvalidParams)
	}

	// A private conversation needs two distinct parties.
	if in.RecipientID != "" && in.RecipientID == senderID {
		return Message{}, errs.NewError(errs.ErrInvalidParams)
	}

	if !ValidKind(in.Kind) {
		return Message{}, errs.NewError(errs.ErrMessageKindInvalid)
	}

	if len(in.Content) > MaxContentBytes {
		return Message{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	if in.Kind == KindText && in.Content == "" {
		return Message{}, errs.NewError(errs.ErrInvalidParams)
	}

	if in.Kind != KindText && in.FileRef == "" {
		return Message{}, errs.NewError(errs.ErrInvalidParams)
	}

	key := ConversationKey(in.RoomID, senderID, in.RecipientID)
	conv := r.conversationFor(key)

	// The conversation lock covers recipient resolution, sequence assignment,
	// persistence, and transport hand-off: recipients reflect all membership
	// changes applied before this message, and pushes leave in sequence order.
	conv.mu.Lock()
	defer conv.mu.Unlock()

	var recipients []string
	if in.RoomID != "" {
		if _, err := r.directory.Get(in.RoomID); err != nil {
			return Message{}, err
		}
		if !r.directory.IsMember(in.RoomID, senderID) {
			return Message{}, errs.NewError(errs.ErrNotAMember)
		}

		members, err := r.directory.MembersOf(in.RoomID)
		if err != nil {
			return Message{}, err
		}
		recipients = members
	} else {
		recipients = []string{senderID, in.RecipientID}
	}

	msg := &Message{
		ID:          randx.MessageID(),
		RoomID:      in.RoomID,
		RecipientID: in.RecipientID,
		SenderID:    senderID,
		Content:     in.Content,
		Kind:        in.Kind,
		FileRef:     in.FileRef,
		Seq:         conv.lastSeq + 1,
		CreatedAt:   time.Now(),
		Reactions:   map[string][]string{},
		ReadBy:      []string{},
	}

	if err := r.store.Append(ctx, msg); err != nil {
		// The store is a durability collaborator, not a delivery gate: the
		// message is already accepted, so deliver it and surface the loss in logs.
		r.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("conversation", key).
			Msg("Failed to persist message, delivering anyway.")
	}

	conv.lastSeq = msg.Seq

	r.mu.Lock()
	r.index[msg.ID] = &entry{msg: msg}
	r.mu.Unlock()

	snapshot := snapshotOf(msg)
	r.fanOut(recipients, event.Event{Type: event.TypeMessagePosted, Payload: snapshot})

	r.logger.Debug().
		Str("message_id", msg.ID).
		Str("conversation", key).
		Int64("seq", msg.Seq).
		Int("recipients", len(recipients)).
		Msg("Message routed.")

	return snapshot, nil
}

// AddReaction records that the user reacted to the message with the given
// emoji. Reacting twice with the same emoji is idempotent. Returns the updated
// reaction set.
func (r *Router) AddReaction(messageID, emoji, userID string) (map[string][]string, *errs.CustomError) {
	if emoji == "" || userID == "" {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	e, ok := r.entryFor(messageID)
	if !ok {
		return nil, errs.NewError(errs.ErrMessageNotFound)
	}

	e.mu.Lock()

	changed := false
	if !slices.Contains(e.msg.Reactions[emoji], userID) {
		e.msg.Reactions[emoji] = append(e.msg.Reactions[emoji], userID)
		changed = true
	}

	snapshot := snapshotOf(e.msg)
	e.mu.Unlock()

	if changed {
		r.fanOut(r.recipientsOf(snapshot), event.Event{
			Type: event.TypeReactionAdded,
			Payload: ReactionUpdate{
				MessageID:   snapshot.ID,
				RoomID:      snapshot.RoomID,
				RecipientID: snapshot.RecipientID,
				Reactions:   snapshot.Reactions,
			},
		})
	}

	return snapshot.Reactions, nil
}

// MarkRead adds the user to the message's read set. Idempotent.
func (r *Router) MarkRead(messageID, userID string) *errs.CustomError {
	if userID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	e, ok := r.entryFor(messageID)
	if !ok {
		return errs.NewError(errs.ErrMessageNotFound)
	}

	e.mu.Lock()

	changed := false
	if !slices.Contains(e.msg.ReadBy, userID) {
		e.msg.ReadBy = append(e.msg.ReadBy, userID)
		changed = true
	}

	snapshot := snapshotOf(e.msg)
	e.mu.Unlock()

	if changed {
		r.fanOut(r.recipientsOf(snapshot), event.Event{
			Type: event.TypeMessageRead,
			Payload: ReadUpdate{
				MessageID:   snapshot.ID,
				RoomID:      snapshot.RoomID,
				RecipientID: snapshot.RecipientID,
				ReadBy:      snapshot.ReadBy,
			},
		})
	}

	return nil
}

// ReactionUpdate is the payload of a reaction-added event.
type ReactionUpdate struct {
	MessageID   string              `json:"messageId"`
	RoomID      string              `json:"roomId,omitempty"`
	RecipientID string              `json:"recipientId,omitempty"`
	Reactions   map[string][]string `json:"reactions"`
}

// ReadUpdate is the payload of a message-read event.
type ReadUpdate struct {
	MessageID   string   `json:"messageId"`
	RoomID      string   `json:"roomId,omitempty"`
	RecipientID string   `json:"recipientId,omitempty"`
	ReadBy      []string `json:"readBy"`
}

// fanOut hands the event to the transport for every logical recipient.
// Per-recipient delivery failures are the transport's concern and never
// propagate back to the mutation that produced the event.
func (r *Router) fanOut(recipients []string, evt event.Event) {
	for _, uid := range recipients {
		r.pusher.PushUser(uid, evt)
	}
}

// recipientsOf resolves the current logical recipient set of a message.
func (r *Router) recipientsOf(m Message) []string {
	if m.RoomID != "" {
		members, err := r.directory.MembersOf(m.RoomID)
		if err != nil {
			r.logger.Warn().
				Str("room_id", m.RoomID).
				Msg("Fan-out target room no longer resolvable.")
			return nil
		}
		return members
	}
	return []string{m.SenderID, m.RecipientID}
}

// conversationFor returns the sequence state for the key, creating it on first use.
func (r *Router) conversationFor(key string) *conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.convs[key]
	if !ok {
		conv = &conversation{}
		r.convs[key] = conv
	}
	return conv
}

// entryFor looks up a routed message by ID.
func (r *Router) entryFor(messageID string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.index[messageID]
	return e, ok
}

// snapshotOf deep-copies the message's mutable sets so callers and the
// transport can serialize it without holding the entry lock.
func snapshotOf(m *Message) Message {
	out := *m

	out.Reactions = make(map[string][]string, len(m.Reactions))
	for emoji, users := range m.Reactions {
		out.Reactions[emoji] = slices.Clone(users)
	}
	out.ReadBy = slices.Clone(m.ReadBy)

	return out
}
