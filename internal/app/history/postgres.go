package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatflow/internal/app/message"
)

// PostgresStore persists conversation history in the messages table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore over an initialized pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append durably records the message. Reactions and read receipts are stored as
// written at append time; their later growth lives in the router's in-memory
// index for the current server session.
func (s *PostgresStore) Append(ctx context.Context, m *message.Message) error {
	key := message.ConversationKey(m.RoomID, m.SenderID, m.RecipientID)

	reactions, err := json.Marshal(m.Reactions)
	if err != nil {
		return fmt.Errorf("failed to encode reactions: %w", err)
	}

	readBy, err := json.Marshal(m.ReadBy)
	if err != nil {
		return fmt.Errorf("failed to encode read receipts: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (
			id, conversation_key, room_id, recipient_id, sender_id,
			content, kind, file_ref, seq, created_at, reactions, read_by
		) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)`,
		m.ID, key, m.RoomID, m.RecipientID, m.SenderID,
		m.Content, string(m.Kind), m.FileRef, m.Seq, m.CreatedAt, reactions, readBy,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

// FetchHistory returns up to limit messages with Seq < beforeSeq in ascending
// Seq order. beforeSeq <= 0 selects the newest messages.
func (s *PostgresStore) FetchHistory(ctx context.Context, conversationKey string, beforeSeq int64, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(room_id, ''), COALESCE(recipient_id, ''), sender_id,
		       content, kind, COALESCE(file_ref, ''), seq, created_at, reactions, read_by
		FROM messages
		WHERE conversation_key = $1
		  AND ($2 <= 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3`,
		conversationKey, beforeSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []message.Message
	for rows.Next() {
		var m message.Message
		var kind string
		var reactions, readBy []byte

		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.RecipientID, &m.SenderID,
			&m.Content, &kind, &m.FileRef, &m.Seq, &m.CreatedAt, &reactions, &readBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		m.Kind = message.Kind(kind)
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, fmt.Errorf("failed to decode reactions: %w", err)
		}
		if err := json.Unmarshal(readBy, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("failed to decode read receipts: %w", err)
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	// Rows arrive newest-first for the LIMIT; callers get ascending Seq.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}
