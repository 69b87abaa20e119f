package chat

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository is the Postgres-backed MessageStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveRoomMessage(ctx context.Context, msg *Message) (*Message, error) {
	query := `
		INSERT INTO messages (room_id, sender_id, sender_name, content, message_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, msg.MessageType,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert room message: %w", err)
	}
	return msg, nil
}

func (r *Repository) SavePrivateMessage(ctx context.Context, msg *Message) (*Message, error) {
	query := `
		INSERT INTO messages (sender_id, sender_name, receiver_id, content, message_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		msg.SenderID, msg.SenderName, msg.ReceiverID, msg.Content, msg.MessageType,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert private message: %w", err)
	}
	return msg, nil
}

// UpsertPrivateChat creates or refreshes the one summary row per user pair.
// The pair is stored lexicographically ordered so (a,b) and (b,a) hit the
// same row.
func (r *Repository) UpsertPrivateChat(ctx context.Context, userA, userB string, lastMessageID int64) error {
	if userB < userA {
		userA, userB = userB, userA
	}
	query := `
		INSERT INTO private_chats (user_a, user_b, last_message_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_a, user_b)
		DO UPDATE SET last_message_id = EXCLUDED.last_message_id, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, userA, userB, lastMessageID); err != nil {
		return fmt.Errorf("upsert private chat: %w", err)
	}
	return nil
}

func (r *Repository) MarkMessageRead(ctx context.Context, messageID int64) error {
	query := `UPDATE messages SET read = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, messageID); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// MarkChatRead flips the read flag on every message the other user sent to
// this user.
func (r *Repository) MarkChatRead(ctx context.Context, userID, otherUserID string) error {
	query := `
		UPDATE messages SET read = TRUE
		WHERE receiver_id = $1 AND sender_id = $2 AND read = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, userID, otherUserID); err != nil {
		return fmt.Errorf("mark chat read: %w", err)
	}
	return nil
}

// RoomMessages returns the room's newest messages, newest first. The router
// reverses them to chronological order before replying.
func (r *Repository) RoomMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, room_id, sender_id, sender_name, content, message_type, read, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query room messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName,
			&msg.Content, &msg.MessageType, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *Repository) PrivateMessages(ctx context.Context, userID, otherUserID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, sender_id, sender_name, receiver_id, content, message_type, read, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, otherUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query private messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.ReceiverID,
			&msg.Content, &msg.MessageType, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// TouchRoomLastSeen records when the user last deliberately left the room,
// the anchor for unread counts.
func (r *Repository) TouchRoomLastSeen(ctx context.Context, roomID, userID string) error {
	query := `
		INSERT INTO room_members (room_id, user_id, last_seen_at)
		VALUES ($1, $2, now())
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET last_seen_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, roomID, userID); err != nil {
		return fmt.Errorf("touch room last seen: %w", err)
	}
	return nil
}
