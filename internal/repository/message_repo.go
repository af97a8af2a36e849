package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roomchat/roomchat/internal/model"
)

// Record is a stored room message.
type Record struct {
	ID   int64
	Room string
	model.Message
}

// MessageRepository provides data access for room history.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores a room message and returns its ID.
func (r *MessageRepository) Append(ctx context.Context, room string, msg model.Message) (int64, error) {
	query := `
		INSERT INTO messages (room, sender, text, sent_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, room, msg.Sender, msg.Text, msg.Time.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}
	return id, nil
}

// Get retrieves a stored message by its ID.
func (r *MessageRepository) Get(ctx context.Context, id int64) (*Record, error) {
	query := `
		SELECT id, room, sender, text, sent_at
		FROM messages
		WHERE id = ?
	`

	rec := &Record{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Room, &rec.Sender, &rec.Text, &rec.Time)
	if err == sql.ErrNoRows {
		return nil, model.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit of the newest messages in room, oldest first.
// A non-positive limit returns nothing.
func (r *MessageRepository) Recent(ctx context.Context, room string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}

	query := `
		SELECT sender, text, sent_at
		FROM messages
		WHERE room = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.Sender, &m.Text, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Count returns the number of stored messages in room.
func (r *MessageRepository) Count(ctx context.Context, room string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room = ?`, room).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
