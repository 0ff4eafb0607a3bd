package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

// ChatRepo implements ChatRepository using PostgreSQL.
type ChatRepo struct{ db *DB }

// NewChatRepo constructs a chat repository.
func NewChatRepo(db *DB) *ChatRepo { return &ChatRepo{db: db} }

const messageCols = `chat_id, id, sender_id, text, type, metadata, reply_to, reactions, is_starred, created_at, expires_at`

// ListChats returns owner's chats, newest first, each with its live messages.
func (r *ChatRepo) ListChats(ctx context.Context, ownerID string, now time.Time) ([]model.ChatSession, error) {
	const q = `
SELECT id, participant_id, participant_name, participant_avatar, participant_status,
       is_group, disappearing_mode, wallpaper, unread
FROM chats WHERE owner_id=$1
ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	out := []model.ChatSession{}
	ids := []string{}
	for rows.Next() {
		var c model.ChatSession
		if err := rows.Scan(&c.ID, &c.Participant.ID, &c.Participant.Name, &c.Participant.Avatar,
			&c.Participant.Status, &c.IsGroup, &c.DisappearingMode, &c.Wallpaper, &c.Unread); err != nil {
			rows.Close()
			return nil, err
		}
		c.Messages = []model.Message{}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	const mq = `SELECT ` + messageCols + `
FROM messages
WHERE chat_id = ANY($1) AND (expires_at IS NULL OR expires_at > $2)
ORDER BY chat_id, created_at ASC, id ASC`
	byChat, err := r.queryMessages(ctx, mq, ids, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Messages = append(out[i].Messages, byChat[out[i].ID]...)
		if n := len(out[i].Messages); n > 0 {
			tail := out[i].Messages[n-1]
			out[i].LastMessage = tail.Preview()
			out[i].LastTime = tail.Timestamp
		}
	}
	return out, nil
}

// GetMessages returns the live messages of one chat.
func (r *ChatRepo) GetMessages(ctx context.Context, chatID string, now time.Time) ([]model.Message, error) {
	const q = `SELECT ` + messageCols + `
FROM messages
WHERE chat_id=$1 AND (expires_at IS NULL OR expires_at > $2)
ORDER BY created_at ASC, id ASC`
	byChat, err := r.queryMessages(ctx, q, chatID, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	ms := byChat[chatID]
	if ms == nil {
		ms = []model.Message{}
	}
	return ms, nil
}

func (r *ChatRepo) queryMessages(ctx context.Context, q string, args ...any) (map[string][]model.Message, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]model.Message{}
	for rows.Next() {
		var (
			chatID                 string
			m                      model.Message
			meta, reply, reactions []byte
		)
		if err := rows.Scan(&chatID, &m.ID, &m.SenderID, &m.Text, &m.Type, &meta, &reply, &reactions,
			&m.IsStarred, &m.CreatedAt, &m.ExpiresAt); err != nil {
			return nil, err
		}
		if err := unmarshalOpt(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("message %s metadata: %w", m.ID, err)
		}
		if err := unmarshalOpt(reply, &m.ReplyTo); err != nil {
			return nil, fmt.Errorf("message %s reply_to: %w", m.ID, err)
		}
		if err := unmarshalOpt(reactions, &m.Reactions); err != nil {
			return nil, fmt.Errorf("message %s reactions: %w", m.ID, err)
		}
		m.Timestamp = model.FormatTimestamp(m.CreatedAt)
		out[chatID] = append(out[chatID], m)
	}
	return out, rows.Err()
}

// CreateChat inserts a chat row.
func (r *ChatRepo) CreateChat(ctx context.Context, ownerID string, c model.ChatSession) error {
	const q = `
INSERT INTO chats (id, owner_id, participant_id, participant_name, participant_avatar, participant_status,
                   is_group, disappearing_mode, wallpaper)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	p := c.Participant
	_, err := r.db.Pool.Exec(ctx, q, c.ID, ownerID, p.ID, p.Name, p.Avatar, p.Status,
		c.IsGroup, c.DisappearingMode, c.Wallpaper)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// CreateMessage appends m to chatID. Re-sending the same id is a no-op.
func (r *ChatRepo) CreateMessage(ctx context.Context, chatID string, m model.Message) error {
	meta, err := marshalOpt(m.Metadata != nil, m.Metadata)
	if err != nil {
		return err
	}
	reply, err := marshalOpt(m.ReplyTo != nil, m.ReplyTo)
	if err != nil {
		return err
	}
	reactions, err := marshalOpt(len(m.Reactions) > 0, m.Reactions)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO messages (` + messageCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (chat_id, id) DO NOTHING`
	_, err = r.db.Pool.Exec(ctx, q, chatID, m.ID, m.SenderID, m.Text, string(m.Type),
		meta, reply, reactions, m.IsStarred, m.CreatedAt, m.ExpiresAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("chat %s: %w", chatID, errs.ErrNotFound)
	}
	return err
}

// DeleteExpired purges messages whose deadline is at or before now.
func (r *ChatRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM messages WHERE expires_at IS NOT NULL AND expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetDisappearing toggles the disappearing mode of a chat. Deadlines already
// stamped on messages are left as they are.
func (r *ChatRepo) SetDisappearing(ctx context.Context, chatID string, on bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE chats SET disappearing_mode=$2 WHERE id=$1`, chatID, on)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func marshalOpt(present bool, v any) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalOpt(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
