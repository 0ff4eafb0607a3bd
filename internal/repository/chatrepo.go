package repository

import (
	"context"
	"time"

	"github.com/and161185/bazaar/internal/model"
)

// ChatRepository stores conversations and their messages.
type ChatRepository interface {
	// ListChats returns owner's chats with their unexpired messages in
	// CreatedAt order. LastMessage/LastTime are derived from the tail.
	ListChats(ctx context.Context, ownerID string, now time.Time) ([]model.ChatSession, error)
	// CreateChat inserts a chat; a duplicate id yields errs.ErrAlreadyExists.
	CreateChat(ctx context.Context, ownerID string, c model.ChatSession) error
	// CreateMessage appends m to chatID; a duplicate id is ignored.
	CreateMessage(ctx context.Context, chatID string, m model.Message) error
	// GetMessages returns the unexpired messages of one chat.
	GetMessages(ctx context.Context, chatID string, now time.Time) ([]model.Message, error)
	// DeleteExpired removes messages whose deadline has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
