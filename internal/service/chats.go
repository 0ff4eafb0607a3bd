package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/repository"
)

// Summarizer condenses a transcript; nil means no summary is available.
type Summarizer interface {
	Summarize(ctx context.Context, history []model.Message) *model.Summary
}

// Publisher fans a stored message out to the other clients.
type Publisher interface {
	PublishMessage(ctx context.Context, chatID string, m model.Message) error
}

// Chats persists conversations and serves transcript operations.
type Chats struct {
	repo  repository.ChatRepository
	ai    Summarizer
	pub   Publisher
	owner func() string
	now   func() time.Time
	log   *zap.Logger
}

// ChatsOption configures a Chats service.
type ChatsOption func(*Chats)

// WithPublisher announces every persisted message through p.
func WithPublisher(p Publisher) ChatsOption {
	return func(s *Chats) { s.pub = p }
}

// NewChats constructs a Chats service. owner returns the current user id.
func NewChats(repo repository.ChatRepository, ai Summarizer, owner func() string, log *zap.Logger, opts ...ChatsOption) *Chats {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Chats{repo: repo, ai: ai, owner: owner, now: time.Now, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PersistMessage validates m, stores it remotely and then publishes it.
// A failed publish is logged only: the row is already durable and peers pick
// it up on their next hydrate. It satisfies the composer's Persister.
func (s *Chats) PersistMessage(ctx context.Context, chatID string, m model.Message) error {
	if chatID == "" || m.ID == "" {
		return errors.New("validation: empty chat/message id")
	}
	if !m.Type.Valid() {
		return fmt.Errorf("validation: unknown message type %q", m.Type)
	}
	if m.CreatedAt <= 0 {
		return errors.New("validation: missing created_at")
	}
	if m.Text == "" && m.Metadata == nil {
		return errors.New("validation: empty message")
	}
	if err := s.repo.CreateMessage(ctx, chatID, m); err != nil {
		return err
	}
	s.publish(ctx, chatID, m)
	return nil
}

func (s *Chats) publish(ctx context.Context, chatID string, m model.Message) {
	if s.pub == nil {
		return
	}
	err := s.pub.PublishMessage(ctx, chatID, m)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrNotConnected):
		s.log.Debug("chats - publish - offline", zap.String("message", m.ID))
	default:
		s.log.Warn("chats - publish - failed", zap.String("message", m.ID), zap.Error(err))
	}
}

// CreateChat stores a new chat owned by the current user.
func (s *Chats) CreateChat(ctx context.Context, c model.ChatSession) error {
	owner := s.owner()
	if owner == "" {
		return errs.ErrUnauthorized
	}
	if c.ID == "" || c.Participant.Name == "" {
		return errors.New("validation: chat needs id and participant name")
	}
	return s.repo.CreateChat(ctx, owner, c)
}

// List returns the current user's chats with live messages.
func (s *Chats) List(ctx context.Context) ([]model.ChatSession, error) {
	owner := s.owner()
	if owner == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.repo.ListChats(ctx, owner, s.now())
}

// Summarize fetches the live transcript of chatID and asks the assistant to
// condense it. A nil summary with a nil error means the assistant could not
// answer.
func (s *Chats) Summarize(ctx context.Context, chatID string) (*model.Summary, error) {
	if chatID == "" {
		return nil, errors.New("validation: empty chat id")
	}
	msgs, err := s.repo.GetMessages(ctx, chatID, s.now())
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("chat %s has no messages: %w", chatID, errs.ErrNotFound)
	}
	if s.ai == nil {
		return nil, nil
	}
	return s.ai.Summarize(ctx, msgs), nil
}

// PurgeExpired removes expired messages from remote storage.
func (s *Chats) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Warn("chats - purge expired - failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.log.Debug("chats - purge expired - ok", zap.Int64("deleted", n))
	}
	return n, nil
}
