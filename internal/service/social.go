package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/repository"
	"github.com/and161185/bazaar/internal/store"
)

// Social pairs the chat, space and story actions of the store with their
// remote writes. Either repository may be nil, in which case only the store
// changes.
type Social struct {
	st      *store.Store
	chats   repository.ChatRepository
	catalog repository.CatalogRepository
	log     *zap.Logger
}

// NewSocial wires a Social service.
func NewSocial(st *store.Store, chats repository.ChatRepository, catalog repository.CatalogRepository, log *zap.Logger) *Social {
	if log == nil {
		log = zap.NewNop()
	}
	return &Social{st: st, chats: chats, catalog: catalog, log: log}
}

// StartChat opens the one-to-one chat with contact. An existing session with
// that participant is selected instead of creating a second one.
func (s *Social) StartChat(ctx context.Context, contact model.User) (model.ChatSession, error) {
	state := s.st.State()
	if state.CurrentUser == nil {
		return model.ChatSession{}, errs.ErrUnauthorized
	}
	if contact.ID == "" || contact.Name == "" {
		return model.ChatSession{}, fmt.Errorf("validation: contact needs id and name")
	}
	if c, ok := state.ChatWith(contact.ID); ok {
		s.st.Dispatch(store.SelectChat{ChatID: c.ID})
		return c, nil
	}

	c := model.ChatSession{ID: s.st.NewID(), Participant: contact}
	if s.chats != nil {
		if err := s.chats.CreateChat(ctx, state.CurrentUser.ID, c); err != nil {
			s.log.Warn("social - create chat - failed", zap.String("contact", contact.ID), zap.Error(err))
			return model.ChatSession{}, fmt.Errorf("create chat: %w", err)
		}
	}
	s.st.Dispatch(store.AddChat{Chat: c})
	return c, nil
}

// ToggleSpace joins spaceID, or leaves it when already joined. The store is
// updated first and rolled back when the remote write fails.
func (s *Social) ToggleSpace(ctx context.Context, spaceID string) (model.Space, error) {
	state := s.st.State()
	if state.CurrentUser == nil {
		return model.Space{}, errs.ErrUnauthorized
	}
	sp, ok := findSpace(state.Spaces, spaceID)
	if !ok {
		return model.Space{}, fmt.Errorf("space %s: %w", spaceID, errs.ErrNotFound)
	}
	s.st.Dispatch(store.JoinSpace{SpaceID: spaceID})
	if s.catalog != nil {
		if err := s.catalog.SetMembership(ctx, spaceID, state.CurrentUser.ID, !sp.Joined); err != nil {
			s.log.Warn("social - set membership - failed", zap.String("space", spaceID), zap.Error(err))
			s.st.Dispatch(store.JoinSpace{SpaceID: spaceID})
			return sp, fmt.Errorf("set membership: %w", err)
		}
	}
	sp, _ = findSpace(s.st.State().Spaces, spaceID)
	return sp, nil
}

// ViewStory marks storyID as seen locally and remotely. Viewing is one way,
// so a failed remote write leaves the local flag set.
func (s *Social) ViewStory(ctx context.Context, storyID string) error {
	state := s.st.State()
	if state.CurrentUser == nil {
		return errs.ErrUnauthorized
	}
	found := false
	for _, st := range state.Stories {
		if st.ID == storyID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("story %s: %w", storyID, errs.ErrNotFound)
	}
	s.st.Dispatch(store.MarkStoryViewed{StoryID: storyID})
	if s.catalog == nil {
		return nil
	}
	if err := s.catalog.MarkStoryViewed(ctx, storyID, state.CurrentUser.ID); err != nil {
		s.log.Warn("social - mark story viewed - failed", zap.String("story", storyID), zap.Error(err))
		return fmt.Errorf("mark story viewed: %w", err)
	}
	return nil
}

func findSpace(spaces []model.Space, id string) (model.Space, bool) {
	for _, sp := range spaces {
		if sp.ID == id {
			return sp, true
		}
	}
	return model.Space{}, false
}
