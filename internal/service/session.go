// Package service contains application services that sit between the store
// and the remote collaborators.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/repository"
	"github.com/and161185/bazaar/internal/store"
)

// Auth is the identity collaborator.
type Auth interface {
	CurrentUser() (*model.User, error)
	Token() (string, error)
	Logout() error
	OnAuthStateChanged(fn func(*model.User)) (unsubscribe func())
}

// Realtime is the connection lifecycle of the realtime bridge.
type Realtime interface {
	Connect(ctx context.Context, token string) error
	Disconnect() error
}

// dropNotifier is implemented by realtime bridges that report lost connections.
type dropNotifier interface {
	OnDrop(fn func(error)) (off func())
}

// Toaster surfaces failures to the user.
type Toaster interface {
	Error(msg string) string
}

// Repos bundles the persistence collaborators used to hydrate a session.
type Repos struct {
	Users   repository.UserRepository
	Chats   repository.ChatRepository
	Catalog repository.CatalogRepository
	Wallet  repository.WalletRepository
}

// User-visible failure texts.
const (
	MsgHydrateFailed  = "Couldn't load your data. Pull to refresh later."
	MsgRealtimeFailed = "Live updates are unavailable right now."
)

// Session drives login, hydrate and logout against the store.
type Session struct {
	st    *store.Store
	auth  Auth
	rt    Realtime
	repos Repos
	toast Toaster
	log   *zap.Logger
}

// NewSession wires a Session. rt and toast may be nil.
func NewSession(st *store.Store, auth Auth, rt Realtime, repos Repos, toast Toaster, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{st: st, auth: auth, rt: rt, repos: repos, toast: toast, log: log}
}

// Login restores the persisted session. With no session the store is sent to
// the login screen and ErrUnauthorized is returned. A hydrate failure is not
// an error: the user lands on the main screen with empty lists and a toast.
func (s *Session) Login(ctx context.Context) error {
	s.st.Dispatch(store.SetLoading{Loading: true})
	defer s.st.Dispatch(store.SetLoading{Loading: false})

	u, err := s.auth.CurrentUser()
	if err != nil || u == nil {
		s.st.Dispatch(store.SetScreen{Screen: store.ScreenLogin})
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		return errs.ErrUnauthorized
	}
	if s.repos.Users != nil {
		if err := s.repos.Users.Upsert(ctx, *u); err != nil {
			s.log.Warn("session - upsert profile - failed", zap.Error(err))
		}
	}
	s.st.Dispatch(store.LoginSuccess{User: *u})

	snap, err := s.Hydrate(ctx, u.ID)
	if err != nil {
		s.log.Error("session - hydrate - failed", zap.String("user", u.ID), zap.Error(err))
		s.notify(MsgHydrateFailed)
	} else {
		s.st.Dispatch(store.SetData{Data: snap})
	}

	s.connect(ctx)
	return nil
}

// Hydrate fetches the six collections in parallel. Any failure fails the
// whole snapshot so the store never sees a partial hydrate.
func (s *Session) Hydrate(ctx context.Context, userID string) (model.Snapshot, error) {
	r := s.repos
	if r.Users == nil || r.Chats == nil || r.Catalog == nil || r.Wallet == nil {
		return model.Snapshot{}, fmt.Errorf("hydrate: %w", errs.ErrNotConfigured)
	}
	var snap model.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Chats, err = r.Chats.ListChats(gctx, userID, s.st.Now())
		return wrap("chats", err)
	})
	g.Go(func() (err error) {
		snap.Contacts, err = r.Users.ListContacts(gctx, userID)
		return wrap("contacts", err)
	})
	g.Go(func() (err error) {
		snap.Products, err = r.Catalog.ListProducts(gctx)
		return wrap("products", err)
	})
	g.Go(func() (err error) {
		snap.Spaces, err = r.Catalog.ListSpaces(gctx, userID)
		return wrap("spaces", err)
	})
	g.Go(func() (err error) {
		snap.Transactions, err = r.Wallet.ListTransactions(gctx, userID)
		return wrap("transactions", err)
	})
	g.Go(func() (err error) {
		snap.Stories, err = r.Catalog.ListStories(gctx, userID)
		return wrap("stories", err)
	})
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// Logout disconnects realtime, clears the persisted session and resets the
// store. The theme survives.
func (s *Session) Logout() error {
	var errOut error
	if s.rt != nil {
		if err := s.rt.Disconnect(); err != nil {
			s.log.Warn("session - disconnect - failed", zap.Error(err))
		}
	}
	if err := s.auth.Logout(); err != nil {
		errOut = fmt.Errorf("auth logout: %w", err)
	}
	s.st.Dispatch(store.Logout{})
	return errOut
}

// WatchAuth bounces the store to the login screen when the persisted
// session disappears. It returns the unsubscribe func.
func (s *Session) WatchAuth() (stop func()) {
	return s.auth.OnAuthStateChanged(func(u *model.User) {
		if u != nil || s.st.State().CurrentUser == nil {
			return
		}
		s.log.Info("session - auth lost - resetting")
		if s.rt != nil {
			_ = s.rt.Disconnect()
		}
		s.st.Dispatch(store.Logout{})
	})
}

// WatchRealtime toasts when an established realtime connection is lost. It is
// a no-op for transports that cannot report drops.
func (s *Session) WatchRealtime() (stop func()) {
	d, ok := s.rt.(dropNotifier)
	if !ok {
		return func() {}
	}
	return d.OnDrop(func(err error) {
		s.log.Warn("session - realtime - lost", zap.Error(err))
		s.notify(MsgRealtimeFailed)
	})
}

func (s *Session) connect(ctx context.Context) {
	if s.rt == nil {
		return
	}
	tok, err := s.auth.Token()
	if err == nil && tok == "" {
		err = errs.ErrUnauthorized
	}
	if err == nil {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = s.rt.Connect(cctx, tok)
		cancel()
	}
	if err != nil && !errors.Is(err, errs.ErrNotConfigured) {
		s.log.Warn("session - realtime connect - failed", zap.Error(err))
		s.notify(MsgRealtimeFailed)
	}
}

func (s *Session) notify(msg string) {
	if s.toast != nil {
		s.toast.Error(msg)
	}
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
