package service

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/repository"
)

type fakeUsers struct {
	mu       sync.Mutex
	byID     map[string]model.User
	contacts []model.User
	err      error
	upserted []model.User
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Upsert(_ context.Context, u model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, u)
	if f.byID == nil {
		f.byID = map[string]model.User{}
	}
	f.byID[u.ID] = u
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}
func (f *fakeUsers) ListContacts(context.Context, string) ([]model.User, error) {
	return f.contacts, f.err
}
func (f *fakeUsers) AddContact(context.Context, string, string) error { return nil }

type fakeChats struct {
	chats    []model.ChatSession
	msgs     []model.Message
	err      error
	created  []model.Message
	newChats []model.ChatSession
	owner    string
	purged   int64
}

var _ repository.ChatRepository = (*fakeChats)(nil)

func (f *fakeChats) ListChats(_ context.Context, owner string, _ time.Time) ([]model.ChatSession, error) {
	f.owner = owner
	return f.chats, f.err
}
func (f *fakeChats) CreateChat(_ context.Context, owner string, c model.ChatSession) error {
	f.owner = owner
	f.newChats = append(f.newChats, c)
	return f.err
}
func (f *fakeChats) CreateMessage(_ context.Context, _ string, m model.Message) error {
	f.created = append(f.created, m)
	return f.err
}
func (f *fakeChats) GetMessages(context.Context, string, time.Time) ([]model.Message, error) {
	return f.msgs, f.err
}
func (f *fakeChats) DeleteExpired(context.Context, time.Time) (int64, error) { return f.purged, f.err }

type fakeCatalog struct {
	products []model.Product
	spaces   []model.Space
	stories  []model.Story
	err      error
	writeErr error
	members  map[string]bool
	viewed   []string
}

var _ repository.CatalogRepository = (*fakeCatalog)(nil)

func (f *fakeCatalog) ListProducts(context.Context) ([]model.Product, error) {
	return f.products, f.err
}
func (f *fakeCatalog) CreateProduct(context.Context, model.Product) error { return nil }
func (f *fakeCatalog) ListSpaces(context.Context, string) ([]model.Space, error) {
	return f.spaces, nil
}
func (f *fakeCatalog) CreateSpace(context.Context, model.Space) error { return nil }
func (f *fakeCatalog) SetMembership(_ context.Context, spaceID, userID string, joined bool) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.members == nil {
		f.members = map[string]bool{}
	}
	f.members[spaceID+"/"+userID] = joined
	return nil
}
func (f *fakeCatalog) ListStories(context.Context, string) ([]model.Story, error) {
	return f.stories, nil
}
func (f *fakeCatalog) CreateStory(context.Context, model.Story) error { return nil }
func (f *fakeCatalog) MarkStoryViewed(_ context.Context, storyID, viewerID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.viewed = append(f.viewed, storyID+"/"+viewerID)
	return nil
}

type fakeWallet struct {
	txs   []model.Transaction
	owner string
	err   error
}

var _ repository.WalletRepository = (*fakeWallet)(nil)

func (f *fakeWallet) ListTransactions(context.Context, string) ([]model.Transaction, error) {
	return f.txs, nil
}
func (f *fakeWallet) CreateTransaction(_ context.Context, owner string, tx model.Transaction) error {
	f.owner = owner
	f.txs = append(f.txs, tx)
	return f.err
}

type fakeAuth struct {
	mu        sync.Mutex
	user      *model.User
	token     string
	err       error
	loggedOut bool
	subs      []func(*model.User)
	signedIn  string
}

var _ Auth = (*fakeAuth)(nil)

func (f *fakeAuth) CurrentUser() (*model.User, error) { return f.user, f.err }
func (f *fakeAuth) Token() (string, error)            { return f.token, nil }
func (f *fakeAuth) Logout() error {
	f.mu.Lock()
	f.loggedOut = true
	f.user = nil
	subs := make([]func(*model.User), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(nil)
	}
	return nil
}
func (f *fakeAuth) OnAuthStateChanged(fn func(*model.User)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	i := len(f.subs) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subs[i] = func(*model.User) {}
	}
}
func (f *fakeAuth) SignIn(token string, u model.User) error {
	f.signedIn = token
	f.user = &u
	return nil
}

type fakeRT struct {
	connected bool
	token     string
	err       error
	disc      int
	drops     []func(error)
}

func (f *fakeRT) Connect(_ context.Context, token string) error {
	if f.err != nil {
		return f.err
	}
	f.connected, f.token = true, token
	return nil
}
func (f *fakeRT) Disconnect() error {
	f.connected = false
	f.disc++
	return nil
}

func (f *fakeRT) OnDrop(fn func(error)) func() {
	f.drops = append(f.drops, fn)
	i := len(f.drops) - 1
	return func() { f.drops[i] = nil }
}

func (f *fakeRT) drop(err error) {
	f.connected = false
	for _, fn := range f.drops {
		if fn != nil {
			fn(err)
		}
	}
}

type fakePublisher struct {
	chats []string
	msgs  []model.Message
	err   error
}

func (f *fakePublisher) PublishMessage(_ context.Context, chatID string, m model.Message) error {
	if f.err != nil {
		return f.err
	}
	f.chats = append(f.chats, chatID)
	f.msgs = append(f.msgs, m)
	return nil
}

type fakeToaster struct{ msgs []string }

func (f *fakeToaster) Error(msg string) string {
	f.msgs = append(f.msgs, msg)
	return "n"
}

type fakeSummarizer struct {
	got []model.Message
	out *model.Summary
}

func (f *fakeSummarizer) Summarize(_ context.Context, h []model.Message) *model.Summary {
	f.got = h
	return f.out
}
