package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/store"
)

func fullRepos() Repos {
	return Repos{
		Users: &fakeUsers{contacts: []model.User{{ID: "u1", Name: "Ann"}}},
		Chats: &fakeChats{chats: []model.ChatSession{{ID: "c1", Participant: model.User{ID: "u1", Name: "Ann"}}}},
		Catalog: &fakeCatalog{
			products: []model.Product{{ID: "p1"}},
			spaces:   []model.Space{{ID: "s1"}},
			stories:  []model.Story{{ID: "st1"}},
		},
		Wallet: &fakeWallet{txs: []model.Transaction{{ID: "t1"}}},
	}
}

func countSetData(st *store.Store) *int {
	n := new(int)
	prev := st.State()
	st.Subscribe(func(next store.State) {
		// SetData is the only action that replaces the contacts slice
		if len(next.Contacts) != len(prev.Contacts) {
			*n++
		}
		prev = next
	})
	return n
}

func TestSession_Login_HydratesOnceAndConnects(t *testing.T) {
	st := store.New(zaptest.NewLogger(t))
	auth := &fakeAuth{user: &model.User{ID: "me", Name: "Me"}, token: "tok"}
	rt := &fakeRT{}
	toast := &fakeToaster{}
	sets := countSetData(st)

	s := NewSession(st, auth, rt, fullRepos(), toast, zaptest.NewLogger(t))
	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	got := st.State()
	if got.Screen != store.ScreenMain || got.CurrentUser == nil || got.CurrentUser.ID != "me" {
		t.Fatalf("not logged in: %+v", got)
	}
	if got.IsLoading {
		t.Fatalf("loading flag left on")
	}
	if len(got.Chats) != 1 || len(got.Contacts) != 1 || len(got.Products) != 1 ||
		len(got.Spaces) != 1 || len(got.Transactions) != 1 || len(got.Stories) != 1 {
		t.Fatalf("hydrate incomplete: %+v", got)
	}
	if *sets != 1 {
		t.Fatalf("want exactly one bulk hydrate, got %d", *sets)
	}
	if !rt.connected || rt.token != "tok" {
		t.Fatalf("realtime not connected with token")
	}
	if len(toast.msgs) != 0 {
		t.Fatalf("unexpected toasts: %v", toast.msgs)
	}
}

func TestSession_Login_NoSession(t *testing.T) {
	st := store.New(nil)
	s := NewSession(st, &fakeAuth{}, &fakeRT{}, fullRepos(), nil, nil)

	err := s.Login(context.Background())
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if st.State().Screen != store.ScreenLogin {
		t.Fatalf("want login screen, got %s", st.State().Screen)
	}

	s = NewSession(st, &fakeAuth{err: errors.New("disk")}, nil, fullRepos(), nil, nil)
	if err := s.Login(context.Background()); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want wrapped auth error, got %v", err)
	}
}

func TestSession_Login_HydrateFailureStaysOnMain(t *testing.T) {
	st := store.New(nil)
	repos := fullRepos()
	repos.Catalog = &fakeCatalog{err: errors.New("timeout")}
	toast := &fakeToaster{}

	s := NewSession(st, &fakeAuth{user: &model.User{ID: "me"}, token: "tok"}, &fakeRT{}, repos, toast, nil)
	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	got := st.State()
	if got.Screen != store.ScreenMain {
		t.Fatalf("want main screen, got %s", got.Screen)
	}
	if len(got.Chats) != 0 || len(got.Contacts) != 0 {
		t.Fatalf("partial hydrate leaked into state")
	}
	if len(toast.msgs) != 1 || toast.msgs[0] != MsgHydrateFailed {
		t.Fatalf("want hydrate toast, got %v", toast.msgs)
	}
}

func TestSession_Login_RealtimeFailureToasts(t *testing.T) {
	st := store.New(nil)
	toast := &fakeToaster{}
	s := NewSession(st, &fakeAuth{user: &model.User{ID: "me"}, token: "tok"},
		&fakeRT{err: errors.New("refused")}, fullRepos(), toast, nil)

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(toast.msgs) != 1 || toast.msgs[0] != MsgRealtimeFailed {
		t.Fatalf("want realtime toast, got %v", toast.msgs)
	}

	// an unconfigured transport is silent
	toast.msgs = nil
	s = NewSession(store.New(nil), &fakeAuth{user: &model.User{ID: "me"}, token: "tok"},
		&fakeRT{err: errs.ErrNotConfigured}, fullRepos(), toast, nil)
	_ = s.Login(context.Background())
	if len(toast.msgs) != 0 {
		t.Fatalf("unexpected toast: %v", toast.msgs)
	}
}

func TestSession_Hydrate_NotConfigured(t *testing.T) {
	s := NewSession(store.New(nil), &fakeAuth{}, nil, Repos{}, nil, nil)
	if _, err := s.Hydrate(context.Background(), "me"); !errors.Is(err, errs.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestSession_LogoutKeepsTheme(t *testing.T) {
	st := store.New(nil)
	st.Dispatch(store.SetTheme{Theme: store.ThemeDark})
	auth := &fakeAuth{user: &model.User{ID: "me"}, token: "tok"}
	rt := &fakeRT{}
	s := NewSession(st, auth, rt, fullRepos(), nil, nil)
	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := s.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	got := st.State()
	if got.CurrentUser != nil || len(got.Chats) != 0 {
		t.Fatalf("store not reset: %+v", got)
	}
	if got.Theme != store.ThemeDark {
		t.Fatalf("theme lost on logout")
	}
	if rt.connected || !auth.loggedOut {
		t.Fatalf("logout did not disconnect/clear auth")
	}
}

func TestSession_WatchAuth(t *testing.T) {
	st := store.New(nil)
	auth := &fakeAuth{user: &model.User{ID: "me"}, token: "tok"}
	rt := &fakeRT{}
	s := NewSession(st, auth, rt, fullRepos(), nil, nil)
	stop := s.WatchAuth()
	defer stop()

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_ = auth.Logout() // session removed behind our back

	if st.State().CurrentUser != nil {
		t.Fatalf("store still signed in")
	}
	if rt.disc == 0 {
		t.Fatalf("realtime not disconnected")
	}
}

func TestSession_WatchRealtime_DropToasts(t *testing.T) {
	rt := &fakeRT{}
	toast := &fakeToaster{}
	s := NewSession(store.New(nil), &fakeAuth{user: &model.User{ID: "me"}, token: "tok"}, rt, fullRepos(), toast, nil)
	stop := s.WatchRealtime()

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	rt.drop(errors.New("ws read: EOF"))
	if len(toast.msgs) != 1 || toast.msgs[0] != MsgRealtimeFailed {
		t.Fatalf("want realtime toast after drop, got %v", toast.msgs)
	}

	stop()
	rt.drop(errors.New("again"))
	if len(toast.msgs) != 1 {
		t.Fatalf("toast after stop: %v", toast.msgs)
	}

	// without drop reporting there is nothing to watch
	s = NewSession(store.New(nil), &fakeAuth{}, nil, Repos{}, toast, nil)
	s.WatchRealtime()()
}

func TestWallet_Record(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeWallet{}
	owner := ""
	w := NewWallet(repo, func() string { return owner })
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	ok := model.Transaction{ID: "t1", Type: model.TxSent, Amount: 5, Entity: "Ann"}
	if err := w.Record(ctx, ok); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	owner = "me"

	bad := []model.Transaction{
		{Type: model.TxSent, Amount: 1},
		{ID: "t", Type: model.TxSent, Amount: 0},
		{ID: "t", Type: model.TxSent, Amount: -3},
		{ID: "t", Type: "gift", Amount: 1},
	}
	for i, tx := range bad {
		if err := w.Record(ctx, tx); err == nil {
			t.Fatalf("case %d: want validation error", i)
		}
	}
	if len(repo.txs) != 0 {
		t.Fatalf("repo called on invalid input")
	}

	if err := w.Record(ctx, ok); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if repo.owner != "me" || !repo.txs[0].Date.Equal(fixed) {
		t.Fatalf("not forwarded: %+v", repo)
	}

	h, err := w.History(ctx)
	if err != nil || len(h) != 1 {
		t.Fatalf("History: %v %v", h, err)
	}
}

func TestChats_PersistMessage_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeChats{}
	s := NewChats(repo, nil, func() string { return "me" }, nil)

	bad := []struct {
		chat string
		m    model.Message
	}{
		{"", model.Message{ID: "m", Type: model.MessageText, Text: "x", CreatedAt: 1}},
		{"c", model.Message{Type: model.MessageText, Text: "x", CreatedAt: 1}},
		{"c", model.Message{ID: "m", Type: "fax", Text: "x", CreatedAt: 1}},
		{"c", model.Message{ID: "m", Type: model.MessageText, Text: "x"}},
		{"c", model.Message{ID: "m", Type: model.MessageText, CreatedAt: 1}},
	}
	for i, b := range bad {
		if err := s.PersistMessage(ctx, b.chat, b.m); err == nil {
			t.Fatalf("case %d: want validation error", i)
		}
	}

	loc := model.Message{ID: "m", Type: model.MessageLocation, CreatedAt: 1, Metadata: &model.Metadata{Lat: 1}}
	if err := s.PersistMessage(ctx, "c", loc); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("repo not called")
	}
}

func TestChats_PersistMessage_Publishes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := model.Message{ID: "m1", SenderID: "me", Type: model.MessageText, Text: "hi", CreatedAt: 1}

	repo, pub := &fakeChats{}, &fakePublisher{}
	s := NewChats(repo, nil, func() string { return "me" }, zaptest.NewLogger(t), WithPublisher(pub))
	if err := s.PersistMessage(ctx, "c1", m); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}
	if len(pub.msgs) != 1 || pub.chats[0] != "c1" || pub.msgs[0].ID != "m1" {
		t.Fatalf("message not published: %+v", pub)
	}

	// nothing is announced when the write fails
	failing := &fakePublisher{}
	s = NewChats(&fakeChats{err: errors.New("db down")}, nil, func() string { return "me" }, nil, WithPublisher(failing))
	if err := s.PersistMessage(ctx, "c1", m); err == nil {
		t.Fatalf("want repo error")
	}
	if len(failing.msgs) != 0 {
		t.Fatalf("published an unsaved message")
	}

	// a publish failure does not fail the persist
	for _, perr := range []error{errs.ErrNotConnected, errors.New("broken pipe")} {
		s = NewChats(&fakeChats{}, nil, func() string { return "me" }, zaptest.NewLogger(t), WithPublisher(&fakePublisher{err: perr}))
		if err := s.PersistMessage(ctx, "c1", m); err != nil {
			t.Fatalf("publish error %v leaked: %v", perr, err)
		}
	}
}

func TestChats_CreateListPurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeChats{purged: 4}
	owner := ""
	s := NewChats(repo, nil, func() string { return owner }, zaptest.NewLogger(t))

	if err := s.CreateChat(ctx, model.ChatSession{ID: "c"}); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := s.List(ctx); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	owner = "me"
	if err := s.CreateChat(ctx, model.ChatSession{ID: "c"}); err == nil {
		t.Fatalf("want validation error for missing participant")
	}
	if err := s.CreateChat(ctx, model.ChatSession{ID: "c", Participant: model.User{Name: "Ann"}}); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if repo.owner != "me" || len(repo.newChats) != 1 {
		t.Fatalf("CreateChat not forwarded")
	}
	n, err := s.PurgeExpired(ctx)
	if err != nil || n != 4 {
		t.Fatalf("PurgeExpired: %d %v", n, err)
	}
}

func TestChats_Summarize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	msgs := []model.Message{{ID: "m1", Text: "lunch?"}}
	ai := &fakeSummarizer{out: &model.Summary{Summary: "lunch plans"}}
	s := NewChats(&fakeChats{msgs: msgs}, ai, func() string { return "me" }, nil)

	sum, err := s.Summarize(ctx, "c1")
	if err != nil || sum == nil || sum.Summary != "lunch plans" {
		t.Fatalf("Summarize: %+v %v", sum, err)
	}
	if len(ai.got) != 1 {
		t.Fatalf("history not forwarded")
	}

	if _, err := s.Summarize(ctx, ""); err == nil {
		t.Fatalf("want validation error")
	}
	empty := NewChats(&fakeChats{}, ai, func() string { return "me" }, nil)
	if _, err := empty.Summarize(ctx, "c1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	noAI := NewChats(&fakeChats{msgs: msgs}, nil, func() string { return "me" }, nil)
	if sum, err := noAI.Summarize(ctx, "c1"); sum != nil || err != nil {
		t.Fatalf("want nil summary without assistant")
	}
}
