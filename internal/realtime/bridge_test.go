package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/store"
)

type fakeTransport struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	token       string
	push        func(Envelope)
	lost        func(error)
	sent        []Envelope
	connectErr  error
	closeErr    error
}

var _ Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Connect(_ context.Context, token string, push func(Envelope), lost func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	f.token, f.push, f.lost = token, push, lost
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		err := f.closeErr
		f.closeErr = nil
		return err
	}
	f.disconnects++
	f.push = nil
	return nil
}

// drop simulates the server ending the channel.
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	lost := f.lost
	f.push, f.lost = nil, nil
	f.mu.Unlock()
	lost(err)
}

func (f *fakeTransport) Send(_ context.Context, env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, kind string, payload any) {
	t.Helper()
	env, err := encode(kind, payload)
	require.NoError(t, err)
	f.mu.Lock()
	push := f.push
	f.mu.Unlock()
	require.NotNil(t, push, "not connected")
	push(env)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	init := store.Initial(store.ThemeLight)
	init.CurrentUser = &model.User{ID: "me"}
	init.Chats = []model.ChatSession{{ID: "c1", Participant: model.User{ID: "peer"}}}
	return store.New(zaptest.NewLogger(t), store.WithInitialState(init))
}

func TestBridge_ConnectIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	b := NewBridge(tr, newTestStore(t), zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, b.Connect(ctx, "tok"))
	require.NoError(t, b.Connect(ctx, "tok"))
	require.Equal(t, 1, tr.connects)
	require.Equal(t, "tok", tr.token)

	require.NoError(t, b.Disconnect())
	require.NoError(t, b.Disconnect())
	require.Equal(t, 1, tr.disconnects)
	require.False(t, b.Connected())
}

func TestBridge_ConnectErrors(t *testing.T) {
	tr := &fakeTransport{}
	b := NewBridge(tr, newTestStore(t), nil)
	require.ErrorIs(t, b.Connect(context.Background(), ""), errs.ErrUnauthorized)

	tr.connectErr = errors.New("refused")
	require.Error(t, b.Connect(context.Background(), "tok"))
	require.False(t, b.Connected())
}

func TestBridge_NewMessageDispatches(t *testing.T) {
	tr := &fakeTransport{}
	st := newTestStore(t)
	b := NewBridge(tr, st, zaptest.NewLogger(t))
	require.NoError(t, b.Connect(context.Background(), "tok"))

	var seen int
	off := b.On(EventNewMessage, func(Envelope) { seen++ })
	defer off()

	tr.deliver(t, EventNewMessage, map[string]any{
		"id": "m1", "chat_id": "c1", "sender_id": "peer", "text": "hello", "created_at": 1_700_000_000_000,
	})

	c, _ := st.State().Chat("c1")
	require.Len(t, c.Messages, 1)
	require.Equal(t, "hello", c.Messages[0].Text)
	require.Equal(t, model.MessageText, c.Messages[0].Type)
	require.Equal(t, int64(1_700_000_000_000), c.Messages[0].CreatedAt)
	require.Equal(t, 1, seen)
}

func TestBridge_SelfEchoSuppressed(t *testing.T) {
	tr := &fakeTransport{}
	st := newTestStore(t)
	b := NewBridge(tr, st, nil)
	require.NoError(t, b.Connect(context.Background(), "tok"))

	st.Dispatch(store.SendMessage{ChatID: "c1", ID: "m1", Text: "mine"})
	tr.deliver(t, EventNewMessage, MessageRow{ID: "m1", ChatID: "c1", SenderID: "me", Text: "mine"})
	tr.deliver(t, EventNewMessage, MessageRow{ID: "m2", ChatID: "c1", SenderID: "me", Text: "other device"})

	c, _ := st.State().Chat("c1")
	require.Len(t, c.Messages, 1)
}

func TestBridge_UnknownChatIsAbsorbed(t *testing.T) {
	tr := &fakeTransport{}
	st := newTestStore(t)
	b := NewBridge(tr, st, nil)
	require.NoError(t, b.Connect(context.Background(), "tok"))

	tr.deliver(t, EventNewMessage, MessageRow{ID: "m1", ChatID: "gone", SenderID: "peer"})
	require.Equal(t, int64(1), st.Misses())
}

func TestBridge_TypingNotStoredAndSelfIgnored(t *testing.T) {
	tr := &fakeTransport{}
	st := newTestStore(t)
	b := NewBridge(tr, st, nil)
	require.NoError(t, b.Connect(context.Background(), "tok"))

	tracker := NewTypingTracker()
	detach := tracker.Attach(b)
	before := st.State()

	tr.deliver(t, EventTyping, TypingStatus{ChatID: "c1", UserID: "me", IsTyping: true})
	require.False(t, tracker.IsTyping("c1"))

	tr.deliver(t, EventTyping, TypingStatus{ChatID: "c1", UserID: "peer", IsTyping: true})
	require.True(t, tracker.IsTyping("c1"))
	require.Equal(t, before, st.State())

	detach()
	tr.deliver(t, EventTyping, TypingStatus{ChatID: "c1", UserID: "peer", IsTyping: false})
	require.True(t, tracker.IsTyping("c1"))
}

func TestBridge_SendTyping(t *testing.T) {
	tr := &fakeTransport{}
	b := NewBridge(tr, newTestStore(t), nil)

	require.ErrorIs(t, b.SendTyping(context.Background(), "c1", true), errs.ErrNotConnected)

	require.NoError(t, b.Connect(context.Background(), "tok"))
	require.NoError(t, b.SendTyping(context.Background(), "c1", true))
	require.Len(t, tr.sent, 1)
	require.Equal(t, EventTyping, tr.sent[0].Type)

	var ts TypingStatus
	require.NoError(t, json.Unmarshal(tr.sent[0].Payload, &ts))
	require.Equal(t, TypingStatus{ChatID: "c1", UserID: "me", IsTyping: true}, ts)
}

func TestBridge_BadPayloadIgnored(t *testing.T) {
	tr := &fakeTransport{}
	st := newTestStore(t)
	b := NewBridge(tr, st, nil)
	require.NoError(t, b.Connect(context.Background(), "tok"))

	tr.push(Envelope{Type: EventNewMessage, Payload: json.RawMessage(`{"id":`)})
	tr.push(Envelope{Type: "presence", Payload: json.RawMessage(`{}`)})
	c, _ := st.State().Chat("c1")
	require.Empty(t, c.Messages)
}

func TestBridge_DropClearsConnectedAndRedials(t *testing.T) {
	tr := &fakeTransport{}
	b := NewBridge(tr, newTestStore(t), zaptest.NewLogger(t))
	ctx := context.Background()

	var drops []error
	off := b.OnDrop(func(err error) { drops = append(drops, err) })
	defer off()

	require.NoError(t, b.Connect(ctx, "tok"))
	staleLost := tr.lost
	tr.drop(errors.New("connection reset"))

	require.False(t, b.Connected())
	require.Len(t, drops, 1)
	require.ErrorIs(t, b.SendTyping(ctx, "c1", true), errs.ErrNotConnected)

	require.NoError(t, b.Connect(ctx, "tok"))
	require.Equal(t, 2, tr.connects)
	require.True(t, b.Connected())

	// a late report from the first connection does not touch the new one
	staleLost(errors.New("late"))
	require.True(t, b.Connected())
	require.Len(t, drops, 1)

	// an intentional disconnect is not a drop
	require.NoError(t, b.Disconnect())
	require.Len(t, drops, 1)
}

func TestBridge_DisconnectFailureKeepsConnected(t *testing.T) {
	tr := &fakeTransport{}
	b := NewBridge(tr, newTestStore(t), nil)
	require.NoError(t, b.Connect(context.Background(), "tok"))

	tr.closeErr = errors.New("close failed")
	require.Error(t, b.Disconnect())
	require.True(t, b.Connected())

	require.NoError(t, b.Disconnect())
	require.False(t, b.Connected())
	require.Equal(t, 1, tr.disconnects)
}

func TestBridge_PublishMessage(t *testing.T) {
	tr := &fakeTransport{}
	b := NewBridge(tr, newTestStore(t), nil)
	exp := int64(9_000)
	m := model.Message{ID: "m1", SenderID: "me", Text: "hi", Type: model.MessageText, CreatedAt: 1_000, ExpiresAt: &exp}

	require.ErrorIs(t, b.PublishMessage(context.Background(), "c1", m), errs.ErrNotConnected)

	require.NoError(t, b.Connect(context.Background(), "tok"))
	require.NoError(t, b.PublishMessage(context.Background(), "c1", m))
	require.Len(t, tr.sent, 1)
	require.Equal(t, EventNewMessage, tr.sent[0].Type)

	var row MessageRow
	require.NoError(t, json.Unmarshal(tr.sent[0].Payload, &row))
	require.Equal(t, "c1", row.ChatID)
	require.Equal(t, "me", row.SenderID)
	require.Equal(t, Timestamp(1_000), row.CreatedAt)
	require.Equal(t, exp, *row.ExpiresAt)
}
