package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/store"
)

// Transport is a server-push channel. push is called once per inbound frame,
// from the transport's own goroutine, until Disconnect returns. lost is called
// at most once per Connect, when the channel ends without Disconnect.
type Transport interface {
	Connect(ctx context.Context, token string, push func(Envelope), lost func(error)) error
	Disconnect() error
	Send(ctx context.Context, env Envelope) error
}

// StateDispatcher is the part of the store the bridge needs.
type StateDispatcher interface {
	Dispatch(a store.Action) store.State
	State() store.State
	Now() time.Time
}

// Handler receives an inbound event after the bridge has applied it.
type Handler func(Envelope)

// Bridge keeps one subscription per session and maps inbound events to actions.
type Bridge struct {
	tr  Transport
	st  StateDispatcher
	log *zap.Logger

	lc        sync.Mutex // serializes Connect and Disconnect
	mu        sync.Mutex
	connected bool
	gen       uint64 // bumped per Connect; stale loss reports are ignored

	hmu      sync.RWMutex
	handlers map[string]map[uint64]Handler
	drops    map[uint64]func(error)
	nextID   uint64
}

// NewBridge constructs a disconnected Bridge.
func NewBridge(tr Transport, st StateDispatcher, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		tr:       tr,
		st:       st,
		log:      log,
		handlers: make(map[string]map[uint64]Handler),
		drops:    make(map[uint64]func(error)),
	}
}

// Connect subscribes with the session token. It is a no-op when already connected.
func (b *Bridge) Connect(ctx context.Context, token string) error {
	b.lc.Lock()
	defer b.lc.Unlock()
	if b.Connected() {
		return nil
	}
	if token == "" {
		return errs.ErrUnauthorized
	}
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.mu.Unlock()
	if err := b.tr.Connect(ctx, token, b.handle, func(err error) { b.lost(gen, err) }); err != nil {
		b.log.Warn("realtime - connect - failed", zap.Error(err))
		return err
	}
	b.mu.Lock()
	// the channel may already have been lost while Connect was returning
	b.connected = b.gen == gen
	b.mu.Unlock()
	b.log.Info("realtime - connect - ok")
	return nil
}

// Disconnect tears the subscription down. Safe to call when not connected.
// When the transport fails to close, the bridge stays connected and the call
// may be retried.
func (b *Bridge) Disconnect() error {
	b.lc.Lock()
	defer b.lc.Unlock()
	if !b.Connected() {
		return nil
	}
	if err := b.tr.Disconnect(); err != nil {
		b.log.Warn("realtime - disconnect - failed", zap.Error(err))
		return err
	}
	b.mu.Lock()
	b.connected = false
	b.gen++
	b.mu.Unlock()
	return nil
}

// OnDrop registers fn for connections lost without Disconnect and returns a
// function removing it. fn runs on the transport's goroutine.
func (b *Bridge) OnDrop(fn func(error)) (off func()) {
	b.hmu.Lock()
	id := b.nextID
	b.nextID++
	b.drops[id] = fn
	b.hmu.Unlock()

	return func() {
		b.hmu.Lock()
		delete(b.drops, id)
		b.hmu.Unlock()
	}
}

func (b *Bridge) lost(gen uint64, err error) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.gen++
	b.mu.Unlock()

	b.log.Warn("realtime - connection - lost", zap.Error(err))
	b.hmu.RLock()
	fns := make([]func(error), 0, len(b.drops))
	for _, fn := range b.drops {
		fns = append(fns, fn)
	}
	b.hmu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}

// Connected reports whether a subscription is live.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// On registers h for events of the given kind and returns a function removing it.
func (b *Bridge) On(kind string, h Handler) (off func()) {
	b.hmu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]Handler)
	}
	b.handlers[kind][id] = h
	b.hmu.Unlock()

	return func() {
		b.hmu.Lock()
		delete(b.handlers[kind], id)
		b.hmu.Unlock()
	}
}

// OnTyping is On(EventTyping) with the payload decoded.
func (b *Bridge) OnTyping(fn func(TypingStatus)) (off func()) {
	return b.On(EventTyping, func(env Envelope) {
		var ts TypingStatus
		if err := json.Unmarshal(env.Payload, &ts); err == nil {
			fn(ts)
		}
	})
}

// SendTyping broadcasts the current user's typing state for chatID.
func (b *Bridge) SendTyping(ctx context.Context, chatID string, isTyping bool) error {
	if !b.Connected() {
		return errs.ErrNotConnected
	}
	u := b.st.State().CurrentUser
	if u == nil {
		return errs.ErrUnauthorized
	}
	env, err := encode(EventTyping, TypingStatus{ChatID: chatID, UserID: u.ID, IsTyping: isTyping})
	if err != nil {
		return err
	}
	return b.tr.Send(ctx, env)
}

// PublishMessage broadcasts a persisted message of chatID as a new_message event.
func (b *Bridge) PublishMessage(ctx context.Context, chatID string, m model.Message) error {
	if !b.Connected() {
		return errs.ErrNotConnected
	}
	env, err := encode(EventNewMessage, MessageRow{
		ID:        m.ID,
		ChatID:    chatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Type:      string(m.Type),
		CreatedAt: Timestamp(m.CreatedAt),
		Metadata:  m.Metadata,
		ExpiresAt: m.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return b.tr.Send(ctx, env)
}

func (b *Bridge) handle(env Envelope) {
	var self string
	if u := b.st.State().CurrentUser; u != nil {
		self = u.ID
	}

	switch env.Type {
	case EventNewMessage:
		var row MessageRow
		if err := json.Unmarshal(env.Payload, &row); err != nil {
			b.log.Warn("realtime - new_message - bad payload", zap.Error(err))
			return
		}
		if row.SenderID == self {
			return
		}
		b.st.Dispatch(store.ReceiveMessage{ChatID: row.ChatID, Message: row.Message(b.st.Now())})
	case EventTyping:
		var ts TypingStatus
		if err := json.Unmarshal(env.Payload, &ts); err != nil {
			b.log.Warn("realtime - typing_status - bad payload", zap.Error(err))
			return
		}
		if ts.UserID == self {
			return
		}
	default:
		b.log.Debug("realtime - handle - unknown event", zap.String("type", env.Type))
	}

	b.hmu.RLock()
	hs := make([]Handler, 0, len(b.handlers[env.Type]))
	for _, h := range b.handlers[env.Type] {
		hs = append(hs, h)
	}
	b.hmu.RUnlock()
	for _, h := range hs {
		h(env)
	}
}
