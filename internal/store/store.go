package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// DefaultDisappearingTTL is the lifetime of messages sent in disappearing mode.
const DefaultDisappearingTTL = 24 * time.Hour

// Listener is notified with the new state after every dispatch.
type Listener func(State)

// Store is the application state container. Dispatches are serialized.
// Listeners run outside the lock, one state at a time and in dispatch order:
// a dispatch made while another goroutine is delivering is queued and handed
// to the listeners by that goroutine. Listeners may dispatch.
type Store struct {
	log *zap.Logger
	env Env

	mu         sync.Mutex
	state      State
	listeners  map[uint64]Listener
	nextSub    uint64
	pending    []State
	delivering bool

	misses atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.env.Now = now }
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.env.NewID = gen }
}

// WithDisappearingTTL sets the TTL stamped on messages of disappearing chats.
func WithDisappearingTTL(ttl time.Duration) Option {
	return func(s *Store) { s.env.DisappearingTTL = ttl }
}

// WithInitialState replaces the default initial state.
func WithInitialState(st State) Option {
	return func(s *Store) { s.state = st }
}

// New constructs a store in the initial state.
func New(log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		log:       log,
		state:     Initial(ThemeLight),
		listeners: make(map[uint64]Listener),
		env: Env{
			Now:             time.Now,
			NewID:           newID,
			DisappearingTTL: DefaultDisappearingTTL,
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.env.Miss = s.onMiss
	return s
}

// Dispatch applies a to the current state and returns the new state.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	next := Reduce(s.state, a, s.env)
	s.state = next
	s.pending = append(s.pending, next)
	if s.delivering {
		s.mu.Unlock()
		return next
	}
	s.delivering = true
	s.deliverLocked()
	s.delivering = false
	s.mu.Unlock()
	return next
}

// deliverLocked drains pending states. s.mu is held on entry and on return
// but released while listeners run.
func (s *Store) deliverLocked() {
	for len(s.pending) > 0 {
		st := s.pending[0]
		s.pending[0] = State{}
		s.pending = s.pending[1:]
		ls := make([]Listener, 0, len(s.listeners))
		for _, l := range s.listeners {
			ls = append(ls, l)
		}
		s.mu.Unlock()
		for _, l := range ls {
			l(st)
		}
		s.mu.Lock()
	}
}

// State returns the current state snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn and returns a function removing it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.env.Now() }

// NewID returns a fresh id from the store generator.
func (s *Store) NewID() string { return s.env.NewID() }

// DisappearingTTL returns the configured disappearing-message TTL.
func (s *Store) DisappearingTTL() time.Duration { return s.env.DisappearingTTL }

// Misses returns how many actions referenced state that did not exist.
func (s *Store) Misses() int64 { return s.misses.Load() }

func (s *Store) onMiss(a Action, ref string) {
	s.misses.Add(1)
	s.log.Debug("store - reduce - unknown reference",
		zap.String("action", a.Kind()),
		zap.String("ref", ref))
}

// newID returns a time-ordered UUIDv7 string.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
