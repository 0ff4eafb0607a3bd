// Package call drives the lifecycle of the single active voice or video call.
package call

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/store"
)

// DefaultConnectDelay is how long a call rings before it is considered answered.
const DefaultConnectDelay = 3 * time.Second

// Dispatcher is the part of the store the controller needs.
type Dispatcher interface {
	Dispatch(a store.Action) store.State
	State() store.State
	NewID() string
	Subscribe(fn store.Listener) (unsubscribe func())
}

// Controller moves a call through ringing -> connected -> removed and keeps
// the duration counter. Starting a call while one is active ends the old one.
// Timers stop as soon as the store drops the call, whoever dispatched it.
// The controller never dispatches while holding mu.
type Controller struct {
	st           Dispatcher
	log          *zap.Logger
	connectDelay time.Duration
	tick         time.Duration
	unsubscribe  func()

	mu       sync.Mutex
	callID   string
	connect  *time.Timer
	stopTick chan struct{}
	seconds  int
	onTick   func(seconds int)
}

// Option configures a Controller.
type Option func(*Controller)

// WithConnectDelay overrides the ringing timeout.
func WithConnectDelay(d time.Duration) Option {
	return func(c *Controller) { c.connectDelay = d }
}

// WithTick overrides the duration counter period (one second by default).
func WithTick(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

// OnTick registers fn to be called with the counter after every tick.
func OnTick(fn func(seconds int)) Option {
	return func(c *Controller) { c.onTick = fn }
}

// NewController constructs a Controller.
func NewController(st Dispatcher, log *zap.Logger, opts ...Option) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{st: st, log: log, connectDelay: DefaultConnectDelay, tick: time.Second}
	for _, o := range opts {
		o(c)
	}
	c.unsubscribe = st.Subscribe(c.follow)
	return c
}

// Start begins ringing peer and returns the call id.
func (c *Controller) Start(peer model.User, typ model.CallType) string {
	id := c.st.NewID()

	c.mu.Lock()
	if c.callID != "" {
		c.log.Info("call - start - replacing active call", zap.String("call_id", c.callID))
	}
	c.stopLocked()
	c.callID = ""
	c.mu.Unlock()

	c.st.Dispatch(store.StartCall{ID: id, Participant: peer, Type: typ})

	c.mu.Lock()
	defer c.mu.Unlock()
	if ac := c.st.State().ActiveCall; ac == nil || ac.ID != id {
		c.log.Info("call - start - dropped before ringing", zap.String("call_id", id))
		return id
	}
	c.callID = id
	c.connect = time.AfterFunc(c.connectDelay, func() { c.connected(id) })
	c.log.Info("call - start - ringing", zap.String("call_id", id), zap.String("peer", peer.ID))
	return id
}

// End hangs up the active call, if any.
func (c *Controller) End() {
	c.mu.Lock()
	c.stopLocked()
	c.callID = ""
	c.mu.Unlock()

	if c.st.State().ActiveCall != nil {
		c.st.Dispatch(store.EndCall{})
	}
}

// ToggleMute flips the mute flag of the active call.
func (c *Controller) ToggleMute() { c.st.Dispatch(store.ToggleCallMute{}) }

// ToggleVideo flips the video-off flag of the active call.
func (c *Controller) ToggleVideo() { c.st.Dispatch(store.ToggleCallVideo{}) }

// Duration returns whole seconds since the call connected.
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seconds
}

// Close stops all timers and the store subscription without touching state.
func (c *Controller) Close() {
	c.unsubscribe()
	c.mu.Lock()
	c.stopLocked()
	c.callID = ""
	c.mu.Unlock()
}

// active reports whether a connect timer or duration ticker is pending.
func (c *Controller) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect != nil || c.stopTick != nil
}

// follow stops the timers when the store no longer holds the tracked call,
// e.g. after Logout or an EndCall dispatched elsewhere.
func (c *Controller) follow(s store.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callID == "" {
		return
	}
	if ac := s.ActiveCall; ac != nil && ac.ID == c.callID {
		return
	}
	c.log.Info("call - state - call gone, stopping timers", zap.String("call_id", c.callID))
	c.stopLocked()
	c.callID = ""
}

func (c *Controller) connected(id string) {
	c.mu.Lock()
	if c.callID != id {
		c.mu.Unlock()
		return
	}
	c.connect = nil
	c.mu.Unlock()

	c.st.Dispatch(store.SetCallStatus{Status: model.CallConnected})

	c.mu.Lock()
	if c.callID != id {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.stopTick = stop
	c.mu.Unlock()

	c.log.Info("call - ring - connected", zap.String("call_id", id))
	go c.count(id, stop)
}

func (c *Controller) count(id string, stop <-chan struct{}) {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			if c.callID != id {
				c.mu.Unlock()
				return
			}
			c.seconds++
			n, fn := c.seconds, c.onTick
			c.mu.Unlock()
			if fn != nil {
				fn(n)
			}
		}
	}
}

func (c *Controller) stopLocked() {
	if c.connect != nil {
		c.connect.Stop()
		c.connect = nil
	}
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
	c.seconds = 0
}
