// Package notify shows short-lived toast notifications through the store.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/store"
)

// DefaultDelay is how long a toast stays visible.
const DefaultDelay = 3 * time.Second

// Dispatcher is the part of the store a Toaster needs.
type Dispatcher interface {
	Dispatch(a store.Action) store.State
	NewID() string
}

// Toaster appends notifications and removes each one after a fixed delay.
type Toaster struct {
	st    Dispatcher
	log   *zap.Logger
	delay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewToaster constructs a Toaster. A non-positive delay selects DefaultDelay.
func NewToaster(st Dispatcher, log *zap.Logger, delay time.Duration) *Toaster {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Toaster{st: st, log: log, delay: delay, timers: make(map[string]*time.Timer)}
}

// Push shows a toast and returns its id.
func (t *Toaster) Push(sev model.Severity, msg string) string {
	id := t.st.NewID()
	t.st.Dispatch(store.AddNotification{ID: id, Severity: sev, Message: msg})
	if sev == model.SeverityError {
		t.log.Warn("notify - push - error toast", zap.String("message", msg))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return id
	}
	t.timers[id] = time.AfterFunc(t.delay, func() { t.expire(id) })
	return id
}

// Error is a shortcut for Push(SeverityError, msg).
func (t *Toaster) Error(msg string) string { return t.Push(model.SeverityError, msg) }

// Success is a shortcut for Push(SeveritySuccess, msg).
func (t *Toaster) Success(msg string) string { return t.Push(model.SeveritySuccess, msg) }

// Info is a shortcut for Push(SeverityInfo, msg).
func (t *Toaster) Info(msg string) string { return t.Push(model.SeverityInfo, msg) }

// Close stops all pending removal timers.
func (t *Toaster) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
}

// Pending returns the number of toasts still waiting for removal.
func (t *Toaster) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *Toaster) expire(id string) {
	t.mu.Lock()
	if _, ok := t.timers[id]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.timers, id)
	t.mu.Unlock()
	t.st.Dispatch(store.RemoveNotification{ID: id})
}
