// Package expiry evicts disappearing messages once their deadline passes.
package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/store"
)

// DefaultInterval is the sweep cadence.
const DefaultInterval = time.Second

// Dispatcher is the part of the store the sweeper needs.
type Dispatcher interface {
	Dispatch(a store.Action) store.State
	State() store.State
	Now() time.Time
}

// Sweeper periodically dispatches DeleteExpiredMessages for chats holding
// a message whose deadline has passed.
type Sweeper struct {
	st       Dispatcher
	log      *zap.Logger
	interval time.Duration
}

// NewSweeper constructs a Sweeper. A non-positive interval selects DefaultInterval.
func NewSweeper(st Dispatcher, log *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{st: st, log: log, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single pass and returns how many chats were swept.
func (s *Sweeper) SweepOnce() int {
	now := s.st.Now().UnixMilli()
	var due []string
	for _, c := range s.st.State().Chats {
		for i := range c.Messages {
			if c.Messages[i].Expired(now) {
				due = append(due, c.ID)
				break
			}
		}
	}
	for _, id := range due {
		s.st.Dispatch(store.DeleteExpiredMessages{ChatID: id})
	}
	if len(due) > 0 {
		s.log.Debug("expiry - sweep - removed", zap.Int("chats", len(due)))
	}
	return len(due)
}
