package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "chat_sync"

var errSubscriptionClosed = errors.New("subscription closed")

// RedisTransport is a Transport over a Redis pub/sub channel. Every client of
// the channel receives every frame, including its own.
type RedisTransport struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger

	mu   sync.Mutex
	ps   *redis.PubSub
	done chan struct{}
}

// NewRedisTransport returns a disconnected transport on channel.
func NewRedisTransport(rdb *redis.Client, channel string, log *zap.Logger) (*RedisTransport, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client: %w", errs.ErrNotConfigured)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisTransport{rdb: rdb, channel: channel, log: log}, nil
}

// Connect subscribes to the channel and starts delivering frames to push.
func (t *RedisTransport) Connect(ctx context.Context, token string, push func(Envelope), lost func(error)) error {
	if token == "" {
		return errs.ErrUnauthorized
	}
	ps := t.rdb.Subscribe(ctx, t.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", t.channel, err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.ps, t.done = ps, done
	t.mu.Unlock()

	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				t.log.Warn("realtime - redis read - bad frame", zap.Error(err))
				continue
			}
			push(env)
		}
		t.mu.Lock()
		current := t.ps == ps
		if current {
			t.ps, t.done = nil, nil
		}
		t.mu.Unlock()
		if current && lost != nil {
			lost(fmt.Errorf("subscribe %s: %w", t.channel, errSubscriptionClosed))
		}
	}()
	return nil
}

// Send publishes one frame.
func (t *RedisTransport) Send(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, t.channel, b).Err()
}

// Disconnect closes the subscription and waits for delivery to stop.
func (t *RedisTransport) Disconnect() error {
	t.mu.Lock()
	ps, done := t.ps, t.done
	t.ps, t.done = nil, nil
	t.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
