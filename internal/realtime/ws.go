package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
)

// WSTransport is a Transport over a websocket. The session token is passed
// as the token query parameter.
type WSTransport struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}

	wmu sync.Mutex
}

// NewWSTransport validates rawURL and returns a disconnected transport.
func NewWSTransport(rawURL string, log *zap.Logger) (*WSTransport, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("realtime url: %w", errs.ErrNotConfigured)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("realtime url: unsupported scheme %q", u.Scheme)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSTransport{
		url:    rawURL,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}, nil
}

// Connect dials the server and starts the read loop.
func (t *WSTransport) Connect(ctx context.Context, token string, push func(Envelope), lost func(error)) error {
	u, err := url.Parse(t.url)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	done := make(chan struct{})
	t.mu.Lock()
	t.conn, t.done = conn, done
	t.mu.Unlock()

	go t.readLoop(conn, done, push, lost)
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn, done chan struct{}, push func(Envelope), lost func(error)) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warn("realtime - ws read - closed", zap.Error(err))
			}
			t.dropped(conn, err, lost)
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("realtime - ws read - bad frame", zap.Error(err))
			continue
		}
		push(env)
	}
}

// dropped forgets conn and reports the loss unless Disconnect already took it.
func (t *WSTransport) dropped(conn *websocket.Conn, err error, lost func(error)) {
	t.mu.Lock()
	current := t.conn == conn
	if current {
		t.conn, t.done = nil, nil
	}
	t.mu.Unlock()
	if !current {
		return
	}
	_ = conn.Close()
	if lost != nil {
		lost(fmt.Errorf("ws read: %w", err))
	}
}

// Send writes one frame.
func (t *WSTransport) Send(ctx context.Context, env Envelope) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errs.ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	return conn.WriteJSON(env)
}

// Disconnect closes the socket and waits for the read loop to exit.
func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	t.conn, t.done = nil, nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	t.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.wmu.Unlock()

	err := conn.Close()
	<-done
	return err
}
