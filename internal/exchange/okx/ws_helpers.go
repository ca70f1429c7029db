package okx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout       = 5 * time.Second
	minReadTimeout     = 30 * time.Second
	defaultPingEvery   = 20 * time.Second
	defaultLoginWithin = 10 * time.Second
	pingPayload        = "ping"
)

type ClientState string

const (
	StateDisconnected  ClientState = "disconnected"
	StateConnected     ClientState = "connected"
	StateAwaitingLogin ClientState = "awaiting_login"
	StateSubscribed    ClientState = "subscribed"
	StateStreaming     ClientState = "streaming"
	StateActive        ClientState = "active"
)

type stateHolder struct {
	v atomic.Value
}

func (h *stateHolder) set(s ClientState) { h.v.Store(s) }

func (h *stateHolder) get() ClientState {
	if s, ok := h.v.Load().(ClientState); ok {
		return s
	}
	return StateDisconnected
}

type inbound struct {
	data []byte
	recv time.Time
}

// wsConn is one streaming connection. Only the owning control loop writes to it.
type wsConn struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func dialWS(ctx context.Context, url string) (*wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn, done: make(chan struct{})}, nil
}

func (c *wsConn) writeJSON(v interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(pingPayload))
}

// startReader feeds text frames into the returned channel until the
// connection fails or is closed. The terminal read error is left in errs.
func (c *wsConn) startReader(readTimeout time.Duration) (<-chan inbound, <-chan error) {
	frames := make(chan inbound, 64)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			if readTimeout > 0 {
				_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
			}
			typ, data, err := c.conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			if typ != websocket.TextMessage {
				continue
			}
			select {
			case frames <- inbound{data: data, recv: time.Now().UTC()}:
			case <-c.done:
				return
			}
		}
	}()
	return frames, errs
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

func readTimeoutFor(pingEvery time.Duration) time.Duration {
	if pingEvery <= 0 {
		return 0
	}
	timeout := 3 * pingEvery
	if timeout < minReadTimeout {
		timeout = minReadTimeout
	}
	return timeout
}

// readErr returns the reader's terminal error once the frame channel is closed.
func readErr(errs <-chan error) error {
	select {
	case err := <-errs:
		return err
	default:
		return websocket.ErrCloseSent
	}
}
