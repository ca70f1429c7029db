package okx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"okx-connector/internal/bus"
	"okx-connector/internal/core"
)

var testCreds = Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "pass"}

type recordingAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAlerter) Important(event string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAlerter) count(event string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e == event {
			n++
		}
	}
	return n
}

type serverRequest struct {
	ID   string            `json:"id"`
	Op   string            `json:"op"`
	Args []json.RawMessage `json:"args"`
}

// newWSServer serves one websocket handler per connection and returns its ws:// URL.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// readRequest returns the next JSON request, skipping keepalive pings.
func readRequest(t *testing.T, conn *websocket.Conn) (serverRequest, bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return serverRequest{}, false
		}
		if string(data) == pingPayload {
			continue
		}
		var req serverRequest
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("server got undecodable request %s: %v", data, err)
			return serverRequest{}, false
		}
		return req, true
	}
}

func writeText(conn *websocket.Conn, s string) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// drain keeps reading until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func recvMsg(t *testing.T, rx bus.Receiver) core.Msg {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := rx.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	return msg
}

func testOrder(id int64) core.NewOrder {
	return core.NewOrder{
		Inst:          core.MustInstrument("Okx.BTC.USDT.Swap"),
		CorrelationID: id,
		Side:          core.Buy,
		OrdType:       core.Limit,
		TdMode:        core.TdCross,
		Price:         dec("41000.5"),
		Size:          dec("2"),
	}
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("client did not stop")
		return nil
	}
}
