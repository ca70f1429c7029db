package alert

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"okx-connector/internal/logger"
)

// notifierSpy records messages; with gate set, Notify waits on it.
type notifierSpy struct {
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once

	mu   sync.Mutex
	msgs []string
}

func newBlockedSpy() *notifierSpy {
	return &notifierSpy{gate: make(chan struct{}), entered: make(chan struct{})}
}

func (n *notifierSpy) Notify(ctx context.Context, msg string) error {
	if n.gate != nil {
		n.once.Do(func() { close(n.entered) })
		select {
		case <-n.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	return nil
}

func (n *notifierSpy) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func (n *notifierSpy) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-n.entered:
	case <-time.After(time.Second):
		t.Fatalf("notifier was not called")
	}
}

func closeManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestManagerCloseFlushesQueuedEvents(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager("live", "desk-a", spy)
	m.SetSession("3f1c")
	m.Important("client_terminated", map[string]string{"client": "public", "err": "eof"})
	m.Important("login_failed", map[string]string{"code": "60009"})
	closeManager(t, m)

	msgs := spy.messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	for _, want := range []string{"[okx-connector] client_terminated", "mode: live", "instance: desk-a", "session: 3f1c", "client: public"} {
		if !strings.Contains(msgs[0], want) {
			t.Fatalf("message missing %q:\n%s", want, msgs[0])
		}
	}
	if strings.Index(msgs[0], "client: public") > strings.Index(msgs[0], "err: eof") {
		t.Fatalf("fields not sorted:\n%s", msgs[0])
	}

	m.Important("after_close", nil)
	if len(spy.messages()) != 2 {
		t.Fatalf("event accepted after Close")
	}
}

func TestManagerDropsWithoutBlockingWhenFull(t *testing.T) {
	spy := newBlockedSpy()
	m := NewManagerWithOptions("live", "desk-a", spy, ManagerOptions{QueueSize: 1, DropReportInterval: -1})
	m.Important("seed", nil)
	spy.waitEntered(t)

	done := make(chan struct{})
	go func() {
		m.Important("queued", nil)
		for i := 0; i < 10; i++ {
			m.Important("order_rejected", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Important() blocked on a full queue")
	}
	if got := m.dropped.Load(); got != 10 {
		t.Fatalf("dropped = %d, want 10", got)
	}

	close(spy.gate)
	closeManager(t, m)
	if got := len(spy.messages()); got != 2 {
		t.Fatalf("messages = %d, want 2", got)
	}
}

func TestManagerThrottlesRepeatedEvents(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManagerWithOptions("demo", "desk-a", spy, ManagerOptions{EventBurst: 1, EventWindow: 300 * time.Millisecond})
	m.Important("order_rejected", map[string]string{"correlation_id": "1"})
	m.Important("order_rejected", map[string]string{"correlation_id": "2"})
	m.Important("order_rejected", map[string]string{"correlation_id": "3"})
	m.Important("client_restarted", nil)
	time.Sleep(450 * time.Millisecond)
	m.Important("order_rejected", map[string]string{"correlation_id": "4"})
	closeManager(t, m)

	msgs := spy.messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3:\n%s", len(msgs), strings.Join(msgs, "\n--\n"))
	}
	if strings.Contains(msgs[0], "suppressed") || !strings.Contains(msgs[0], "correlation_id: 1") {
		t.Fatalf("first message = %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "client_restarted") {
		t.Fatalf("second message = %q", msgs[1])
	}
	if !strings.Contains(msgs[2], "correlation_id: 4") || !strings.Contains(msgs[2], "suppressed: 2") {
		t.Fatalf("third message = %q, want suppressed count", msgs[2])
	}
}

func TestManagerDropReportResetsWindow(t *testing.T) {
	logs := &lockedBuffer{}
	logger.GetLogger().SetOutput(logs)
	defer logger.GetLogger().SetOutput(os.Stdout)

	spy := newBlockedSpy()
	m := NewManagerWithOptions("live", "desk-a", spy, ManagerOptions{QueueSize: 1, DropReportInterval: 40 * time.Millisecond})
	m.Important("seed", nil)
	spy.waitEntered(t)
	m.Important("queued", nil)
	for i := 0; i < 3; i++ {
		m.Important("spam", nil)
	}

	// The loop is parked in Notify, so the report fires once the gate opens.
	close(spy.gate)
	deadline := time.Now().Add(time.Second)
	for !strings.Contains(logs.String(), "alert queue drop report") {
		if time.Now().After(deadline) {
			t.Fatalf("missing drop report, logs: %s", logs.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := m.droppedWindow.Load(); got != 0 {
		t.Fatalf("drop window = %d, want 0 after report", got)
	}
	if got := m.dropped.Load(); got != 3 {
		t.Fatalf("dropped total = %d, want 3", got)
	}
	closeManager(t, m)
}

func TestNilManagerIsSafe(t *testing.T) {
	var m *Manager
	m.Important("ignored", nil)
	m.SetSession("x")
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close() on nil manager error = %v", err)
	}
	if NewManager("live", "desk-a", nil) != nil {
		t.Fatalf("NewManager(nil notifier) returned non-nil")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
