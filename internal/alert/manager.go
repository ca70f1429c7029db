// Package alert delivers operational events to an out-of-band channel.
package alert

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"okx-connector/internal/logger"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Alerter accepts operational events. Implementations must not block the caller.
type Alerter interface {
	Important(event string, fields map[string]string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Important(string, map[string]string) {}

const (
	defaultQueueSize    = 128
	defaultDropReport   = time.Minute
	defaultEventBurst   = 5
	defaultEventWindow  = time.Minute
	notifyTimeout       = 20 * time.Second
	suppressedFieldName = "suppressed"
)

// ManagerOptions tunes queueing and per-event throttling. Each event name may
// pass EventBurst times, then once per EventWindow; suppressed repeats are
// counted on the next delivered event of the same name. A negative
// DropReportInterval turns the periodic drop report off.
type ManagerOptions struct {
	QueueSize          int
	DropReportInterval time.Duration
	EventBurst         int
	EventWindow        time.Duration
}

// Manager queues events and sends them from one goroutine.
type Manager struct {
	mode     string
	instance string
	notifier Notifier

	queue chan alertEvent
	stop  chan struct{}
	done  chan struct{}

	mu      sync.RWMutex
	session string
	closed  bool

	dropped       atomic.Uint64
	droppedWindow atomic.Uint64

	// loop-owned
	every      rate.Limit
	burst      int
	limiters   map[string]*rate.Limiter
	suppressed map[string]uint64
}

type alertEvent struct {
	at     time.Time
	event  string
	fields map[string]string
}

func NewManager(mode, instance string, notifier Notifier) *Manager {
	return NewManagerWithOptions(mode, instance, notifier, ManagerOptions{})
}

// NewManagerWithOptions returns nil when notifier is nil; a nil Manager
// accepts and discards events.
func NewManagerWithOptions(mode, instance string, notifier Notifier, opts ManagerOptions) *Manager {
	if notifier == nil {
		return nil
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.DropReportInterval == 0 {
		opts.DropReportInterval = defaultDropReport
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = defaultEventBurst
	}
	if opts.EventWindow <= 0 {
		opts.EventWindow = defaultEventWindow
	}
	m := &Manager{
		mode:       mode,
		instance:   instance,
		notifier:   notifier,
		queue:      make(chan alertEvent, opts.QueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		every:      rate.Every(opts.EventWindow),
		burst:      opts.EventBurst,
		limiters:   make(map[string]*rate.Limiter),
		suppressed: make(map[string]uint64),
	}
	go m.loop(opts.DropReportInterval)
	return m
}

func (m *Manager) Important(event string, fields map[string]string) {
	if m == nil {
		return
	}
	ev := alertEvent{at: time.Now().UTC(), event: event, fields: cloneFields(fields)}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		total := m.dropped.Add(1)
		if m.droppedWindow.Add(1) == 1 {
			alertLog().WithFields(logger.Fields{
				"target_event":  event,
				"dropped_total": total,
				"queue_cap":     cap(m.queue),
			}).Warn("alert queue full, dropping event")
		}
	}
}

// SetSession tags subsequent messages with the run's session id.
func (m *Manager) SetSession(session string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
}

// Close stops intake and waits for queued events to be sent.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stop)
	}
	m.mu.Unlock()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop(reportEvery time.Duration) {
	defer close(m.done)
	var report <-chan time.Time
	if reportEvery > 0 {
		ticker := time.NewTicker(reportEvery)
		defer ticker.Stop()
		report = ticker.C
	}
	for {
		select {
		case ev := <-m.queue:
			m.deliver(ev)
		case <-report:
			m.reportDrops()
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.deliver(ev)
				default:
					m.reportDrops()
					return
				}
			}
		}
	}
}

func (m *Manager) deliver(ev alertEvent) {
	lim, ok := m.limiters[ev.event]
	if !ok {
		lim = rate.NewLimiter(m.every, m.burst)
		m.limiters[ev.event] = lim
	}
	if !lim.AllowN(ev.at, 1) {
		m.suppressed[ev.event]++
		return
	}
	if n := m.suppressed[ev.event]; n > 0 {
		if ev.fields == nil {
			ev.fields = make(map[string]string, 1)
		}
		ev.fields[suppressedFieldName] = strconv.FormatUint(n, 10)
		delete(m.suppressed, ev.event)
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, m.format(ev)); err != nil {
		alertLog().WithError(err).WithField("target_event", ev.event).Error("alert notify failed")
	}
}

func (m *Manager) reportDrops() {
	n := m.droppedWindow.Swap(0)
	if n == 0 {
		return
	}
	alertLog().WithFields(logger.Fields{
		"dropped_since_last": n,
		"dropped_total":      m.dropped.Load(),
		"queue_len":          len(m.queue),
	}).Warn("alert queue drop report")
}

func (m *Manager) format(ev alertEvent) string {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("[okx-connector] " + ev.event + "\n")
	b.WriteString("time: " + ev.at.Format(time.RFC3339) + "\n")
	b.WriteString("mode: " + m.mode + "\n")
	b.WriteString("instance: " + m.instance)
	if session != "" {
		b.WriteString("\nsession: " + session)
	}
	keys := make([]string, 0, len(ev.fields))
	for k := range ev.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n" + k + ": " + ev.fields[k])
	}
	return b.String()
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func alertLog() *logger.Entry {
	return logger.GetLogger().WithComponent("alert")
}
