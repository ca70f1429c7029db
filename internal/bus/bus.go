// Package bus moves core.Msg values between the connector and strategy code
// over a bounded channel. A full bus blocks the producer. Closing either end
// wakes the other: senders get ErrClosed, the receiver drains what was already
// queued and then gets ErrClosed.
package bus

import (
	"context"
	"errors"
	"sync"

	"okx-connector/internal/core"
)

// DefaultCapacity matches the queue depth used for both directions of a run.
const DefaultCapacity = 1024

var ErrClosed = errors.New("bus closed")

type pipe struct {
	ch     chan core.Msg
	closed chan struct{}
	once   sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.closed) })
}

// Sender is the producing end. It is safe for concurrent use and may be copied.
type Sender struct {
	p *pipe
}

// Receiver is the single consuming end.
type Receiver struct {
	p *pipe
}

// New returns both ends of a bus with the given capacity.
func New(capacity int) (Sender, Receiver) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &pipe{
		ch:     make(chan core.Msg, capacity),
		closed: make(chan struct{}),
	}
	return Sender{p: p}, Receiver{p: p}
}

// Send blocks until the message is queued, the bus is closed or ctx is done.
func (s Sender) Send(ctx context.Context, msg core.Msg) error {
	if s.p == nil {
		return ErrClosed
	}
	select {
	case <-s.p.closed:
		return ErrClosed
	default:
	}
	select {
	case s.p.ch <- msg:
		return nil
	case <-s.p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Sender) Close() {
	if s.p != nil {
		s.p.close()
	}
}

// Done is closed once either end closes the bus.
func (s Sender) Done() <-chan struct{} {
	return s.p.closed
}

// Len reports how many messages are queued.
func (s Sender) Len() int { return len(s.p.ch) }

func (s Sender) Cap() int { return cap(s.p.ch) }

// Recv returns the next message. Messages queued before Close are still delivered.
func (r Receiver) Recv(ctx context.Context) (core.Msg, error) {
	select {
	case msg := <-r.p.ch:
		return msg, nil
	default:
	}
	select {
	case msg := <-r.p.ch:
		return msg, nil
	case <-r.p.closed:
		select {
		case msg := <-r.p.ch:
			return msg, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// C exposes the underlying channel for use in select loops. It is never closed;
// watch Done for shutdown.
func (r Receiver) C() <-chan core.Msg {
	return r.p.ch
}

func (r Receiver) Done() <-chan struct{} {
	return r.p.closed
}

func (r Receiver) Close() {
	r.p.close()
}

func (r Receiver) Len() int { return len(r.p.ch) }

func (r Receiver) Cap() int { return cap(r.p.ch) }
