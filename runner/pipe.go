package runner

import (
	"context"
	"sync"
)

// Pipe returns two connected in-memory transports: lines sent on one
// side are delivered to the other side's line callback. Used by tests
// and by hosts that embed both protocol ends in one process.
func Pipe() (*PipeTransport, *PipeTransport) {
	a := &PipeTransport{}
	b := &PipeTransport{}
	a.peer, b.peer = b, a
	return a, b
}

// PipeTransport is one end of an in-memory transport pair.
type PipeTransport struct {
	peer *PipeTransport

	mu       sync.Mutex
	started  bool
	closed   bool
	onLine   func([]byte)
	onClosed func(error)
}

func (t *PipeTransport) Notify(onLine func([]byte), onClosed func(error)) {
	t.onLine = onLine
	t.onClosed = onClosed
}

func (t *PipeTransport) Start(_ context.Context) error {
	t.mu.Lock()
	t.started = true
	t.closed = false
	t.mu.Unlock()
	return nil
}

// Send delivers the line to the peer's callback on a fresh goroutine,
// matching the asynchronous receive path of the process transports.
func (t *PipeTransport) Send(line []byte) error {
	t.mu.Lock()
	started, closed := t.started, t.closed
	t.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if closed {
		return &ClosedError{}
	}
	stable := make([]byte, len(line))
	copy(stable, line)
	go t.peer.deliver(stable)
	return nil
}

func (t *PipeTransport) deliver(line []byte) {
	t.mu.Lock()
	handler := t.onLine
	closed := t.closed
	t.mu.Unlock()
	if closed || handler == nil {
		return
	}
	handler(line)
}

// Stop closes both ends and fires their close events.
func (t *PipeTransport) Stop() error {
	t.closeSide(nil)
	t.peer.closeSide(nil)
	return nil
}

func (t *PipeTransport) closeSide(reason error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	handler := t.onClosed
	t.mu.Unlock()
	if handler != nil {
		handler(reason)
	}
}

var _ Transport = (*PipeTransport)(nil)
