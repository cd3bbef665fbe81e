package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// RemotePath is the WebSocket endpoint a remote runner serves.
const RemotePath = "/runner"

// RemoteTransport exchanges protocol frames with a remote runner over a
// long-lived WebSocket stream, one frame per text message. The
// connection does not reconnect: close is terminal for the session.
type RemoteTransport struct {
	baseURL string
	logger  *slog.Logger

	mu       sync.Mutex
	started  bool
	closed   bool
	conn     *websocket.Conn
	writeMu  sync.Mutex
	onLine   func([]byte)
	onClosed func(error)
}

// NewRemoteTransport creates a transport for the runner at baseURL
// (e.g. "ws://runner:9000" or "http://runner:9000").
func NewRemoteTransport(baseURL string, logger *slog.Logger) *RemoteTransport {
	if logger == nil {
		logger = slog.New(discardLogHandler{})
	}
	return &RemoteTransport{baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

func (t *RemoteTransport) Notify(onLine func([]byte), onClosed func(error)) {
	t.onLine = onLine
	t.onClosed = onClosed
}

// Start dials the remote runner. Idempotent while the connection is
// live; after close the transport cannot be restarted.
func (t *RemoteTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("runner: remote transport is terminal after close")
	}
	if t.started {
		return nil
	}
	if t.baseURL == "" {
		return errors.New("runner: remote runner URL is required")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(t.baseURL), nil)
	if err != nil {
		return fmt.Errorf("runner: dial %s: %w", t.baseURL, err)
	}
	t.conn = conn
	t.started = true
	once := &sync.Once{}
	go t.readLoop(conn, once)
	return nil
}

func (t *RemoteTransport) readLoop(conn *websocket.Conn, once *sync.Once) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.fireClosed(once, err)
			return
		}
		for line := range strings.Lines(string(data)) {
			line = strings.TrimRight(line, "\n")
			if line != "" && t.onLine != nil {
				t.onLine([]byte(line))
			}
		}
	}
}

func (t *RemoteTransport) fireClosed(once *sync.Once, reason error) {
	once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		if t.onClosed != nil {
			t.onClosed(reason)
		}
	})
}

// Send writes one protocol line as a text message.
func (t *RemoteTransport) Send(line []byte) error {
	t.mu.Lock()
	started, closed, conn := t.started, t.closed, t.conn
	t.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if closed {
		return &ClosedError{}
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
		return &ClosedError{Reason: err}
	}
	return nil
}

// Stop closes the connection; the read loop delivers the close event.
func (t *RemoteTransport) Stop() error {
	t.mu.Lock()
	conn := t.conn
	started, closed := t.started, t.closed
	t.mu.Unlock()
	if !started || closed || conn == nil {
		return nil
	}
	return conn.Close()
}

// wsURL maps http(s) schemes to ws(s) and appends the runner path.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	return base + RemotePath
}

var _ Transport = (*RemoteTransport)(nil)
