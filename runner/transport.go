package runner

import (
	"context"
	"errors"
)

// ErrNotStarted is returned by Send before a successful Start.
var ErrNotStarted = errors.New("runner: transport not started")

// Transport carries newline-delimited JSON lines to and from a runner
// process. Implementations deliver received lines and the close event
// through the callbacks registered with Notify before Start.
//
// Start is idempotent and serialized by a lifecycle mutex. After the
// closed callback fires, Send fails with *ClosedError until Start
// succeeds again (the remote transport never restarts: close is
// terminal for the session).
type Transport interface {
	// Notify registers the line and close callbacks. Must be called
	// before Start. onLine runs on the transport's read goroutine;
	// onClosed fires exactly once per started lifetime.
	Notify(onLine func(line []byte), onClosed func(reason error))
	Start(ctx context.Context) error
	Stop() error
	Send(line []byte) error
}
