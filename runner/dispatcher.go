package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Dispatcher correlates exec-requests with their exec-results: a table
// of one-shot completion slots keyed by request ID. Entries are removed
// exactly once — on resolve, on cancellation, or when the transport
// close fails every outstanding slot.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]chan execOutcome
	logger  *slog.Logger
}

type execOutcome struct {
	result json.RawMessage
	err    error
}

// NewDispatcher creates an empty correlation table.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(discardLogHandler{})
	}
	return &Dispatcher{
		pending: make(map[string]chan execOutcome),
		logger:  logger,
	}
}

// Dispatch allocates a fresh request ID, registers a slot, sends the
// exec-request through send, and awaits the matching exec-result.
// Cancellation removes the slot; a late result for a cancelled ID finds
// no slot and is discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, code string, send func(Frame) error) (json.RawMessage, error) {
	id := uuid.Must(uuid.NewV7()).String()
	slot := make(chan execOutcome, 1)

	d.mu.Lock()
	d.pending[id] = slot
	d.mu.Unlock()

	if err := send(Frame{Type: TypeExecRequest, ID: id, Code: code}); err != nil {
		d.remove(id)
		return nil, err
	}

	select {
	case out := <-slot:
		return out.result, out.err
	case <-ctx.Done():
		d.remove(id)
		return nil, ctx.Err()
	}
}

// Resolve completes the slot for id. A non-empty error string fails it
// with a runner error; otherwise the JSON value (cloned into a stable
// copy) completes it. Unmatched IDs are logged and dropped.
func (d *Dispatcher) Resolve(id string, result json.RawMessage, errMsg string) {
	slot, ok := d.take(id)
	if !ok {
		d.logger.Debug("exec-result for unknown id dropped", "id", id)
		return
	}
	if errMsg != "" {
		slot <- execOutcome{err: &Error{Message: errMsg}}
		return
	}
	// Clone: the decode buffer may be reused by the transport reader.
	stable := make(json.RawMessage, len(result))
	copy(stable, result)
	if len(stable) == 0 {
		stable = json.RawMessage("null")
	}
	slot <- execOutcome{result: stable}
}

// FailAll fails every outstanding slot with a transport-closed error.
func (d *Dispatcher) FailAll(reason error) {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]chan execOutcome)
	d.mu.Unlock()
	for _, slot := range pending {
		slot <- execOutcome{err: &ClosedError{Reason: reason}}
	}
}

// Pending reports the number of in-flight executions.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) take(id string) (chan execOutcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	return slot, ok
}

func (d *Dispatcher) remove(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

type discardLogHandler struct{}

func (discardLogHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardLogHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardLogHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardLogHandler) WithGroup(string) slog.Handler           { return d }
