package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Client is the protocol demultiplexer over a Transport: it sends
// exec-requests through the dispatcher, classifies incoming frames, and
// services invoke-request / mcp-invoke-request callbacks concurrently
// so a running script can issue parallel host calls without deadlocking
// against its own exec-result.
type Client struct {
	transport Transport
	disp      *Dispatcher
	ops       OperatorInvoker
	tools     ToolInvoker
	logger    *slog.Logger

	startMu sync.Mutex
	started bool
	compose func(userScript string) string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the structured logger for protocol and runner
// log frames.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient wires a transport to the invocation pipeline. tools may be
// nil when no tool servers are registered.
func NewClient(t Transport, ops OperatorInvoker, tools ToolInvoker, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		ops:       ops,
		tools:     tools,
		logger:    slog.New(discardLogHandler{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.disp = NewDispatcher(c.logger)
	return c
}

// Start registers the frame handlers and starts the transport.
// Idempotent.
func (c *Client) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}
	c.transport.Notify(c.onLine, c.onClosed)
	if err := c.transport.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// SetComposer sets the function that wraps a user script with the
// proxy runtime and live-instance declarations before dispatch. Set
// once after the proxy bundle is built, before the first Execute.
func (c *Client) SetComposer(compose func(userScript string) string) {
	c.compose = compose
}

// Execute dispatches the script and awaits its result. When a composer
// is set, the user script is wrapped first.
func (c *Client) Execute(ctx context.Context, script string) (json.RawMessage, error) {
	if c.compose != nil {
		script = c.compose(script)
	}
	return c.disp.Dispatch(ctx, script, func(f Frame) error {
		return c.send(f)
	})
}

// Close stops the transport; pending executions fail through the close
// event.
func (c *Client) Close() error {
	c.startMu.Lock()
	c.started = false
	c.startMu.Unlock()
	return c.transport.Stop()
}

// Pending reports in-flight executions (used by tests and shutdown).
func (c *Client) Pending() int { return c.disp.Pending() }

func (c *Client) send(f Frame) error {
	line, err := Encode(f)
	if err != nil {
		return err
	}
	return c.transport.Send(line)
}

// onLine classifies one incoming frame. Malformed lines and unknown
// discriminators are logged; the session continues.
func (c *Client) onLine(line []byte) {
	f, err := Decode(line)
	if err != nil {
		c.logger.Warn("protocol error", "error", err)
		return
	}
	switch f.Type {
	case TypeLog:
		c.logFrame(f)
	case TypeExecResult:
		c.disp.Resolve(f.ID, f.Result, f.Error)
	case TypeInvokeRequest:
		go c.handleInvoke(f)
	case TypeMCPInvokeRequest:
		go c.handleMCPInvoke(f)
	default:
		c.logger.Warn("unknown frame type ignored", "type", f.Type)
	}
}

func (c *Client) onClosed(reason error) {
	c.disp.FailAll(reason)
}

func (c *Client) logFrame(f Frame) {
	attrs := []any{"source", f.Source}
	if f.Exception != "" {
		attrs = append(attrs, "exception", f.Exception)
	}
	switch f.Level {
	case "debug":
		c.logger.Debug(f.Message, attrs...)
	case "warn", "warning":
		c.logger.Warn(f.Message, attrs...)
	case "error":
		c.logger.Error(f.Message, attrs...)
	default:
		c.logger.Info(f.Message, attrs...)
	}
}

// handleInvoke services one operator callback and replies with an
// invoke-result carrying either the serialized value or the error text.
func (c *Client) handleInvoke(f Frame) {
	reply := Frame{Type: TypeInvokeResult, ID: f.ID}
	value, err := c.ops.Invoke(context.Background(), f.Target, f.Method, f.HandleID, f.Args)
	if err != nil {
		reply.Error = err.Error()
	} else if raw, merr := json.Marshal(value); merr != nil {
		reply.Error = "result not serializable: " + merr.Error()
	} else {
		reply.Result = raw
	}
	if serr := c.send(reply); serr != nil {
		c.logger.Warn("invoke-result send failed", "id", f.ID, "error", serr)
	}
}

// handleMCPInvoke services one external tool callback.
func (c *Client) handleMCPInvoke(f Frame) {
	reply := Frame{Type: TypeInvokeResult, ID: f.ID}
	if c.tools == nil {
		reply.Error = "no tool servers registered"
	} else if result, err := c.tools.Invoke(context.Background(), f.Server, f.Tool, f.Arguments); err != nil {
		reply.Error = err.Error()
	} else {
		reply.Result = result
	}
	if serr := c.send(reply); serr != nil {
		c.logger.Warn("invoke-result send failed", "id", f.ID, "error", serr)
	}
}

var _ Runner = (*Client)(nil)
