// Package runner executes LLM-written scripts and carries the runner
// protocol: newline-delimited JSON frames between the orchestration
// process and a script runner, with bidirectional invocation of host
// operator methods and external tools while a script is running.
//
// Four runners are provided: an in-process expression evaluator, a
// Python child process over stdio, the same Python runner inside a
// container, and a remote runner over a WebSocket stream.
package runner

import (
	"context"
	"encoding/json"
)

// Runner executes a composed script and returns its raw JSON result.
type Runner interface {
	// Start makes the runner ready. Idempotent.
	Start(ctx context.Context) error
	// Execute runs the script and returns the result value, or an
	// error: *Error for script failures reported by the runner,
	// *ClosedError when the transport died mid-execution.
	Execute(ctx context.Context, script string) (json.RawMessage, error)
	// Close stops the runner, failing in-flight executions.
	Close() error
}

// OperatorInvoker is the host side of invoke-request frames.
type OperatorInvoker interface {
	Invoke(ctx context.Context, target, method, handleID string, args []json.RawMessage) (any, error)
}

// ToolInvoker is the host side of mcp-invoke-request frames.
type ToolInvoker interface {
	Invoke(ctx context.Context, server, tool string, args map[string]json.RawMessage) (json.RawMessage, error)
}

// Error is a script failure reported by a runner: the error field of an
// exec-result, or an evaluation failure in the in-process runner.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// ClosedError is the terminal failure delivered to every pending
// execution when the transport closes.
type ClosedError struct {
	Reason error
}

func (e *ClosedError) Error() string {
	if e.Reason != nil {
		return "runner transport closed: " + e.Reason.Error()
	}
	return "runner transport closed"
}

func (e *ClosedError) Unwrap() error { return e.Reason }
