package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"

	"github.com/peopleworks/ason/operator"
)

// InProcessRunner evaluates scripts with the expr expression dialect,
// no transport involved. Operator instances appear as environment
// objects whose method calls route through the same invocation
// pipeline as the wire path, so handles and the method cache behave
// identically across runners.
type InProcessRunner struct {
	reg    *operator.Registry
	inv    *operator.Invoker
	tools  ToolInvoker
	logger *slog.Logger
}

// NewInProcessRunner creates an in-process runner over the registry.
// tools may be nil.
func NewInProcessRunner(reg *operator.Registry, inv *operator.Invoker, tools ToolInvoker, logger *slog.Logger) *InProcessRunner {
	if logger == nil {
		logger = slog.New(discardLogHandler{})
	}
	return &InProcessRunner{reg: reg, inv: inv, tools: tools, logger: logger}
}

// Start is a no-op: there is no transport.
func (r *InProcessRunner) Start(context.Context) error { return nil }

// Close is a no-op.
func (r *InProcessRunner) Close() error { return nil }

// Execute compiles and runs the script against the operator
// environment. Evaluation failures return *Error so the repair loop
// treats them like runner-reported errors.
func (r *InProcessRunner) Execute(ctx context.Context, script string) (json.RawMessage, error) {
	env := r.reg.ScriptEnv(ctx, r.inv)
	env["tool"] = func(server, tool string, args map[string]any) (any, error) {
		if r.tools == nil {
			return nil, fmt.Errorf("no tool servers registered")
		}
		named := make(map[string]json.RawMessage, len(args))
		for k, v := range args {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("tool argument %q is not serializable: %w", k, err)
			}
			named[k] = raw
		}
		raw, err := r.tools.Invoke(ctx, server, tool, named)
		if err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return string(raw), nil
		}
		return value, nil
	}

	program, err := expr.Compile(script, expr.Env(env))
	if err != nil {
		return nil, &Error{Message: "compile error: " + err.Error()}
	}
	value, err := expr.Run(program, env)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}

	raw, err := json.Marshal(stripOperatorObjects(value))
	if err != nil {
		return nil, &Error{Message: "result not serializable: " + err.Error()}
	}
	return raw, nil
}

// stripOperatorObjects reduces operator environment objects in a result
// to their handle reference so the raw result stays serializable.
func stripOperatorObjects(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if h, ok := v["$handle"].(string); ok {
			t, _ := v["$type"].(string)
			return operator.Ref{Type: t, Handle: h}
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = stripOperatorObjects(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = stripOperatorObjects(item)
		}
		return out
	default:
		return value
	}
}

var _ Runner = (*InProcessRunner)(nil)
