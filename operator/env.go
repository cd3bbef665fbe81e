package operator

import (
	"context"
	"encoding/json"
	"fmt"
)

// ScriptEnv builds the evaluation environment for the in-process
// runner: one entry per script-visible operator variable, using the
// same names ComposeScript declares, so scripts are portable between
// the in-process and process-backed runners up to dialect.
//
// Each operator object is a map of method closures routed through the
// invoker, so handle semantics and cache lookups are identical to the
// wire path.
func (r *Registry) ScriptEnv(ctx context.Context, inv *Invoker) map[string]any {
	env := make(map[string]any)
	for _, ni := range r.instanceNames() {
		env[ni.VarName] = r.envObject(ctx, inv, ni.Type, ni.Handle)
	}
	return env
}

// envObject builds one script-side operator object: its methods plus
// the handle metadata that lets it round-trip as an argument.
func (r *Registry) envObject(ctx context.Context, inv *Invoker, typeName, handle string) map[string]any {
	d, ok := r.Descriptor(typeName)
	if !ok {
		return nil
	}
	obj := map[string]any{"$type": typeName}
	if handle != "" {
		obj["$handle"] = handle
	} else {
		obj["$handle"] = typeName // sentinel for root/static operators
	}
	for _, e := range r.entriesFor(d) {
		methodName := e.Name
		obj[methodName] = func(args ...any) (any, error) {
			raw, err := encodeEnvArgs(args)
			if err != nil {
				return nil, err
			}
			value, err := inv.Invoke(ctx, typeName, methodName, handle, raw)
			if err != nil {
				return nil, err
			}
			if ref, ok := value.(Ref); ok {
				return r.envObject(ctx, inv, ref.Type, ref.Handle), nil
			}
			return value, nil
		}
	}
	return obj
}

// encodeEnvArgs marshals evaluator values into the wire argument form.
// Operator objects collapse to their handle Ref; everything else goes
// through the JSON codec.
func encodeEnvArgs(args []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		if m, ok := a.(map[string]any); ok {
			if h, isOp := m["$handle"].(string); isOp {
				t, _ := m["$type"].(string)
				raw, err := json.Marshal(Ref{Type: t, Handle: h})
				if err != nil {
					return nil, err
				}
				out[i] = raw
				continue
			}
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d is not serializable: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}
