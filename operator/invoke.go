package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
)

// Invoker resolves and calls host operator methods on behalf of a
// running script. Safe for concurrent use; the handle table and method
// cache it touches are concurrent structures.
type Invoker struct {
	reg    *Registry
	sched  Scheduler
	logger *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithScheduler sets the invocation scheduler.
// Default: the pass-through scheduler.
func WithScheduler(s Scheduler) InvokerOption {
	return func(i *Invoker) { i.sched = s }
}

// WithLogger sets the structured logger for invocation failures.
func WithLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = l }
}

// NewInvoker creates an invoker over the registry.
func NewInvoker(reg *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{reg: reg, sched: PassThrough(), logger: nopLogger}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke resolves (target, method, arity) against the method cache,
// coerces the JSON arguments into the declared parameter types, binds
// the receiver (root singleton, static facade, or handle lookup) and
// calls the host method through the scheduler. The returned value is
// the raw host result; operator-typed returns are replaced by a Ref
// after the instance is stored in the handle table.
func (inv *Invoker) Invoke(ctx context.Context, target, method, handleID string, args []json.RawMessage) (any, error) {
	desc, ok := inv.reg.Descriptor(target)
	if !ok {
		return nil, fmt.Errorf("unknown operator type %q", target)
	}
	entry, ok := inv.reg.Lookup(target, method, len(args))
	if !ok {
		return nil, fmt.Errorf("method not found: %s.%s/%d", target, method, len(args))
	}

	in, err := inv.coerceArgs(entry, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", target, method, err)
	}

	recv, err := inv.receiver(desc, entry, handleID)
	if err != nil {
		return nil, err
	}

	value, err := inv.sched.Invoke(ctx, func(ctx context.Context) (any, error) {
		return inv.call(ctx, entry, recv, in)
	})
	if err != nil {
		inv.logger.Debug("operator invocation failed",
			"target", target, "method", method, "error", err)
		return nil, err
	}
	return inv.wrapResult(value), nil
}

// receiver resolves the instance a method is invoked on. Static and
// self-rooted descriptors use the registered singleton; handle-assigned
// descriptors require a handle.
func (inv *Invoker) receiver(desc *Descriptor, entry *MethodEntry, handleID string) (reflect.Value, error) {
	switch desc.Policy {
	case Static, SelfRooted:
		if handleID == "" || handleID == desc.Name {
			return desc.root, nil
		}
	}
	if handleID == "" {
		return reflect.Value{}, fmt.Errorf("%s.%s: instance method requires a handle", desc.Name, entry.Name)
	}
	instance, ok := inv.reg.handles.Get(handleID)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%s: no live instance for handle %q", desc.Name, handleID)
	}
	return reflect.ValueOf(instance), nil
}

// call performs the reflective invocation and unwraps the result:
// trailing errors propagate, void methods yield nil.
func (inv *Invoker) call(ctx context.Context, entry *MethodEntry, recv reflect.Value, in []reflect.Value) (any, error) {
	full := make([]reflect.Value, 0, len(in)+2)
	full = append(full, recv)
	if entry.TakesContext {
		full = append(full, reflect.ValueOf(ctx))
	}
	full = append(full, in...)

	out := entry.fn.Call(full)

	if entry.ReturnsError {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// coerceArgs converts each JSON argument into the declared parameter
// type. Handle references decode through the handle table when the
// declared type is a registered operator.
func (inv *Invoker) coerceArgs(entry *MethodEntry, args []json.RawMessage) ([]reflect.Value, error) {
	fixed := entry.params
	var variadicElem reflect.Type
	if entry.Variadic {
		variadicElem = fixed[len(fixed)-1].Elem()
		fixed = fixed[:len(fixed)-1]
	}
	if !entry.Variadic && len(args) != len(fixed) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(fixed), len(args))
	}
	if entry.Variadic && len(args) < len(fixed) {
		return nil, fmt.Errorf("expected at least %d arguments, got %d", len(fixed), len(args))
	}

	out := make([]reflect.Value, 0, len(args))
	for i, raw := range args {
		var pt reflect.Type
		if i < len(fixed) {
			pt = fixed[i]
		} else if variadicElem != nil {
			pt = variadicElem
		} else {
			return nil, fmt.Errorf("too many arguments: %d", len(args))
		}
		v, err := inv.coerceArg(raw, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (inv *Invoker) coerceArg(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	// Operator-typed parameter: the wire form is a Ref.
	if _, isOp := inv.reg.descriptorFor(t); isOp {
		var ref Ref
		if err := json.Unmarshal(raw, &ref); err != nil || ref.Handle == "" {
			return reflect.Value{}, fmt.Errorf("expected an operator handle reference")
		}
		instance, ok := inv.reg.handles.Get(ref.Handle)
		if !ok {
			return reflect.Value{}, fmt.Errorf("no live instance for handle %q", ref.Handle)
		}
		v := reflect.ValueOf(instance)
		if !v.Type().AssignableTo(t) {
			return reflect.Value{}, fmt.Errorf("handle %q holds %s, want %s", ref.Handle, v.Type(), t)
		}
		return v, nil
	}

	if t == rawMessageType {
		return reflect.ValueOf(raw), nil
	}

	v := reflect.New(t)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s: %w", compact(raw), t, err)
	}
	return v.Elem(), nil
}

// wrapResult replaces operator-typed return values with handle Refs so
// the script receives an opaque reference instead of serialized host
// state.
func (inv *Invoker) wrapResult(value any) any {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	d, ok := inv.reg.descriptorFor(v.Type())
	if !ok {
		return value
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	if d.Policy != HandleAssigned {
		// Self-rooted and static operators keep their sentinel handle.
		return Ref{Type: d.Name, Handle: d.Name}
	}
	handle := inv.reg.handles.Assign(d.Name, value)
	return Ref{Type: d.Name, Handle: handle}
}

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	s := buf.String()
	if len(s) > 80 {
		s = s[:80] + "…"
	}
	return s
}

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
