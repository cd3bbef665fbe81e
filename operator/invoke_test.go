package operator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestInvokeRootMethod(t *testing.T) {
	reg, _ := newTestRegistry()
	inv := NewInvoker(reg)

	value, err := inv.Invoke(context.Background(), "TestRootOperator", "GetSimpleOperator", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := value.(Ref)
	if !ok {
		t.Fatalf("expected Ref, got %T", value)
	}
	if ref.Type != "SimpleOperator" || ref.Handle == "" {
		t.Fatalf("bad ref: %+v", ref)
	}
}

func TestHandleRoundTrip(t *testing.T) {
	reg, _ := newTestRegistry()
	inv := NewInvoker(reg)
	ctx := context.Background()

	value, err := inv.Invoke(ctx, "TestRootOperator", "GetSimpleOperator", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	ref := value.(Ref)

	// Address the instance by its handle.
	tag, err := inv.Invoke(ctx, "SimpleOperator", "Tag", ref.Handle, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tag != "instance-1" {
		t.Fatalf("expected instance-1, got %v", tag)
	}

	// Pass the handle back as an argument: Describe dereferences the
	// same instance.
	desc, err := inv.Invoke(ctx, "TestRootOperator", "Describe", "", []json.RawMessage{raw(t, ref)})
	if err != nil {
		t.Fatal(err)
	}
	if desc != "described instance-1" {
		t.Fatalf("expected described instance-1, got %v", desc)
	}
}

func TestInvokeRequiresHandleForInstanceMethod(t *testing.T) {
	reg, _ := newTestRegistry()
	inv := NewInvoker(reg)

	_, err := inv.Invoke(context.Background(), "SimpleOperator", "Tag", "", nil)
	if err == nil || !strings.Contains(err.Error(), "handle") {
		t.Fatalf("expected handle error, got %v", err)
	}
}

func TestArgumentCoercion(t *testing.T) {
	reg, _ := newTestRegistry()
	inv := NewInvoker(reg)
	ctx := context.Background()

	value, _ := inv.Invoke(ctx, "TestRootOperator", "GetSimpleOperator", "", nil)
	handle := value.(Ref).Handle

	// Nested DTO object.
	sum, err := inv.Invoke(ctx, "SimpleOperator", "AddNumbers", handle,
		[]json.RawMessage{raw(t, map[string]int{"A": 2, "B": 3})})
	if err != nil {
		t.Fatal(err)
	}
	if sum != 5 {
		t.Fatalf("expected 5, got %v", sum)
	}

	// Strings.
	joined, err := inv.Invoke(ctx, "SimpleOperator", "Concatenate", handle,
		[]json.RawMessage{raw(t, "hello"), raw(t, " world")})
	if err != nil {
		t.Fatal(err)
	}
	if joined != "hello world" {
		t.Fatalf("expected hello world, got %v", joined)
	}

	// Array of T.
	echoed, err := inv.Invoke(ctx, "TestRootOperator", "Echo", "",
		[]json.RawMessage{raw(t, []string{"a", "b"})})
	if err != nil {
		t.Fatal(err)
	}
	list, ok := echoed.([]string)
	if !ok || len(list) != 2 || list[0] != "a" || list[1] != "b" {
		t.Fatalf("expected [a b], got %v", echoed)
	}

	// Variadic closed over concrete arities.
	total, err := inv.Invoke(ctx, "SimpleOperator", "Sum", handle,
		[]json.RawMessage{raw(t, 1), raw(t, 2), raw(t, 3)})
	if err != nil {
		t.Fatal(err)
	}
	if total != 6 {
		t.Fatalf("expected 6, got %v", total)
	}
}

func TestInvokeMethodNotFound(t *testing.T) {
	reg, _ := newTestRegistry()
	inv := NewInvoker(reg)

	_, err := inv.Invoke(context.Background(), "SimpleOperator", "AddNumbers", "x",
		[]json.RawMessage{raw(t, 1), raw(t, 2)})
	if err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Fatalf("expected method-not-found, got %v", err)
	}
}

func TestInvokeErrorPropagates(t *testing.T) {
	reg, _ := newTestRegistry()
	inv := NewInvoker(reg)
	ctx := context.Background()

	value, _ := inv.Invoke(ctx, "TestRootOperator", "GetSimpleOperator", "", nil)
	handle := value.(Ref).Handle

	_, err := inv.Invoke(ctx, "SimpleOperator", "Boom", handle, nil)
	if err == nil || err.Error() != "kaboom" {
		t.Fatalf("expected kaboom, got %v", err)
	}
}

func TestAffinitySchedulerReentrancy(t *testing.T) {
	reg, _ := newTestRegistry()
	sched := NewAffinityScheduler()
	defer sched.Close()
	inv := NewInvoker(reg, WithScheduler(sched))
	ctx := context.Background()

	// A nested invocation from within a scheduled invocation must run
	// inline instead of deadlocking against the affinity queue.
	value, err := sched.Invoke(ctx, func(ctx context.Context) (any, error) {
		return inv.Invoke(ctx, "TestRootOperator", "GetSimpleOperator", "", nil)
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := value.(Ref); !ok {
		t.Fatalf("expected Ref, got %T", value)
	}
}
