package runner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/peopleworks/ason/operator"
)

type calcModel struct {
	A int `json:"A"`
	B int `json:"B"`
}

type calc struct{}

func (calc) AddNumbers(m calcModel) int     { return m.A + m.B }
func (calc) Concatenate(a, b string) string { return a + b }
func (calc) Fail() error                    { return errors.New("kaboom") }

func newInprocRunner(t *testing.T) *InProcessRunner {
	t.Helper()
	reg := operator.NewRegistry()
	if err := reg.RegisterRoot(&calc{}, operator.WithName("Calc")); err != nil {
		t.Fatal(err)
	}
	inv := operator.NewInvoker(reg)
	return NewInProcessRunner(reg, inv, nil, nil)
}

func TestInProcessExpression(t *testing.T) {
	r := newInprocRunner(t)
	raw, err := r.Execute(context.Background(), "1 + 2")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "3" {
		t.Fatalf("expected 3, got %s", raw)
	}
}

func TestInProcessOperatorCall(t *testing.T) {
	r := newInprocRunner(t)
	raw, err := r.Execute(context.Background(), `calc.AddNumbers({A: 2, B: 3})`)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "5" {
		t.Fatalf("expected 5, got %s", raw)
	}
}

func TestInProcessLetBinding(t *testing.T) {
	r := newInprocRunner(t)
	raw, err := r.Execute(context.Background(),
		`let x = calc.Concatenate("hello", " world"); x`)
	if err != nil {
		t.Fatal(err)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s != "hello world" {
		t.Fatalf("expected hello world, got %s", raw)
	}
}

func TestInProcessRuntimeError(t *testing.T) {
	r := newInprocRunner(t)
	_, err := r.Execute(context.Background(), "calc.Fail()")
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected runner error, got %v", err)
	}
	if !strings.Contains(rerr.Message, "kaboom") {
		t.Fatalf("expected kaboom, got %s", rerr.Message)
	}
}

func TestInProcessCompileError(t *testing.T) {
	r := newInprocRunner(t)
	_, err := r.Execute(context.Background(), "calc.AddNumbers(")
	var rerr *Error
	if !errors.As(err, &rerr) || !strings.Contains(rerr.Message, "compile error") {
		t.Fatalf("expected compile error, got %v", err)
	}
}
