package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Fixtures shared by the operator package tests.

type TestModel struct {
	A int `json:"A"`
	B int `json:"B"`
}

type SimpleOperator struct {
	created string // marks instance identity across handle round-trips
}

func (s *SimpleOperator) AddNumbers(m TestModel) int {
	return m.A + m.B
}

func (s *SimpleOperator) Concatenate(a, b string) string {
	return a + b
}

func (s *SimpleOperator) Sum(nums ...int) int {
	total := 0
	for _, n := range nums {
		total += n
	}
	return total
}

func (s *SimpleOperator) JoinAll(sep string, parts ...string) string {
	return strings.Join(parts, sep)
}

func (s *SimpleOperator) Tag() string {
	return s.created
}

func (s *SimpleOperator) Boom() error {
	return errors.New("kaboom")
}

func (s *SimpleOperator) Refuse() error {
	return errors.New("Cannot touch this")
}

type TestRootOperator struct {
	counter int
}

func (r *TestRootOperator) GetSimpleOperator() *SimpleOperator {
	r.counter++
	return &SimpleOperator{created: fmt.Sprintf("instance-%d", r.counter)}
}

func (r *TestRootOperator) DescribeAsync(ctx context.Context, s *SimpleOperator) (string, error) {
	if s == nil {
		return "", errors.New("nil operator")
	}
	return "described " + s.created, nil
}

func (r *TestRootOperator) Echo(values []string) []string {
	return values
}

func newTestRegistry() (*Registry, *TestRootOperator) {
	reg := NewRegistry()
	root := &TestRootOperator{}
	if err := reg.RegisterRoot(root, WithDescription("test root"),
		WithMethodDoc("GetSimpleOperator", "Creates a simple operator.")); err != nil {
		panic(err)
	}
	if err := reg.Register(&SimpleOperator{}, WithMethodDoc("AddNumbers", "Adds two numbers.")); err != nil {
		panic(err)
	}
	return reg, root
}
