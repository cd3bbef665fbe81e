package operator

import (
	"strings"
	"testing"
)

func TestLookupByArity(t *testing.T) {
	reg, _ := newTestRegistry()

	if _, ok := reg.Lookup("SimpleOperator", "Concatenate", 2); !ok {
		t.Fatal("Concatenate/2 not resolvable")
	}
	if _, ok := reg.Lookup("SimpleOperator", "Concatenate", 3); ok {
		t.Fatal("Concatenate/3 should not resolve")
	}
	if _, ok := reg.Lookup("SimpleOperator", "Missing", 0); ok {
		t.Fatal("unknown method resolved")
	}
}

func TestVariadicClosesOverArity(t *testing.T) {
	reg, _ := newTestRegistry()

	two, ok := reg.Lookup("SimpleOperator", "Sum", 2)
	if !ok {
		t.Fatal("Sum/2 not resolvable")
	}
	three, ok := reg.Lookup("SimpleOperator", "Sum", 3)
	if !ok {
		t.Fatal("Sum/3 not resolvable")
	}
	if two == three {
		t.Fatal("distinct arities must close distinct entries")
	}
	if two.Arity != 2 || three.Arity != 3 {
		t.Fatalf("closed arities wrong: %d, %d", two.Arity, three.Arity)
	}

	// Memoized: same closed entry on repeat lookup.
	again, _ := reg.Lookup("SimpleOperator", "Sum", 2)
	if again != two {
		t.Fatal("closed entry not memoized")
	}
}

func TestVariadicMinimumArity(t *testing.T) {
	reg, _ := newTestRegistry()

	// JoinAll(sep string, parts ...string): minimum arity 1.
	if _, ok := reg.Lookup("SimpleOperator", "JoinAll", 0); ok {
		t.Fatal("JoinAll/0 resolved below minimum arity")
	}
	if _, ok := reg.Lookup("SimpleOperator", "JoinAll", 1); !ok {
		t.Fatal("JoinAll/1 not resolvable")
	}
	if _, ok := reg.Lookup("SimpleOperator", "JoinAll", 4); !ok {
		t.Fatal("JoinAll/4 not resolvable")
	}
}

func TestDuplicateOperatorTypeFails(t *testing.T) {
	reg, _ := newTestRegistry()
	err := reg.Register(&SimpleOperator{})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate type error, got %v", err)
	}
}

type collider struct{}

func (collider) Fetch() string      { return "sync" }
func (collider) FetchAsync() string { return "async" }

func TestAsyncTrimCollisionFailsBuild(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(collider{})
	if err == nil || !strings.Contains(err.Error(), "collide") {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestMethodFilterHidesEntries(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.SetMethodFilter(func(e *MethodEntry) bool { return e.Name != "Boom" })

	if _, ok := reg.Lookup("SimpleOperator", "Boom", 0); ok {
		t.Fatal("filtered method still resolvable")
	}
	if _, ok := reg.Lookup("SimpleOperator", "AddNumbers", 1); !ok {
		t.Fatal("unfiltered method lost")
	}
}
