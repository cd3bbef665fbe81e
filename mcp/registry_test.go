package mcp

import (
	"context"
	"testing"
)

func TestInvokeUnknownServer(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", "tool", nil)
	if err == nil {
		t.Fatal("unknown server accepted")
	}
}

func TestCatalogsEmpty(t *testing.T) {
	r := NewRegistry()
	if got := r.Catalogs(); len(got) != 0 {
		t.Fatalf("expected no catalogs, got %d", len(got))
	}
}
