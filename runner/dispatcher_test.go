package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDispatchOutOfOrderCompletion(t *testing.T) {
	d := NewDispatcher(nil)

	const m = 8
	var mu sync.Mutex
	ids := make([]string, 0, m)
	codes := make(map[string]string, m)
	ready := make(chan struct{})

	send := func(f Frame) error {
		mu.Lock()
		ids = append(ids, f.ID)
		codes[f.ID] = f.Code
		if len(ids) == m {
			close(ready)
		}
		mu.Unlock()
		return nil
	}

	results := make([]json.RawMessage, m)
	errs := make([]error, m)
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Dispatch(context.Background(), fmt.Sprintf("code-%d", i), send)
		}(i)
	}

	<-ready
	// Reply in reverse order; each caller must still receive its own
	// result.
	mu.Lock()
	sent := append([]string(nil), ids...)
	mu.Unlock()
	for i := m - 1; i >= 0; i-- {
		d.Resolve(sent[i], json.RawMessage(fmt.Sprintf("%d", i)), "")
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < m; i++ {
		if errs[i] != nil {
			t.Fatalf("dispatch %d failed: %v", i, errs[i])
		}
		seen[string(results[i])] = true
	}
	if len(seen) != m {
		t.Fatalf("expected %d distinct results, got %d", m, len(seen))
	}
	want := make(map[string]string, m)
	for j, id := range sent {
		want[codes[id]] = fmt.Sprintf("%d", j)
	}
	for i := 0; i < m; i++ {
		code := fmt.Sprintf("code-%d", i)
		if got := string(results[i]); got != want[code] {
			t.Fatalf("dispatch %d got %s, want the result replied to its own id (%s)", i, got, want[code])
		}
	}
	if d.Pending() != 0 {
		t.Fatalf("pending slots remain: %d", d.Pending())
	}
}

func TestDispatchErrorResult(t *testing.T) {
	d := NewDispatcher(nil)
	var id string
	send := func(f Frame) error { id = f.ID; return nil }

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "x", send)
		done <- err
	}()
	waitFor(t, func() bool { return d.Pending() == 1 })
	d.Resolve(id, nil, "boom")

	err := <-done
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Message != "boom" {
		t.Fatalf("expected runner error boom, got %v", err)
	}
}

func TestTransportCloseFailsAllPending(t *testing.T) {
	d := NewDispatcher(nil)
	send := func(Frame) error { return nil }

	const m = 5
	done := make(chan error, m)
	for i := 0; i < m; i++ {
		go func() {
			_, err := d.Dispatch(context.Background(), "x", send)
			done <- err
		}()
	}
	waitFor(t, func() bool { return d.Pending() == m })

	d.FailAll(errors.New("gone"))
	for i := 0; i < m; i++ {
		err := <-done
		var closed *ClosedError
		if !errors.As(err, &closed) {
			t.Fatalf("expected ClosedError, got %v", err)
		}
	}
	if d.Pending() != 0 {
		t.Fatal("pending slots remain after close")
	}
}

func TestCancelledDispatchIgnoresLateResult(t *testing.T) {
	d := NewDispatcher(nil)
	var id string
	send := func(f Frame) error { id = f.ID; return nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(ctx, "x", send)
		done <- err
	}()
	waitFor(t, func() bool { return d.Pending() == 1 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if d.Pending() != 0 {
		t.Fatal("cancelled slot not removed")
	}

	// A late exec-result for the cancelled id finds no slot and is
	// discarded.
	d.Resolve(id, json.RawMessage("1"), "")
	if d.Pending() != 0 {
		t.Fatal("late result recreated a slot")
	}
}

func TestDispatchSendFailureCleansUp(t *testing.T) {
	d := NewDispatcher(nil)
	send := func(Frame) error { return &ClosedError{} }
	_, err := d.Dispatch(context.Background(), "x", send)
	var closed *ClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected ClosedError, got %v", err)
	}
	if d.Pending() != 0 {
		t.Fatal("slot leaked after send failure")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
