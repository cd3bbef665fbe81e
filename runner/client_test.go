package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeOps doubles its single integer argument.
type fakeOps struct{}

func (fakeOps) Invoke(_ context.Context, target, method, handleID string, args []json.RawMessage) (any, error) {
	if target != "Math" || method != "Double" {
		return nil, fmt.Errorf("method not found: %s.%s", target, method)
	}
	n, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return nil, err
	}
	return n * 2, nil
}

type fakeTools struct{}

func (fakeTools) Invoke(_ context.Context, server, tool string, args map[string]json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`"%s.%s"`, server, tool)), nil
}

// fakeRunnerSide simulates the runner process on the peer end of a
// pipe: scripts of the form "invoke:N" call back into the host before
// completing.
type fakeRunnerSide struct {
	t    *PipeTransport
	mu   sync.Mutex
	seq  int
	wait map[string]chan Frame
}

func startFakeRunner(t *testing.T, side *PipeTransport) *fakeRunnerSide {
	t.Helper()
	r := &fakeRunnerSide{t: side, wait: make(map[string]chan Frame)}
	side.Notify(r.onLine, func(error) {})
	if err := side.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return r
}

func (r *fakeRunnerSide) send(t *testing.T, f Frame) {
	line, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := r.t.Send(line); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func (r *fakeRunnerSide) onLine(line []byte) {
	f, err := Decode(line)
	if err != nil {
		return
	}
	switch f.Type {
	case TypeExecRequest:
		go r.exec(f)
	case TypeInvokeResult:
		r.mu.Lock()
		ch := r.wait[f.ID]
		delete(r.wait, f.ID)
		r.mu.Unlock()
		if ch != nil {
			ch <- f
		}
	}
}

func (r *fakeRunnerSide) exec(req Frame) {
	reply := func(f Frame) {
		line, _ := Encode(f)
		_ = r.t.Send(line)
	}

	switch {
	case strings.HasPrefix(req.Code, "invoke:"):
		n := strings.TrimPrefix(req.Code, "invoke:")
		result, err := r.callHost(Frame{
			Type:   TypeInvokeRequest,
			Target: "Math",
			Method: "Double",
			Args:   []json.RawMessage{json.RawMessage(n)},
		})
		if err != "" {
			reply(Frame{Type: TypeExecResult, ID: req.ID, Error: err})
			return
		}
		reply(Frame{Type: TypeExecResult, ID: req.ID, Result: result})

	case req.Code == "tool":
		result, errMsg := r.callHost(Frame{
			Type:      TypeMCPInvokeRequest,
			Server:    "search",
			Tool:      "query",
			Arguments: map[string]json.RawMessage{"q": json.RawMessage(`"x"`)},
		})
		if errMsg != "" {
			reply(Frame{Type: TypeExecResult, ID: req.ID, Error: errMsg})
			return
		}
		reply(Frame{Type: TypeExecResult, ID: req.ID, Result: result})

	case req.Code == "fail":
		reply(Frame{Type: TypeExecResult, ID: req.ID, Error: "Cannot comply"})

	case req.Code == "noise":
		// Unknown discriminators and malformed lines must not kill the
		// session.
		_ = r.t.Send([]byte("{\"type\":\"mystery\"}\n"))
		_ = r.t.Send([]byte("not json at all\n"))
		reply(Frame{Type: TypeLog, Level: "info", Message: "still here", Source: "runner"})
		reply(Frame{Type: TypeExecResult, ID: req.ID, Result: json.RawMessage("42")})

	default:
		reply(Frame{Type: TypeExecResult, ID: req.ID, Result: json.RawMessage("null")})
	}
}

// callHost issues one callback frame and waits for its invoke-result.
func (r *fakeRunnerSide) callHost(f Frame) (json.RawMessage, string) {
	ch := make(chan Frame, 1)
	r.mu.Lock()
	r.seq++
	id := fmt.Sprintf("cb-%d", r.seq)
	r.wait[id] = ch
	r.mu.Unlock()
	f.ID = id
	line, _ := Encode(f)
	_ = r.t.Send(line)
	resp := <-ch
	return resp.Result, resp.Error
}

func newTestClient(t *testing.T) (*Client, *fakeRunnerSide) {
	t.Helper()
	a, b := Pipe()
	client := NewClient(a, fakeOps{}, fakeTools{})
	fake := startFakeRunner(t, b)
	if err := client.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return client, fake
}

func TestClientExecuteWithHostCallback(t *testing.T) {
	client, _ := newTestClient(t)
	defer client.Close()

	raw, err := client.Execute(context.Background(), "invoke:21")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "42" {
		t.Fatalf("expected 42, got %s", raw)
	}
}

func TestClientExecuteToolCallback(t *testing.T) {
	client, _ := newTestClient(t)
	defer client.Close()

	raw, err := client.Execute(context.Background(), "tool")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `"search.query"` {
		t.Fatalf("expected search.query, got %s", raw)
	}
}

func TestClientExecuteRunnerError(t *testing.T) {
	client, _ := newTestClient(t)
	defer client.Close()

	_, err := client.Execute(context.Background(), "fail")
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Message != "Cannot comply" {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestClientSurvivesProtocolNoise(t *testing.T) {
	client, _ := newTestClient(t)
	defer client.Close()

	raw, err := client.Execute(context.Background(), "noise")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "42" {
		t.Fatalf("expected 42 after noise, got %s", raw)
	}
}

func TestClientConcurrentExecutions(t *testing.T) {
	client, _ := newTestClient(t)
	defer client.Close()

	const m = 6
	var wg sync.WaitGroup
	results := make([]string, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := client.Execute(context.Background(), fmt.Sprintf("invoke:%d", i))
			if err != nil {
				results[i] = "err: " + err.Error()
				return
			}
			results[i] = string(raw)
		}(i)
	}
	wg.Wait()
	for i := 0; i < m; i++ {
		if results[i] != strconv.Itoa(i*2) {
			t.Errorf("execution %d: expected %d, got %s", i, i*2, results[i])
		}
	}
}

func TestClientCloseFailsPending(t *testing.T) {
	a, b := Pipe()
	client := NewClient(a, fakeOps{}, nil)
	// A runner side that never answers.
	b.Notify(func([]byte) {}, func(error) {})
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.Execute(context.Background(), "hang")
		done <- err
	}()
	waitFor(t, func() bool { return client.Pending() == 1 })

	_ = client.Close()
	err := <-done
	var closed *ClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected ClosedError, got %v", err)
	}
	if client.Pending() != 0 {
		t.Fatal("pending slot remains after close")
	}
}
